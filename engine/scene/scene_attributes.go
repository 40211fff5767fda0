package scene

import (
	"time"

	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/blender"
)

// registerSceneAttributes wires the root-level attributes driving the
// scene over the Link: object management, lifecycle, blending
// notifications.
func (s *Scene) registerSceneAttributes() {
	s.AddAttribute("addObject", "ss", func(args common.Values) bool {
		typeName, name := args[0].AsString(), args[1].AsString()
		s.AddTask(func() { s.AddObjectOfType(typeName, name) })
		return true
	}, nil).Doc("Add an object of the given type and name").NotSavable()

	s.AddAttribute("addGhost", "ss", func(args common.Values) bool {
		typeName, name := args[0].AsString(), args[1].AsString()
		s.AddTask(func() { s.AddGhost(typeName, name) })
		return true
	}, nil).Doc("Mirror a worker-owned object on the master").NotSavable()

	s.AddAttribute("deleteObject", "s", func(args common.Values) bool {
		name := args[0].AsString()
		s.AddTask(func() { s.RemoveObject(name) })
		return true
	}, nil).Doc("Delete the named object").NotSavable()

	s.AddAttribute("link", "ss", func(args common.Values) bool {
		from, to := args[0].AsString(), args[1].AsString()
		s.AddTask(func() {
			if !s.Link(from, to) {
				s.log.Warn().Str("from", from).Str("to", to).Msg("link failed")
			}
		})
		return true
	}, nil).Doc("Link the first object into the second").NotSavable()

	s.AddAttribute("unlink", "ss", func(args common.Values) bool {
		from, to := args[0].AsString(), args[1].AsString()
		s.AddTask(func() { s.Unlink(from, to) })
		return true
	}, nil).Doc("Remove a link").NotSavable()

	s.AddAttribute("start", "", func(common.Values) bool {
		s.started.Store(true)
		return true
	}, nil).Doc("Start rendering").NotSavable()

	s.AddAttribute("stop", "", func(common.Values) bool {
		s.started.Store(false)
		return true
	}, nil).Doc("Stop rendering; the loop idles").NotSavable()

	s.AddAttribute("pause", "n", func(args common.Values) bool {
		s.paused.Store(args[0].AsBool())
		return true
	}, func() common.Values {
		return common.Values{common.B(s.paused.Load())}
	}).Doc("Pause the render loop").NotSavable()

	s.AddAttribute("quit", "", func(common.Values) bool {
		s.Stop()
		return true
	}, nil).Doc("Shut the scene down").NotSavable()

	s.AddAttribute("swapInterval", "n", func(args common.Values) bool {
		v := int(args[0].AsInt())
		if v < -1 {
			return false
		}
		s.swapInterval = v
		return true
	}, func() common.Values {
		return common.Values{common.I(s.swapInterval)}
	}).Doc("Default swap interval of the scene windows")

	s.AddAttribute("targetFrameRate", "n", func(args common.Values) bool {
		fps := args[0].AsFloat()
		if fps <= 0 {
			return false
		}
		s.frameDuration = time.Duration(float64(time.Second) / fps)
		return true
	}, func() common.Values {
		return common.Values{common.R(float64(time.Second) / float64(s.frameDuration))}
	}).Doc("Target frame rate when vsync is off")

	// prepareBlending and blendingUpdated implement the non-master side of
	// the blending distribution handshake.
	s.AddAttribute("prepareBlending", "", func(common.Values) bool {
		b := s.ensureBlender()
		if s.IsMaster() {
			return true
		}
		go func() {
			if !b.WaitUpdated(blender.WaitTimeout) {
				s.log.Warn().Msg("blending distribution timed out, proceeding with stale geometry")
			}
		}()
		return true
	}, nil).Doc("Announce an incoming blending distribution").NotSavable()

	s.AddAttribute("blendingUpdated", "", func(common.Values) bool {
		s.ensureBlender().SignalUpdated()
		return true
	}, nil).Doc("Signal that the blending geometry arrived").NotSavable()

	s.AddAttribute("activateVertexBlending", "n", func(args common.Values) bool {
		value := args[0]
		s.AddTask(func() {
			for _, obj := range s.ObjectsOfType("object") {
				obj.SetAttribute("activateVertexBlending", common.Values{value})
			}
		})
		return true
	}, nil).Doc("Toggle vertex blending on every object of the scene").NotSavable()

	s.AddAttribute("ping", "", func(common.Values) bool {
		return true
	}, func() common.Values {
		return common.Values{common.S(s.Name())}
	}).Doc("Liveness probe answered with the scene name").NotSavable()
}

// ensureBlender returns the scene's blender, creating one when the
// configuration never did.
func (s *Scene) ensureBlender() *blender.Blender {
	if s.blenderObj == nil {
		if obj := s.AddObjectOfType("blender", ""); obj != nil {
			s.blenderObj = obj.(*blender.Blender)
		}
	}
	return s.blenderObj
}
