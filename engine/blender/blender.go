// Package blender implements the blending controller: on the master Scene
// it tessellates geometry, accumulates per-camera visibility
// contributions, and distributes the resulting meshes to the non-master
// Scenes.
package blender

import (
	"time"

	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/camera"
	"github.com/splashmapping/splash/engine/graph"
	"github.com/splashmapping/splash/engine/object"
)

// WaitTimeout bounds how long a non-master Scene waits for the
// blendingUpdated broadcast before proceeding with stale geometry.
const WaitTimeout = 2 * time.Second

// Blender drives the vertex-blending computation.
type Blender struct {
	graph.BaseObject

	mode             string // none, once, continuous
	computeArmed     bool
	blendingComputed bool
	wasActive        bool

	updatedCh chan struct{}
}

var _ graph.Object = (*Blender)(nil)

// New creates a Blender attached to the root.
func New(rootObj graph.Root) *Blender {
	b := &Blender{
		mode:      "none",
		updatedCh: make(chan struct{}, 1),
	}
	b.Init(rootObj, "blender", graph.CategoryControl, graph.PriorityBlending)
	b.registerAttributes()
	return b
}

func (b *Blender) registerAttributes() {
	b.AddAttribute("mode", "s", func(args common.Values) bool {
		mode := args[0].AsString()
		switch mode {
		case "none", "once", "continuous":
		default:
			return false
		}
		b.mode = mode
		if mode != "none" {
			b.computeArmed = true
			b.blendingComputed = false
		}
		return true
	}, func() common.Values {
		return common.Values{common.S(b.mode)}
	}).Doc("Blending mode: none, once or continuous")

	b.AddAttribute("blendingUpdated", "", func(common.Values) bool {
		b.SignalUpdated()
		return true
	}, nil).Doc("Notification that blending geometry was distributed").NotSavable()
}

// Mode returns the current blending mode.
func (b *Blender) Mode() string { return b.mode }

// ScheduleRecompute re-arms the computation after a media update; a
// continuous blender recomputes anyway, a once blender refreshes once.
func (b *Blender) ScheduleRecompute() {
	if b.wasActive && b.mode != "none" {
		b.blendingComputed = false
	}
}

// SignalUpdated wakes a Scene waiting on the blending distribution.
func (b *Blender) SignalUpdated() {
	select {
	case b.updatedCh <- struct{}{}:
	default:
	}
}

// WaitUpdated blocks up to the timeout for the blendingUpdated broadcast.
// Returns false on timeout; the caller proceeds with stale geometry.
func (b *Blender) WaitUpdated(timeout time.Duration) bool {
	select {
	case <-b.updatedCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Update runs the blending tick. It only computes on the master Scene,
// when armed and either never computed or in continuous mode.
func (b *Blender) Update() {
	if b.Root() == nil || !b.Root().IsMaster() {
		return
	}

	if b.mode == "none" {
		if b.wasActive {
			b.deactivate()
			b.wasActive = false
			b.blendingComputed = false
		}
		return
	}

	if !b.computeArmed || (b.blendingComputed && b.mode != "continuous") {
		return
	}

	cameras := b.cameras()
	if len(cameras) == 0 {
		return
	}
	objects := b.linkedObjects(cameras)

	// The non-master Scenes start waiting for the distribution here.
	b.Root().SendMessage(graph.OtherScenes, "prepareBlending", common.Values{})

	// First pass: tessellate along every camera's projection boundary.
	for _, obj := range objects {
		obj.SetAttribute("resetTessellation", common.Values{})
	}
	for _, cam := range cameras {
		cam.ComputeVertexVisibility()
		cam.BlendingTessellateForCurrentCamera()
	}

	// Second pass: accumulate every camera's contribution on the expanded
	// geometry.
	for _, obj := range objects {
		obj.SetAttribute("resetBlendingAttribute", common.Values{})
	}
	for _, cam := range cameras {
		cam.ComputeVertexVisibility()
		cam.ComputeBlendingContribution()
	}

	for _, obj := range objects {
		obj.SetAttribute("activateVertexBlending", common.Values{common.I(1)})
	}

	// Distribute the recomputed geometry to the non-master Scenes.
	for _, obj := range objects {
		geom := obj.Geometry()
		if geom == nil {
			continue
		}
		if err := b.Root().SendBuffer(graph.AllPeers, geom.Serialize()); err != nil {
			b.Log.Warn().Err(err).Str("geometry", geom.Name()).Msg("blending distribution failed")
		}
	}
	b.Root().SendMessage(graph.OtherScenes, "blendingUpdated", common.Values{})

	b.blendingComputed = true
	b.wasActive = true
}

// deactivate resets tessellation and visibility everywhere and broadcasts
// the blending shutdown.
func (b *Blender) deactivate() {
	cameras := b.cameras()
	objects := b.linkedObjects(cameras)
	for _, obj := range objects {
		obj.SetAttribute("resetTessellation", common.Values{})
		obj.SetAttribute("resetVisibility", common.Values{})
		obj.SetAttribute("activateVertexBlending", common.Values{common.I(0)})
	}
	b.Root().SendMessage(graph.OtherScenes, "activateVertexBlending", common.Values{common.I(0)})
}

// cameras returns every camera of the root, in registration order.
// Ghost twins count: on the master the projectors of the other Scenes
// exist only as ghosts, and their frusta must still contribute to the
// blending weights.
func (b *Blender) cameras() []*camera.Camera {
	var out []*camera.Camera
	for _, obj := range b.Root().ObjectsOfType("camera") {
		if cam, ok := obj.(*camera.Camera); ok {
			out = append(out, cam)
		}
	}
	return out
}

// linkedObjects collects the objects linked one hop into the cameras,
// deduplicated, in camera order.
func (b *Blender) linkedObjects(cameras []*camera.Camera) []*object.Object {
	seen := make(map[string]struct{})
	var out []*object.Object
	for _, cam := range cameras {
		for _, obj := range cam.Objects() {
			if _, ok := seen[obj.Name()]; ok {
				continue
			}
			seen[obj.Name()] = struct{}{}
			out = append(out, obj)
		}
	}
	return out
}
