// Package world implements the supervisory process: it loads the
// configuration, owns the image and mesh buffer objects whose content is
// broadcast, spawns and supervises the Scenes, and is the single point of
// save and quit.
package world

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/factory"
	"github.com/splashmapping/splash/engine/graph"
	"github.com/splashmapping/splash/engine/root"
)

// Replication and supervision cadence.
const (
	replicationPeriod = 16 * time.Millisecond
	supervisePeriod   = time.Second
	worldTick         = 2 * time.Millisecond
)

// World is the one-per-installation supervisory root.
type World struct {
	*root.Root

	log zerolog.Logger

	cfg     *Config
	cfgPath string

	childMu  sync.Mutex
	children map[string]*exec.Cmd
	dead     map[string]bool

	// destinations maps each replicated buffer object to the Scenes its
	// serialized content is pushed to.
	destMu       sync.Mutex
	destinations map[string][]string

	// ownership maps each configured object to the Scene that physically
	// owns it; the relay uses it to route object-addressed messages in
	// the star topology, where Scenes only ever connect to the World.
	ownMu     sync.Mutex
	ownership map[string]string

	masterScene string
	sceneBinary string

	saveRequested bool
}

// New creates the World root, bound on the transport as "world".
func New(log zerolog.Logger) (*World, error) {
	r, err := root.NewRoot("world", true, log)
	if err != nil {
		return nil, err
	}
	w := &World{
		Root:         r,
		log:          log.With().Str("root", "world").Logger(),
		children:     make(map[string]*exec.Cmd),
		dead:         make(map[string]bool),
		destinations: make(map[string][]string),
		ownership:    make(map[string]string),
		sceneBinary:  "splash-scene",
	}
	w.Root.OnMessage = w.relayMessage
	w.Root.OnBufferRelay = w.relayBuffer
	w.registerWorldAttributes()
	w.AddPeriodicTask("bufferReplication", w.replicateBuffers, replicationPeriod)
	w.AddPeriodicTask("superviseScenes", w.superviseScenes, supervisePeriod)
	return w, nil
}

func (w *World) registerWorldAttributes() {
	w.AddAttribute("quit", "", func(common.Values) bool {
		w.Quit()
		return true
	}, nil).Doc("Shut the installation down").NotSavable()

	w.AddAttribute("save", "", func(common.Values) bool {
		w.saveRequested = true
		return true
	}, nil).Doc("Save the configuration file").NotSavable()

	w.AddAttribute("configurationPath", "s", func(args common.Values) bool {
		w.cfgPath = args[0].AsString()
		return true
	}, func() common.Values {
		return common.Values{common.S(w.cfgPath)}
	}).Doc("Path of the loaded configuration file").NotSavable()

	w.AddAttribute("masterScene", "", nil, func() common.Values {
		return common.Values{common.S(w.masterScene)}
	}).Doc("Name of the master scene").NotSavable()

	w.AddAttribute("addCaptureDevice", "s", func(args common.Values) bool {
		calibratorName := args[0].AsString()
		w.AddTask(func() { w.spawnCaptureDevice(calibratorName) })
		return true
	}, nil).Doc("Spawn a capture image and link it to the calibrator").NotSavable()
}

// SetSceneBinary overrides the child executable, for packaging layouts
// where it is not on PATH.
func (w *World) SetSceneBinary(path string) { w.sceneBinary = path }

// MasterScene returns the master scene name.
func (w *World) MasterScene() string { return w.masterScene }

// ── Configuration application ──────────────────────────────────────────

// ApplyConfig loads the parsed configuration: world attributes first,
// then scene processes, then their object graphs.
func (w *World) ApplyConfig(cfg *Config, cfgPath string) error {
	w.cfg = cfg
	w.cfgPath = cfgPath

	for attr, value := range cfg.World {
		w.SetAttribute(attr, AttributeValues(value))
	}

	if len(cfg.Scenes) == 0 {
		return fmt.Errorf("%w: no scene defined", ErrConfig)
	}

	// The first local scene becomes the master.
	for _, spec := range cfg.Scenes {
		if common.Coalesce(spec.Address, "localhost") == "localhost" {
			w.masterScene = spec.Name
			break
		}
	}

	for _, spec := range cfg.Scenes {
		if err := w.setupScene(spec); err != nil {
			return err
		}
	}

	for _, spec := range cfg.Scenes {
		w.applySceneDef(spec.Name)
	}
	return nil
}

// setupScene spawns (or attaches to) one Scene process and connects the
// transport.
func (w *World) setupScene(spec SceneSpec) error {
	if spec.Spawn > 0 {
		cmd := exec.Command(w.sceneBinary, spec.Name)
		cmd.Env = append(os.Environ(), fmt.Sprintf("DISPLAY=:0.%d", spec.Display))
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("world: cannot spawn scene %s: %w", spec.Name, err)
		}
		w.childMu.Lock()
		w.children[spec.Name] = cmd
		w.childMu.Unlock()

		// The child binds its sockets on startup; retry the connect.
		uri := fmt.Sprintf("ipc:///tmp/splash-%s", spec.Name)
		var err error
		for attempt := 0; attempt < 20; attempt++ {
			if err = w.ConnectTo(spec.Name, uri); err == nil {
				return nil
			}
			time.Sleep(100 * time.Millisecond)
		}
		return fmt.Errorf("world: scene %s never came up: %w", spec.Name, err)
	}

	// Already-running scene: in-process first, local sockets second.
	if err := w.ConnectTo(spec.Name, "inproc://"+spec.Name); err == nil {
		return nil
	}
	return w.ConnectTo(spec.Name, fmt.Sprintf("ipc:///tmp/splash-%s", spec.Name))
}

// applySceneDef pushes one scene's objects, attributes and links, and
// mirrors ghostable objects onto the master.
func (w *World) applySceneDef(sceneName string) {
	def, ok := w.cfg.Defs[sceneName]
	if !ok {
		return
	}

	for _, objName := range w.cfg.ObjectNames(sceneName) {
		spec, okSpec := def.Objects[objName]
		if !okSpec {
			continue
		}
		typeName := spec.Type()
		if !factory.Exists(typeName) {
			w.log.Warn().Str("type", typeName).Str("object", objName).Msg("unknown type in configuration")
			continue
		}

		w.SendMessage(sceneName, "addObject", common.Values{common.S(typeName), common.S(objName)})
		if sceneName != w.masterScene {
			w.SendMessage(w.masterScene, "addGhost", common.Values{common.S(typeName), common.S(objName)})
		}
		w.ownMu.Lock()
		w.ownership[objName] = sceneName
		w.ownMu.Unlock()

		// Buffer objects also live in the World, replicated to the scene.
		if d, okDesc := factory.Describe(typeName); okDesc &&
			(d.Category == graph.CategoryImage || d.Category == graph.CategoryMesh) {
			if _, exists := w.GetObject(objName); !exists {
				if obj := factory.New(typeName, w); obj != nil {
					w.AddObject(objName, obj)
				}
			}
			w.destMu.Lock()
			w.destinations[objName] = appendUnique(w.destinations[objName], sceneName)
			w.destMu.Unlock()
		}

		for attr, value := range spec {
			if attr == "type" {
				continue
			}
			args := AttributeValues(value)
			w.SendMessage(objName, attr, args)
			w.Set(objName, attr, args) // applies on the local twin when one exists
		}
	}

	for _, link := range def.Links {
		w.SendMessage(sceneName, "link", common.Values{common.S(link[0]), common.S(link[1])})
		if sceneName != w.masterScene {
			w.SendMessage(w.masterScene, "link", common.Values{common.S(link[0]), common.S(link[1])})
		}
	}
}

// spawnCaptureDevice creates the calibration capture image on the master
// scene and links it to the calibrator.
func (w *World) spawnCaptureDevice(calibratorName string) {
	name := w.Registry().GenerateName("capture")
	w.SendMessage(w.masterScene, "addObject", common.Values{common.S("image"), common.S(name)})
	w.SendMessage(w.masterScene, "link", common.Values{common.S(name), common.S(calibratorName)})
}

// ── Relay: star-topology message and buffer routing ────────────────────

// relayMessage forwards incoming frames the World is not the final
// destination of. Scenes only connect to the World, so Scene-to-Scene
// traffic — ghost attribute sets, blending handshakes, request answers —
// passes through here. Returns true when the frame was consumed.
func (w *World) relayMessage(dest, attr string, args common.Values) bool {
	switch dest {
	case graph.OtherScenes:
		// Fan out to every Scene; the sender's name travels in the frame
		// and its own Scene skips it on receipt.
		for _, peer := range w.Transport().Peers() {
			_ = w.Transport().SendMessage(peer, dest, attr, args)
		}
		return true
	case graph.AllPeers, w.Name():
		return false // for the World itself
	}

	// A frame addressed to a root (an answer, a scene-level attribute)
	// goes straight to that peer.
	for _, peer := range w.Transport().Peers() {
		if peer == dest {
			_ = w.Transport().SendMessage(peer, dest, attr, args)
			return true
		}
	}

	// An object-addressed frame goes to the owning Scene, with a copy to
	// the master so its ghost twin stays in step.
	w.ownMu.Lock()
	owner, known := w.ownership[dest]
	w.ownMu.Unlock()
	if !known {
		return false
	}
	_ = w.Transport().SendMessage(owner, dest, attr, args)
	if owner != w.masterScene && w.masterScene != "" {
		_ = w.Transport().SendMessage(w.masterScene, dest, attr, args)
	}
	// The World may hold a replicated twin of the object; let the default
	// handling apply the set locally too.
	_, local := w.GetObject(dest)
	return !local
}

// relayBuffer forwards serialized payloads the World has no local twin
// for — the blender's recomputed geometries — to every Scene. Scenes
// without the destination object drop the frame silently.
func (w *World) relayBuffer(s *graph.Serialized) bool {
	relayed := false
	for _, peer := range w.Transport().Peers() {
		if err := w.Transport().SendBuffer(peer, s); err != nil {
			w.log.Warn().Err(err).Str("object", s.Name).Str("remote", peer).
				Msg("buffer relay dropped")
		}
		relayed = true
	}
	return relayed
}

// ── Replication and supervision ────────────────────────────────────────

// replicateBuffers pushes every updated local buffer object to its
// destination scenes. A LinkOverflow drops the frame; the next update
// reserializes.
func (w *World) replicateBuffers() {
	for _, obj := range w.Objects() {
		buf, ok := obj.(graph.BufferObject)
		if !ok || !buf.UpdatedBuffer() {
			continue
		}
		buf.ClearUpdatedBuffer()

		w.destMu.Lock()
		dests := append([]string(nil), w.destinations[obj.Name()]...)
		w.destMu.Unlock()
		if len(dests) == 0 {
			continue
		}

		s := buf.Serialize()
		for _, dest := range dests {
			if err := w.SendBuffer(dest, s); err != nil {
				w.log.Warn().Err(err).Str("object", obj.Name()).Str("remote", dest).
					Msg("buffer replication dropped")
			}
		}
	}
}

// superviseScenes detects exited children. A dead scene is never
// restarted automatically.
func (w *World) superviseScenes() {
	w.childMu.Lock()
	defer w.childMu.Unlock()
	for name, cmd := range w.children {
		if w.dead[name] {
			continue
		}
		if cmd.ProcessState != nil || (cmd.Process != nil && cmd.Process.Signal(syscall.Signal(0)) != nil) {
			w.log.Error().Str("scene", name).Msg("scene process exited, not restarting")
			w.dead[name] = true
			w.DisconnectFrom(name)
		}
	}
}

// ── Lifecycle ──────────────────────────────────────────────────────────

// Run drives the world loop until quit: tasks, periodic tasks, save
// requests.
func (w *World) Run() error {
	for !w.Quitting() {
		w.RunTasks()
		w.RunPeriodicTasks()

		if w.saveRequested {
			w.saveRequested = false
			if w.cfg != nil && w.cfgPath != "" {
				if err := w.cfg.Save(w.cfgPath); err != nil {
					w.log.Error().Err(err).Msg("configuration save failed")
				} else {
					w.log.Info().Str("path", w.cfgPath).Msg("configuration saved")
				}
			}
		}

		time.Sleep(worldTick)
	}

	// Orderly shutdown: ask every scene to quit, wait for children.
	w.SendMessage(graph.AllPeers, "quit", common.Values{})
	w.childMu.Lock()
	children := make([]*exec.Cmd, 0, len(w.children))
	for _, cmd := range w.children {
		children = append(children, cmd)
	}
	w.childMu.Unlock()
	for _, cmd := range children {
		done := make(chan struct{})
		go func() { _ = cmd.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			cmd.Process.Kill()
		}
	}
	w.Close()
	return nil
}

// Quit requests a clean shutdown.
func (w *World) Quit() { w.RequestQuit() }

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
