// Package scene implements the Scene process core: one rendering context,
// all graphics objects, the user-input aggregators and, on the master,
// the GUI and the controllers. The render scheduler drives the
// priority-ordered update+draw on the render thread while the
// texture-upload thread commits new image content through PBOs, the two
// synchronized by the texture lock and a pair of GPU fences.
package scene

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/rs/zerolog"

	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/blender"
	"github.com/splashmapping/splash/engine/factory"
	"github.com/splashmapping/splash/engine/gfx"
	"github.com/splashmapping/splash/engine/graph"
	"github.com/splashmapping/splash/engine/gui"
	"github.com/splashmapping/splash/engine/profiler"
	"github.com/splashmapping/splash/engine/root"
	"github.com/splashmapping/splash/engine/userinput"
	"github.com/splashmapping/splash/engine/window"
)

// Loop timings of the scheduler.
const (
	idleSleep            = 50 * time.Millisecond
	defaultFrameDuration = time.Second / 60
	uploadWakeInterval   = 20 * time.Millisecond
)

// Scene owns one rendering context and the graph objects of one GPU.
type Scene struct {
	*root.Root

	log zerolog.Logger

	mainWindow   *glfw.Window // hidden window owning the render context
	uploadWindow *glfw.Window // hidden window owning the upload context

	started atomic.Bool
	paused  atomic.Bool

	swapInterval  int
	frameDuration time.Duration

	// Texture ordering state shared between the two GL threads.
	textureLock     sync.Mutex
	cameraDrawn     gfx.Fence
	textureUploaded gfx.Fence
	bufferUpdatedCh chan struct{}
	objectsUpdating atomic.Bool
	uploadDone      sync.WaitGroup
	isRunning       atomic.Bool

	windowsMu sync.Mutex
	windows   []*window.Window

	keyboard  *userinput.Keyboard
	mouse     *userinput.Mouse
	joystick  *userinput.Joystick
	dragndrop *userinput.DragNDrop

	blenderObj *blender.Blender

	prof *profiler.Profiler

	// ghostable lists the types mirrored on the master for worker-owned
	// objects.
	ghostable map[string]struct{}
}

// New creates a Scene bound on the transport under its name. The GL
// contexts are created by Run, on the render thread.
func New(name string, master bool, log zerolog.Logger) (*Scene, error) {
	r, err := root.NewRoot(name, master, log)
	if err != nil {
		return nil, err
	}
	s := &Scene{
		Root:            r,
		log:             log.With().Str("scene", name).Logger(),
		swapInterval:    1,
		frameDuration:   defaultFrameDuration,
		bufferUpdatedCh: make(chan struct{}, 1),
		prof:            profiler.NewProfiler(log),
		ghostable: map[string]struct{}{
			"camera": {}, "object": {}, "warp": {}, "window": {},
			"image": {}, "mesh": {}, "filter": {}, "queue": {},
		},
	}
	s.Root.OnBufferReceived = func(string) { s.NotifyBufferUpdated() }
	s.registerSceneAttributes()
	return s, nil
}

// SetupInputs creates and registers the four input aggregators; a GUI
// object gets them attached when AddObjectOfType creates it. Separated
// from New so tests can run a Scene without threads.
func (s *Scene) SetupInputs() {
	s.keyboard = userinput.NewKeyboard(s)
	s.mouse = userinput.NewMouse(s)
	s.joystick = userinput.NewJoystick(s)
	s.dragndrop = userinput.NewDragNDrop(s)
	s.AddObject(s.Registry().GenerateName("keyboard"), s.keyboard)
	s.AddObject(s.Registry().GenerateName("mouse"), s.mouse)
	s.AddObject(s.Registry().GenerateName("joystick"), s.joystick)
	s.AddObject(s.Registry().GenerateName("dragndrop"), s.dragndrop)
}

// Keyboard exposes the keyboard aggregator.
func (s *Scene) Keyboard() *userinput.Keyboard { return s.keyboard }

// Mouse exposes the mouse aggregator.
func (s *Scene) Mouse() *userinput.Mouse { return s.mouse }

// ── graph.Root overrides ───────────────────────────────────────────────

// Set forwards attribute sets on ghost objects to their owning Scene
// after applying them locally; force-sync attributes block until the
// owner acknowledged.
func (s *Scene) Set(objName, attr string, args common.Values) bool {
	obj, ok := s.GetObject(objName)
	if ok && obj.Ghost() {
		local := s.Root.Set(objName, attr, args)
		if base, okBase := obj.(interface {
			Attr(string) (*graph.Attribute, bool)
		}); okBase {
			if a, okAttr := base.Attr(attr); okAttr && a.Sync() == graph.SyncForce {
				answer := s.SendMessageWithAnswer(objName, attr, args, time.Second)
				return local && len(answer) > 0
			}
		}
		s.SendMessage(objName, attr, args)
		return local
	}
	return s.Root.Set(objName, attr, args)
}

// ── Object management ──────────────────────────────────────────────────

// AddObjectOfType constructs and registers an object, vending a unique
// name when none is given. Returns nil for unknown types.
func (s *Scene) AddObjectOfType(typeName, name string) graph.Object {
	obj := factory.New(typeName, s)
	if obj == nil {
		s.log.Warn().Str("type", typeName).Msg("unknown object type")
		return nil
	}
	if name == "" {
		name = s.Registry().GenerateName(typeName)
	}
	if !s.AddObject(name, obj) {
		obj.Destroy()
		return nil
	}

	switch typed := obj.(type) {
	case *blender.Blender:
		s.blenderObj = typed
	case *gui.Gui:
		typed.AttachInputs(s.keyboard, s.mouse)
	case *window.Window:
		typed.SetEventSink(s.inputSink())
	}
	return obj
}

// AddGhost mirrors a worker-owned object on the master Scene.
func (s *Scene) AddGhost(typeName, name string) graph.Object {
	if _, ok := s.ghostable[typeName]; !ok {
		return nil
	}
	obj := s.AddObjectOfType(typeName, name)
	if obj != nil {
		obj.SetGhost(true)
	}
	return obj
}

// Blender returns the scene's blending controller, if any.
func (s *Scene) Blender() *blender.Blender { return s.blenderObj }

// ── window.ContextProvider ─────────────────────────────────────────────

// SharedContext returns the hidden window owning the render context.
func (s *Scene) SharedContext() *glfw.Window { return s.mainWindow }

// RegisterWindow tracks an output window for the swap pass.
func (s *Scene) RegisterWindow(w *window.Window) {
	s.windowsMu.Lock()
	s.windows = append(s.windows, w)
	s.windowsMu.Unlock()
}

// UnregisterWindow drops an output window.
func (s *Scene) UnregisterWindow(w *window.Window) {
	s.windowsMu.Lock()
	for i, win := range s.windows {
		if win == w {
			s.windows = append(s.windows[:i], s.windows[i+1:]...)
			break
		}
	}
	s.windowsMu.Unlock()
}

// inputSink bundles the aggregators behind the window event interface.
func (s *Scene) inputSink() window.EventSink {
	return &sceneSink{s}
}

type sceneSink struct{ s *Scene }

func (k *sceneSink) Key(w string, key, scancode, action, mods int) {
	if k.s.keyboard != nil {
		k.s.keyboard.Key(w, key, scancode, action, mods)
	}
}
func (k *sceneSink) Char(w string, codepoint rune) {
	if k.s.keyboard != nil {
		k.s.keyboard.Char(w, codepoint)
	}
}
func (k *sceneSink) MouseButton(w string, button, action, mods int) {
	if k.s.mouse != nil {
		k.s.mouse.MouseButton(w, button, action, mods)
	}
}
func (k *sceneSink) MousePos(w string, x, y float64) {
	if k.s.mouse != nil {
		k.s.mouse.MousePos(w, x, y)
	}
}
func (k *sceneSink) Scroll(w string, xoff, yoff float64) {
	if k.s.mouse != nil {
		k.s.mouse.Scroll(w, xoff, yoff)
	}
}
func (k *sceneSink) Drop(w string, paths []string) {
	if k.s.dragndrop != nil {
		k.s.dragndrop.Drop(w, paths)
	}
}

// NotifyBufferUpdated wakes the texture-upload thread.
func (s *Scene) NotifyBufferUpdated() {
	select {
	case s.bufferUpdatedCh <- struct{}{}:
	default:
	}
}

// ── Lifecycle ──────────────────────────────────────────────────────────

// Run owns the calling goroutine as the render thread: it creates the GL
// contexts, starts the upload thread and loops until quit.
func (s *Scene) Run() error {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return err
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 5)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.Visible, glfw.False)

	mainWin, err := glfw.CreateWindow(64, 64, s.Name()+"_main", nil, nil)
	if err != nil {
		return err
	}
	s.mainWindow = mainWin

	uploadWin, err := glfw.CreateWindow(64, 64, s.Name()+"_upload", nil, mainWin)
	if err != nil {
		mainWin.Destroy()
		return err
	}
	s.uploadWindow = uploadWin

	mainWin.MakeContextCurrent()
	if err := gfx.Init(); err != nil {
		return err
	}

	s.isRunning.Store(true)
	s.started.Store(true)
	s.uploadDone.Add(1)
	go s.textureUploadLoop()

	s.renderLoop()

	// Cancellation: signal the upload thread once, join, then tear down
	// GL objects from the render thread.
	s.NotifyBufferUpdated()
	s.uploadDone.Wait()
	for _, obj := range s.Objects() {
		obj.Destroy()
	}
	s.cameraDrawn.Release()
	s.textureUploaded.Release()
	uploadWin.Destroy()
	mainWin.Destroy()
	s.Close()
	return nil
}

// Stop requests the loops to exit.
func (s *Scene) Stop() {
	s.isRunning.Store(false)
	s.RequestQuit()
}
