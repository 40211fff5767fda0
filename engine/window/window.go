// Package window implements the output window: a GLFW window sharing the
// Scene's GL context family, compositing its input textures into the swap
// chain following the layout, with swap-test override and
// presentation-delay measurement.
package window

import (
	"strconv"
	"sync"
	"time"

	"github.com/go-gl/gl/v4.5-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/gfx"
	"github.com/splashmapping/splash/engine/graph"
	"github.com/splashmapping/splash/engine/texture"
)

// ContextProvider is implemented by the Scene: it owns the hidden root GL
// context every window shares, and tracks windows for event polling.
type ContextProvider interface {
	SharedContext() *glfw.Window
	RegisterWindow(w *Window)
	UnregisterWindow(w *Window)
}

// EventSink receives raw window events; the user-input aggregator
// implements it.
type EventSink interface {
	Key(window string, key, scancode, action, mods int)
	Char(window string, codepoint rune)
	MouseButton(window string, button, action, mods int)
	MousePos(window string, x, y float64)
	Scroll(window string, xoff, yoff float64)
	Drop(window string, paths []string)
}

// Window is one projector output.
type Window struct {
	graph.BaseObject

	win      *glfw.Window
	provider ContextProvider

	position     [2]int
	size         [2]int
	fullscreen   bool
	decorated    bool
	swapInterval int
	gamma        float32

	layout   [4]int
	textures []texture.Source

	swapTest      bool
	swapTestColor [4]float32

	shader     *gfx.Shader
	shaderOnce sync.Once
	quadVAO    uint32
	quadBuf    *gfx.GpuBuffer
	uvBuf      *gfx.GpuBuffer

	sinkMu sync.Mutex
	sink   EventSink

	lastUpdate time.Time
	lastSwap   time.Time
	delay      time.Duration
}

var _ graph.Object = (*Window)(nil)

// New creates a Window attached to the root. The GLFW window itself is
// created lazily on the render thread, sharing the Scene's root context.
func New(rootObj graph.Root) *Window {
	w := &Window{
		size:         [2]int{1280, 720},
		decorated:    true,
		swapInterval: 1,
		gamma:        2.2,
		layout:       [4]int{0, 1, 2, 3},
	}
	w.Init(rootObj, "window", graph.CategoryOther, graph.PriorityWindow)
	if p, ok := rootObj.(ContextProvider); ok {
		w.provider = p
	}
	w.registerAttributes()
	return w
}

func (w *Window) registerAttributes() {
	w.AddAttribute("position", "nn", func(args common.Values) bool {
		w.position = [2]int{int(args[0].AsInt()), int(args[1].AsInt())}
		if w.win != nil {
			w.win.SetPos(w.position[0], w.position[1])
		}
		return true
	}, func() common.Values {
		return common.Values{common.I(w.position[0]), common.I(w.position[1])}
	}).Doc("Position of the window on the desktop")

	w.AddAttribute("size", "nn", func(args common.Values) bool {
		width, height := int(args[0].AsInt()), int(args[1].AsInt())
		if width <= 0 || height <= 0 {
			return false
		}
		w.size = [2]int{width, height}
		if w.win != nil {
			w.win.SetSize(width, height)
		}
		return true
	}, func() common.Values {
		return common.Values{common.I(w.size[0]), common.I(w.size[1])}
	}).Doc("Size of the window")

	w.AddAttribute("fullscreen", "n", func(args common.Values) bool {
		w.fullscreen = args[0].AsBool()
		return true
	}, func() common.Values {
		return common.Values{common.B(w.fullscreen)}
	}).Doc("Show the window fullscreen on its monitor")

	w.AddAttribute("decorated", "n", func(args common.Values) bool {
		w.decorated = args[0].AsBool()
		return true
	}, func() common.Values {
		return common.Values{common.B(w.decorated)}
	}).Doc("Show the window decorations")

	w.AddAttribute("swapInterval", "n", func(args common.Values) bool {
		v := int(args[0].AsInt())
		if v < -1 {
			return false
		}
		w.swapInterval = v
		return true
	}, func() common.Values {
		return common.Values{common.I(w.swapInterval)}
	}).Doc("Swap interval: -1 adaptive, 0 off, >0 vsync every N frames")

	w.AddAttribute("gamma", "n", func(args common.Values) bool {
		v := float32(args[0].AsFloat())
		if v <= 0 {
			return false
		}
		w.gamma = v
		return true
	}, func() common.Values {
		return common.Values{common.R(w.gamma)}
	}).Doc("Output gamma applied at presentation")

	w.AddAttribute("layout", "nnnn", func(args common.Values) bool {
		for i := 0; i < 4; i++ {
			w.layout[i] = int(args[i].AsInt())
		}
		return true
	}, func() common.Values {
		return common.Values{common.I(w.layout[0]), common.I(w.layout[1]),
			common.I(w.layout[2]), common.I(w.layout[3])}
	}).Doc("Input texture indices composited left to right")

	w.AddAttribute("swapTest", "n", func(args common.Values) bool {
		w.swapTest = args[0].AsBool()
		return true
	}, func() common.Values {
		return common.Values{common.B(w.swapTest)}
	}).Doc("Fill the window with the swap-test color").NotSavable()

	w.AddAttribute("swapTestColor", "nnnn", func(args common.Values) bool {
		for i := 0; i < 4; i++ {
			w.swapTestColor[i] = float32(args[i].AsFloat())
		}
		return true
	}, func() common.Values {
		return common.Values{common.R(w.swapTestColor[0]), common.R(w.swapTestColor[1]),
			common.R(w.swapTestColor[2]), common.R(w.swapTestColor[3])}
	}).Doc("Color used by the swap test").NotSavable()

	w.AddAttribute("presentationDelay", "", nil, func() common.Values {
		return common.Values{common.I(w.delay.Nanoseconds())}
	}).Doc("Last measured delay between update and swap, in nanoseconds").NotSavable()
}

// TryLink accepts texture sources: warps, cameras, texture images, guis.
func (w *Window) TryLink(o graph.Object) bool {
	src, ok := o.(texture.Source)
	if !ok {
		return false
	}
	if !w.BaseObject.TryLink(o) {
		return false
	}
	w.textures = append(w.textures, src)
	return true
}

func (w *Window) TryUnlink(o graph.Object) {
	if src, ok := o.(texture.Source); ok {
		for i, t := range w.textures {
			if t == src {
				w.textures = append(w.textures[:i], w.textures[i+1:]...)
				break
			}
		}
	}
	w.BaseObject.TryUnlink(o)
}

// SetEventSink wires the user-input aggregator.
func (w *Window) SetEventSink(sink EventSink) {
	w.sinkMu.Lock()
	w.sink = sink
	w.sinkMu.Unlock()
}

// setup creates the GLFW window on the render thread, sharing the root
// context.
func (w *Window) setup() error {
	if w.provider == nil {
		return gfx.ErrResource
	}
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 5)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.Visible, glfw.True)
	if w.decorated {
		glfw.WindowHint(glfw.Decorated, glfw.True)
	} else {
		glfw.WindowHint(glfw.Decorated, glfw.False)
	}

	var monitor *glfw.Monitor
	if w.fullscreen {
		monitor = glfw.GetPrimaryMonitor()
	}
	win, err := glfw.CreateWindow(w.size[0], w.size[1], w.Name(), monitor, w.provider.SharedContext())
	if err != nil {
		w.Log.Error().Err(err).Msg("cannot create window")
		return err
	}
	w.win = win
	win.SetPos(w.position[0], w.position[1])
	w.installCallbacks(win)
	w.provider.RegisterWindow(w)
	return nil
}

// installCallbacks forwards GLFW events to the input aggregator.
func (w *Window) installCallbacks(win *glfw.Window) {
	name := w.Name()
	forward := func(fn func(EventSink)) {
		w.sinkMu.Lock()
		sink := w.sink
		w.sinkMu.Unlock()
		if sink != nil {
			fn(sink)
		}
	}

	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		forward(func(s EventSink) { s.Key(name, int(key), scancode, int(action), int(mods)) })
	})
	win.SetCharCallback(func(_ *glfw.Window, char rune) {
		forward(func(s EventSink) { s.Char(name, char) })
	})
	win.SetMouseButtonCallback(func(_ *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		forward(func(s EventSink) { s.MouseButton(name, int(button), int(action), int(mods)) })
	})
	win.SetCursorPosCallback(func(_ *glfw.Window, x, y float64) {
		forward(func(s EventSink) { s.MousePos(name, x, y) })
	})
	win.SetScrollCallback(func(_ *glfw.Window, xoff, yoff float64) {
		forward(func(s EventSink) { s.Scroll(name, xoff, yoff) })
	})
	win.SetDropCallback(func(_ *glfw.Window, paths []string) {
		forward(func(s EventSink) { s.Drop(name, paths) })
	})
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.size = [2]int{width, height}
	})
}

// Update stamps the update time for presentation-delay measurement.
func (w *Window) Update() {
	w.lastUpdate = time.Now()
}

// Render composites the input textures into the swap chain. vsync is
// honored by the first window of the frame only; RenderWithVsync is called
// by the Scene with that decision.
func (w *Window) Render() {
	w.RenderWithVsync(true)
}

// RenderWithVsync draws the window content; when first is false the swap
// interval is set to 0, so only the first window's swap waits for vsync.
func (w *Window) RenderWithVsync(first bool) {
	if w.win == nil {
		if err := w.setup(); err != nil {
			return
		}
	}
	w.win.MakeContextCurrent()
	if first {
		glfw.SwapInterval(w.swapInterval)
	} else {
		glfw.SwapInterval(0)
	}

	w.shaderOnce.Do(func() {
		s, err := gfx.NewShader(gfx.VertexSourceQuad, gfx.FragmentSourceWindow)
		if err != nil {
			w.Log.Error().Err(err).Msg("window shader failed to build")
			return
		}
		w.shader = s
		w.buildQuad()
	})
	if w.shader == nil {
		return
	}

	width, height := w.win.GetFramebufferSize()
	gl.Viewport(0, 0, int32(width), int32(height))
	gl.ClearColor(0, 0, 0, 1)
	gl.Clear(gl.COLOR_BUFFER_BIT)

	w.shader.Activate()
	swapTest := int32(0)
	if w.swapTest {
		swapTest = 1
	}
	w.shader.SetInt("_swapTest", swapTest)
	w.shader.SetVec4("_swapTestColor", w.swapTestColor[0], w.swapTestColor[1],
		w.swapTestColor[2], w.swapTestColor[3])
	w.shader.SetFloat("_gamma", w.gamma)
	w.shader.SetInt("_textureCount", int32(len(w.textures)))
	w.shader.SetIVec4("_layout", int32(w.layout[0]), int32(w.layout[1]),
		int32(w.layout[2]), int32(w.layout[3]))
	for i := 0; i < 4 && i < len(w.textures); i++ {
		id := w.textures[i].TextureID()
		if id == 0 {
			continue
		}
		gl.ActiveTexture(gl.TEXTURE0 + uint32(i))
		gl.BindTexture(gl.TEXTURE_2D, id)
		w.shader.SetInt("_tex"+strconv.Itoa(i), int32(i))
	}

	gl.BindVertexArray(w.quadVAO)
	gl.DrawArrays(gl.TRIANGLES, 0, 6)
	gl.BindVertexArray(0)
	w.shader.Deactivate()
}

// Swap presents the window buffer and measures the presentation delay.
func (w *Window) Swap() {
	if w.win == nil {
		return
	}
	w.win.MakeContextCurrent()
	w.win.SwapBuffers()
	w.lastSwap = time.Now()
	w.delay = w.lastSwap.Sub(w.lastUpdate)
}

// ShouldClose reports whether the user asked the window to close.
func (w *Window) ShouldClose() bool {
	return w.win != nil && w.win.ShouldClose()
}

func (w *Window) buildQuad() {
	quad := []float32{
		-1, -1, 0, 1, 1, -1, 0, 1, 1, 1, 0, 1,
		-1, -1, 0, 1, 1, 1, 0, 1, -1, 1, 0, 1,
	}
	uvs := []float32{0, 0, 1, 0, 1, 1, 0, 0, 1, 1, 0, 1}
	w.quadBuf = gfx.NewGpuBuffer(4, quad)
	w.uvBuf = gfx.NewGpuBuffer(2, uvs)
	gl.GenVertexArrays(1, &w.quadVAO)
	gl.BindVertexArray(w.quadVAO)
	gl.BindBuffer(gl.ARRAY_BUFFER, w.quadBuf.ID())
	gl.VertexAttribPointerWithOffset(0, 4, gl.FLOAT, false, 0, 0)
	gl.EnableVertexAttribArray(0)
	gl.BindBuffer(gl.ARRAY_BUFFER, w.uvBuf.ID())
	gl.VertexAttribPointerWithOffset(1, 2, gl.FLOAT, false, 0, 0)
	gl.EnableVertexAttribArray(1)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	gl.BindVertexArray(0)
}

// Destroy releases the GLFW window and GPU resources.
func (w *Window) Destroy() {
	if w.provider != nil {
		w.provider.UnregisterWindow(w)
	}
	if w.win != nil {
		w.win.Destroy()
		w.win = nil
	}
	if w.shader != nil {
		w.shader.Destroy()
	}
	w.BaseObject.Destroy()
}
