// Package gui implements the control-surface object: an FBO-backed
// texture bound to a window, consuming user input through the aggregator.
// The widget layer itself lives outside the runtime core; this object
// owns the surface, the input capture and the log feed it exposes.
package gui

import (
	"sync"

	"github.com/go-gl/gl/v4.5-core/gl"

	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/gfx"
	"github.com/splashmapping/splash/engine/graph"
	"github.com/splashmapping/splash/engine/texture"
	"github.com/splashmapping/splash/engine/userinput"
)

// Gui renders the control surface into an FBO sampled by its window.
type Gui struct {
	graph.BaseObject

	size    [2]int32
	visible bool

	fbo *gfx.Framebuffer

	logMu   sync.Mutex
	logFeed []string

	keyboard *userinput.Keyboard
	mouse    *userinput.Mouse
}

var _ graph.Object = (*Gui)(nil)
var _ texture.Source = (*Gui)(nil)

// New creates the Gui attached to the master Scene.
func New(rootObj graph.Root) *Gui {
	g := &Gui{size: [2]int32{732, 932}}
	g.Init(rootObj, "gui", graph.CategoryControl, graph.PriorityGUI)
	g.registerAttributes()
	return g
}

func (g *Gui) registerAttributes() {
	g.AddAttribute("size", "nn", func(args common.Values) bool {
		w, h := int32(args[0].AsInt()), int32(args[1].AsInt())
		if w <= 0 || h <= 0 {
			return false
		}
		g.size = [2]int32{w, h}
		return true
	}, func() common.Values {
		return common.Values{common.I(g.size[0]), common.I(g.size[1])}
	}).Doc("Size of the control surface")

	g.AddAttribute("show", "n", func(args common.Values) bool {
		g.visible = args[0].AsBool()
		return true
	}, func() common.Values {
		return common.Values{common.B(g.visible)}
	}).Doc("Show or hide the control surface").NotSavable()

	g.AddAttribute("logEntry", "s", func(args common.Values) bool {
		g.AppendLog(args[0].AsString())
		return true
	}, nil).Doc("Append one line to the log feed").NotSavable()
}

// AttachInputs wires the gui to the scene's input aggregators.
func (g *Gui) AttachInputs(keyboard *userinput.Keyboard, mouse *userinput.Mouse) {
	g.keyboard = keyboard
	g.mouse = mouse
}

// AppendLog records one log line for the feed, keeping the last 512.
func (g *Gui) AppendLog(line string) {
	g.logMu.Lock()
	g.logFeed = append(g.logFeed, line)
	if len(g.logFeed) > 512 {
		g.logFeed = g.logFeed[len(g.logFeed)-512:]
	}
	g.logMu.Unlock()
}

// LogFeed snapshots the log lines shown by the surface.
func (g *Gui) LogFeed() []string {
	g.logMu.Lock()
	defer g.logMu.Unlock()
	out := make([]string, len(g.logFeed))
	copy(out, g.logFeed)
	return out
}

// Update drains the input states addressed to the surface.
func (g *Gui) Update() {
	if g.keyboard != nil {
		g.keyboard.GetState(g.Name())
	}
	if g.mouse != nil {
		g.mouse.GetState(g.Name())
	}
}

// TextureID exposes the rendered surface.
func (g *Gui) TextureID() uint32 {
	if g.fbo == nil || !g.fbo.Complete() {
		return 0
	}
	return g.fbo.ColorTexture()
}

// YCbCr implements the texture source contract.
func (g *Gui) YCbCr() bool { return false }

// Render clears the surface; the widget layer draws on top of it.
func (g *Gui) Render() {
	if !g.visible {
		return
	}
	if g.fbo == nil {
		g.fbo = gfx.NewFramebuffer(1, true)
	}
	if err := g.fbo.Setup(g.size[0], g.size[1]); err != nil {
		g.Log.Warn().Err(err).Msg("gui framebuffer incomplete")
		return
	}
	g.fbo.Bind()
	gl.ClearColor(0.08, 0.08, 0.08, 0.9)
	gl.Clear(gl.COLOR_BUFFER_BIT)
	g.fbo.Unbind()
}

// Destroy releases the surface, then the base object.
func (g *Gui) Destroy() {
	if g.fbo != nil {
		g.fbo.Destroy()
	}
	g.BaseObject.Destroy()
}
