// Package warp implements the per-projector output deformation: a
// Bézier-like control lattice applied between camera output and window
// input.
package warp

import (
	"sync"

	"github.com/chewxy/math32"
	"github.com/go-gl/gl/v4.5-core/gl"

	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/gfx"
	"github.com/splashmapping/splash/engine/graph"
	"github.com/splashmapping/splash/engine/texture"
)

// Warp deforms its input texture through a control lattice and exposes
// the result as a texture source for windows.
type Warp struct {
	graph.BaseObject

	input texture.Source

	patchResolution int
	patchWidth      int
	patchHeight     int
	control         []float32 // flat (x, y) pairs, row-major, in [-1, 1]

	showLattice bool

	fbo        *gfx.Framebuffer
	shader     *gfx.Shader
	shaderOnce sync.Once

	meshDirty bool
	positions []float32
	uvs       []float32
	buffers   [2]*gfx.GpuBuffer
	vao       uint32
}

var _ graph.Object = (*Warp)(nil)
var _ texture.Source = (*Warp)(nil)

// New creates a Warp attached to the root, with an identity 2x2 lattice.
func New(rootObj graph.Root) *Warp {
	w := &Warp{
		patchResolution: 64,
		patchWidth:      2,
		patchHeight:     2,
	}
	w.Init(rootObj, "warp", graph.CategoryOther, graph.PriorityPostCamera)
	w.control = identityLattice(w.patchWidth, w.patchHeight)
	w.registerAttributes()
	w.meshDirty = true
	return w
}

func (w *Warp) registerAttributes() {
	w.AddAttribute("patchResolution", "n", func(args common.Values) bool {
		v := int(args[0].AsInt())
		if v < 4 || v > 512 {
			return false
		}
		w.patchResolution = v
		w.meshDirty = true
		return true
	}, func() common.Values {
		return common.Values{common.I(w.patchResolution)}
	}).Doc("Subdivision level of the warp patch")

	w.AddAttribute("patchSize", "nn", func(args common.Values) bool {
		cols, rows := int(args[0].AsInt()), int(args[1].AsInt())
		if cols < 2 || rows < 2 || cols > 16 || rows > 16 {
			return false
		}
		w.patchWidth = cols
		w.patchHeight = rows
		w.control = identityLattice(cols, rows)
		w.meshDirty = true
		return true
	}, func() common.Values {
		return common.Values{common.I(w.patchWidth), common.I(w.patchHeight)}
	}).Doc("Dimensions of the control lattice")

	w.AddAttribute("patchControl", "", func(args common.Values) bool {
		if len(args) != w.patchWidth*w.patchHeight*2 {
			return false
		}
		control := make([]float32, len(args))
		for i, v := range args {
			control[i] = float32(v.AsFloat())
		}
		w.control = control
		w.meshDirty = true
		return true
	}, func() common.Values {
		out := make(common.Values, len(w.control))
		for i, v := range w.control {
			out[i] = common.R(v)
		}
		return out
	}).Doc("Control points of the lattice, a flat list of coordinate pairs")

	w.AddAttribute("showControlLattice", "n", func(args common.Values) bool {
		w.showLattice = args[0].AsBool()
		return true
	}, func() common.Values {
		return common.Values{common.B(w.showLattice)}
	}).Doc("Highlight the control lattice over the output").NotSavable()
}

// TryLink accepts any texture source, typically a camera.
func (w *Warp) TryLink(o graph.Object) bool {
	src, ok := o.(texture.Source)
	if !ok {
		return false
	}
	if !w.BaseObject.TryLink(o) {
		return false
	}
	w.input = src
	return true
}

func (w *Warp) TryUnlink(o graph.Object) {
	if src, ok := o.(texture.Source); ok && w.input == src {
		w.input = nil
	}
	w.BaseObject.TryUnlink(o)
}

// PickControlPoint returns the index of the control point nearest to the
// given normalized cursor position in [-1, 1].
func (w *Warp) PickControlPoint(x, y float32) int {
	best := 0
	bestDist := float32(math32.MaxFloat32)
	for i := 0; i < len(w.control)/2; i++ {
		dx := w.control[i*2] - x
		dy := w.control[i*2+1] - y
		d := dx*dx + dy*dy
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// EvalPatch evaluates the Bézier lattice at parametric (u, v) in [0, 1].
func (w *Warp) EvalPatch(u, v float32) (float32, float32) {
	var x, y float32
	n := w.patchWidth - 1
	m := w.patchHeight - 1
	for j := 0; j <= m; j++ {
		bv := bernstein(m, j, v)
		for i := 0; i <= n; i++ {
			bu := bernstein(n, i, u)
			idx := (j*w.patchWidth + i) * 2
			x += bu * bv * w.control[idx]
			y += bu * bv * w.control[idx+1]
		}
	}
	return x, y
}

// rebuildMesh tessellates the deformed patch into the draw buffers.
func (w *Warp) rebuildMesh() {
	res := w.patchResolution
	w.positions = w.positions[:0]
	w.uvs = w.uvs[:0]

	emit := func(iu, iv int) {
		u := float32(iu) / float32(res)
		v := float32(iv) / float32(res)
		x, y := w.EvalPatch(u, v)
		w.positions = append(w.positions, x, y, 0, 1)
		w.uvs = append(w.uvs, u, v)
	}

	for iv := 0; iv < res; iv++ {
		for iu := 0; iu < res; iu++ {
			emit(iu, iv)
			emit(iu+1, iv)
			emit(iu+1, iv+1)
			emit(iu, iv)
			emit(iu+1, iv+1)
			emit(iu, iv+1)
		}
	}
	w.meshDirty = false
}

// TextureID exposes the warped output for windows.
func (w *Warp) TextureID() uint32 {
	if w.fbo == nil || !w.fbo.Complete() {
		return 0
	}
	return w.fbo.ColorTexture()
}

// YCbCr implements the texture source contract.
func (w *Warp) YCbCr() bool { return false }

// Render draws the deformed patch sampling the input texture.
func (w *Warp) Render() {
	if w.input == nil || w.input.TextureID() == 0 {
		return
	}
	w.shaderOnce.Do(func() {
		s, err := gfx.NewShader(gfx.VertexSourceQuad, gfx.FragmentSourceWarp)
		if err != nil {
			w.Log.Error().Err(err).Msg("warp shader failed to build")
			return
		}
		w.shader = s
	})
	if w.shader == nil {
		return
	}
	if w.fbo == nil {
		w.fbo = gfx.NewFramebuffer(1, false)
	}
	if err := w.fbo.Setup(1920, 1080); err != nil {
		w.Log.Warn().Err(err).Msg("warp framebuffer incomplete")
		return
	}

	if w.meshDirty || w.buffers[0] == nil {
		w.rebuildMesh()
		if w.buffers[0] == nil {
			w.buffers[0] = gfx.NewGpuBuffer(4, nil)
			w.buffers[1] = gfx.NewGpuBuffer(2, nil)
			gl.GenVertexArrays(1, &w.vao)
			gl.BindVertexArray(w.vao)
			gl.BindBuffer(gl.ARRAY_BUFFER, w.buffers[0].ID())
			gl.VertexAttribPointerWithOffset(0, 4, gl.FLOAT, false, 0, 0)
			gl.EnableVertexAttribArray(0)
			gl.BindBuffer(gl.ARRAY_BUFFER, w.buffers[1].ID())
			gl.VertexAttribPointerWithOffset(1, 2, gl.FLOAT, false, 0, 0)
			gl.EnableVertexAttribArray(1)
			gl.BindVertexArray(0)
		}
		w.buffers[0].SetContent(w.positions)
		w.buffers[1].SetContent(w.uvs)
	}

	w.fbo.Bind()
	gl.ClearColor(0, 0, 0, 1)
	gl.Clear(gl.COLOR_BUFFER_BIT)

	w.shader.Activate()
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, w.input.TextureID())
	w.shader.SetInt("_tex0", 0)
	lattice := int32(0)
	if w.showLattice {
		lattice = 1
	}
	w.shader.SetInt("_showControlLattice", lattice)

	gl.BindVertexArray(w.vao)
	gl.DrawArrays(gl.TRIANGLES, 0, int32(len(w.positions)/4))
	gl.BindVertexArray(0)
	w.shader.Deactivate()
	w.fbo.Unbind()
}

// Destroy releases GPU resources, then the base object.
func (w *Warp) Destroy() {
	if w.fbo != nil {
		w.fbo.Destroy()
	}
	if w.shader != nil {
		w.shader.Destroy()
	}
	for _, b := range w.buffers {
		if b != nil {
			b.Destroy()
		}
	}
	w.BaseObject.Destroy()
}

// identityLattice spreads cols x rows control points uniformly over the
// output square.
func identityLattice(cols, rows int) []float32 {
	out := make([]float32, 0, cols*rows*2)
	for j := 0; j < rows; j++ {
		for i := 0; i < cols; i++ {
			out = append(out,
				-1+2*float32(i)/float32(cols-1),
				-1+2*float32(j)/float32(rows-1))
		}
	}
	return out
}

// bernstein evaluates the Bernstein basis polynomial B_i^n(t).
func bernstein(n, i int, t float32) float32 {
	return float32(binomial(n, i)) * math32.Pow(t, float32(i)) * math32.Pow(1-t, float32(n-i))
}

func binomial(n, k int) int {
	if k < 0 || k > n {
		return 0
	}
	out := 1
	for i := 0; i < k; i++ {
		out = out * (n - i) / (i + 1)
	}
	return out
}
