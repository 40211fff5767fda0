// Package filter implements the texture filter object: a shader pass
// applied between a texture source and its consumers, with basic color
// controls.
package filter

import (
	"sync"

	"github.com/go-gl/gl/v4.5-core/gl"

	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/gfx"
	"github.com/splashmapping/splash/engine/graph"
	"github.com/splashmapping/splash/engine/texture"
)

// Filter renders its input texture through the filter shader into an FBO.
type Filter struct {
	graph.BaseObject

	input texture.Source

	brightness     float32
	contrast       float32
	saturation     float32
	invertChannels bool

	size [2]int32

	fbo        *gfx.Framebuffer
	shader     *gfx.Shader
	shaderOnce sync.Once
	quadVAO    uint32
	quadBuf    *gfx.GpuBuffer
	uvBuf      *gfx.GpuBuffer
}

var _ graph.Object = (*Filter)(nil)
var _ texture.Source = (*Filter)(nil)

// New creates a Filter attached to the root.
func New(rootObj graph.Root) *Filter {
	f := &Filter{
		brightness: 1,
		contrast:   1,
		saturation: 1,
		size:       [2]int32{1920, 1080},
	}
	f.Init(rootObj, "filter", graph.CategoryOther, graph.PriorityPreCamera)
	f.registerAttributes()
	return f
}

func (f *Filter) registerAttributes() {
	f.AddAttribute("brightness", "n", func(args common.Values) bool {
		f.brightness = float32(args[0].AsFloat())
		return true
	}, func() common.Values {
		return common.Values{common.R(f.brightness)}
	}).Doc("Brightness of the filter output")

	f.AddAttribute("contrast", "n", func(args common.Values) bool {
		f.contrast = float32(args[0].AsFloat())
		return true
	}, func() common.Values {
		return common.Values{common.R(f.contrast)}
	}).Doc("Contrast of the filter output")

	f.AddAttribute("saturation", "n", func(args common.Values) bool {
		f.saturation = float32(args[0].AsFloat())
		return true
	}, func() common.Values {
		return common.Values{common.R(f.saturation)}
	}).Doc("Saturation of the filter output")

	f.AddAttribute("invertChannels", "n", func(args common.Values) bool {
		f.invertChannels = args[0].AsBool()
		return true
	}, func() common.Values {
		return common.Values{common.B(f.invertChannels)}
	}).Doc("Swap the red and blue channels")

	f.AddAttribute("sizeOverride", "nn", func(args common.Values) bool {
		w, h := int32(args[0].AsInt()), int32(args[1].AsInt())
		if w <= 0 || h <= 0 {
			return false
		}
		f.size = [2]int32{w, h}
		return true
	}, func() common.Values {
		return common.Values{common.I(f.size[0]), common.I(f.size[1])}
	}).Doc("Force the output resolution of the filter")
}

// TryLink accepts any texture source.
func (f *Filter) TryLink(o graph.Object) bool {
	src, ok := o.(texture.Source)
	if !ok {
		return false
	}
	if !f.BaseObject.TryLink(o) {
		return false
	}
	f.input = src
	return true
}

func (f *Filter) TryUnlink(o graph.Object) {
	if src, ok := o.(texture.Source); ok && f.input == src {
		f.input = nil
	}
	f.BaseObject.TryUnlink(o)
}

// TextureID exposes the filtered output.
func (f *Filter) TextureID() uint32 {
	if f.fbo == nil || !f.fbo.Complete() {
		return 0
	}
	return f.fbo.ColorTexture()
}

// YCbCr implements the texture source contract; the filter resolves any
// colorspace on the way in.
func (f *Filter) YCbCr() bool { return false }

// Render applies the filter pass.
func (f *Filter) Render() {
	if f.input == nil || f.input.TextureID() == 0 {
		return
	}
	f.shaderOnce.Do(func() {
		s, err := gfx.NewShader(gfx.VertexSourceQuad, gfx.FragmentSourceFilter)
		if err != nil {
			f.Log.Error().Err(err).Msg("filter shader failed to build")
			return
		}
		f.shader = s
		f.buildQuad()
	})
	if f.shader == nil {
		return
	}
	if f.fbo == nil {
		f.fbo = gfx.NewFramebuffer(1, false)
	}
	if err := f.fbo.Setup(f.size[0], f.size[1]); err != nil {
		f.Log.Warn().Err(err).Msg("filter framebuffer incomplete")
		return
	}

	f.fbo.Bind()
	gl.Clear(gl.COLOR_BUFFER_BIT)
	f.shader.Activate()
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, f.input.TextureID())
	f.shader.SetInt("_tex0", 0)
	f.shader.SetFloat("_brightness", f.brightness)
	f.shader.SetFloat("_contrast", f.contrast)
	f.shader.SetFloat("_saturation", f.saturation)
	invert := float32(0)
	if f.invertChannels {
		invert = 1
	}
	f.shader.SetFloat("_invertChannels", invert)

	gl.BindVertexArray(f.quadVAO)
	gl.DrawArrays(gl.TRIANGLES, 0, 6)
	gl.BindVertexArray(0)
	f.shader.Deactivate()
	f.fbo.Unbind()
}

func (f *Filter) buildQuad() {
	quad := []float32{
		-1, -1, 0, 1, 1, -1, 0, 1, 1, 1, 0, 1,
		-1, -1, 0, 1, 1, 1, 0, 1, -1, 1, 0, 1,
	}
	uvs := []float32{0, 0, 1, 0, 1, 1, 0, 0, 1, 1, 0, 1}
	f.quadBuf = gfx.NewGpuBuffer(4, quad)
	f.uvBuf = gfx.NewGpuBuffer(2, uvs)
	gl.GenVertexArrays(1, &f.quadVAO)
	gl.BindVertexArray(f.quadVAO)
	gl.BindBuffer(gl.ARRAY_BUFFER, f.quadBuf.ID())
	gl.VertexAttribPointerWithOffset(0, 4, gl.FLOAT, false, 0, 0)
	gl.EnableVertexAttribArray(0)
	gl.BindBuffer(gl.ARRAY_BUFFER, f.uvBuf.ID())
	gl.VertexAttribPointerWithOffset(1, 2, gl.FLOAT, false, 0, 0)
	gl.EnableVertexAttribArray(1)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	gl.BindVertexArray(0)
}

// Destroy releases GPU resources, then the base object.
func (f *Filter) Destroy() {
	if f.fbo != nil {
		f.fbo.Destroy()
	}
	if f.shader != nil {
		f.shader.Destroy()
	}
	f.BaseObject.Destroy()
}
