package gfx

import (
	"fmt"

	"github.com/go-gl/gl/v4.5-core/gl"
)

// Framebuffer owns an FBO with one color texture and one depth texture,
// optionally multisampled, as rendered into by cameras and filters.
type Framebuffer struct {
	fbo     uint32
	color   uint32
	depth   uint32
	width   int32
	height  int32
	samples int32
	srgb    bool

	complete bool
}

// NewFramebuffer allocates an FBO; Setup must be called before use.
func NewFramebuffer(samples int32, srgb bool) *Framebuffer {
	f := &Framebuffer{samples: samples, srgb: srgb}
	gl.GenFramebuffers(1, &f.fbo)
	gl.GenTextures(1, &f.color)
	gl.GenTextures(1, &f.depth)
	return f
}

// ColorTexture returns the GL name of the color attachment.
func (f *Framebuffer) ColorTexture() uint32 { return f.color }

// Size returns the attachment dimensions.
func (f *Framebuffer) Size() (int32, int32) { return f.width, f.height }

// Complete reports whether the FBO passed its completeness check. An
// incomplete framebuffer refuses to be rendered into.
func (f *Framebuffer) Complete() bool { return f.complete }

// Setup (re)allocates the attachments at the given size.
func (f *Framebuffer) Setup(width, height int32) error {
	if width == f.width && height == f.height && f.complete {
		return nil
	}
	f.width, f.height = width, height

	target := uint32(gl.TEXTURE_2D)
	if f.samples > 1 {
		target = gl.TEXTURE_2D_MULTISAMPLE
	}

	internal := int32(gl.RGBA16F)
	if f.srgb {
		internal = gl.SRGB8_ALPHA8
	}

	gl.BindTexture(target, f.color)
	if f.samples > 1 {
		gl.TexImage2DMultisample(target, f.samples, uint32(internal), width, height, true)
	} else {
		gl.TexParameteri(target, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
		gl.TexParameteri(target, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
		gl.TexImage2D(target, 0, internal, width, height, 0, gl.RGBA, gl.FLOAT, nil)
	}

	gl.BindTexture(target, f.depth)
	if f.samples > 1 {
		gl.TexImage2DMultisample(target, f.samples, gl.DEPTH_COMPONENT24, width, height, true)
	} else {
		gl.TexImage2D(target, 0, gl.DEPTH_COMPONENT24, width, height, 0, gl.DEPTH_COMPONENT, gl.FLOAT, nil)
	}
	gl.BindTexture(target, 0)

	gl.BindFramebuffer(gl.FRAMEBUFFER, f.fbo)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, target, f.color, 0)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT, target, f.depth, 0)
	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)

	if status != gl.FRAMEBUFFER_COMPLETE {
		f.complete = false
		return fmt.Errorf("%w: framebuffer incomplete (0x%x)", ErrResource, status)
	}
	f.complete = true
	return nil
}

// Bind targets subsequent draws at the FBO.
func (f *Framebuffer) Bind() {
	gl.BindFramebuffer(gl.FRAMEBUFFER, f.fbo)
	gl.Viewport(0, 0, f.width, f.height)
}

// Unbind restores the default framebuffer.
func (f *Framebuffer) Unbind() {
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
}

// BlitTo resolves the FBO into another one, typically to resolve
// multisampling before sampling the color texture.
func (f *Framebuffer) BlitTo(dst *Framebuffer) {
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, f.fbo)
	gl.BindFramebuffer(gl.DRAW_FRAMEBUFFER, dst.fbo)
	gl.BlitFramebuffer(0, 0, f.width, f.height, 0, 0, dst.width, dst.height,
		gl.COLOR_BUFFER_BIT, gl.LINEAR)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
}

// ReadPixels reads the color attachment back as RGBA float32.
func (f *Framebuffer) ReadPixels() []float32 {
	out := make([]float32, f.width*f.height*4)
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, f.fbo)
	gl.ReadPixels(0, 0, f.width, f.height, gl.RGBA, gl.FLOAT, gl.Ptr(out))
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, 0)
	return out
}

// Destroy releases the FBO and its attachments.
func (f *Framebuffer) Destroy() {
	if f.fbo != 0 {
		gl.DeleteFramebuffers(1, &f.fbo)
		gl.DeleteTextures(1, &f.color)
		gl.DeleteTextures(1, &f.depth)
		f.fbo = 0
		f.complete = false
	}
}
