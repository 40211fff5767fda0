// Package texture implements the texture objects sampled by cameras,
// filters and windows. TextureImage bridges an Image buffer object to a
// GL texture through the PBO upload ring, driven by the Scene's
// texture-upload thread.
package texture

import (
	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/gfx"
	"github.com/splashmapping/splash/engine/graph"
	"github.com/splashmapping/splash/engine/image"
)

// Source is what texture consumers (objects, windows, filters) need from
// any texture-producing object: the GL name and the colorspace flag.
type Source interface {
	TextureID() uint32
	YCbCr() bool
}

// TextureImage uploads the content of a linked Image object to the GPU.
type TextureImage struct {
	graph.BaseObject

	img *image.Image
	tex *gfx.Texture

	lastUpload int64
	filtering  bool
}

var _ graph.Object = (*TextureImage)(nil)
var _ Source = (*TextureImage)(nil)

// New creates a TextureImage attached to the root.
func New(rootObj graph.Root) *TextureImage {
	t := &TextureImage{filtering: true}
	t.Init(rootObj, "texture_image", graph.CategoryTexture, graph.PriorityNoRender)
	t.registerAttributes()
	return t
}

func (t *TextureImage) registerAttributes() {
	t.AddAttribute("filtering", "n", func(args common.Values) bool {
		t.filtering = args[0].AsBool()
		if t.tex != nil {
			t.tex.SetFiltering(t.filtering)
		}
		return true
	}, func() common.Values {
		return common.Values{common.B(t.filtering)}
	}).Doc("Activate mipmapped filtering for the texture")
}

// TryLink accepts an Image object as pixel source.
func (t *TextureImage) TryLink(o graph.Object) bool {
	img, ok := o.(*image.Image)
	if !ok {
		return false
	}
	if !t.BaseObject.TryLink(o) {
		return false
	}
	t.img = img
	return true
}

func (t *TextureImage) TryUnlink(o graph.Object) {
	if t.img != nil && o != nil && o.Name() == t.img.Name() {
		t.img = nil
	}
	t.BaseObject.TryUnlink(o)
}

// Image returns the linked pixel source, if any.
func (t *TextureImage) Image() *image.Image { return t.img }

// NeedsUpload reports whether the linked image holds newer content than
// the GPU copy.
func (t *TextureImage) NeedsUpload() bool {
	return t.img != nil && t.img.Timestamp() > t.lastUpload
}

// UploadIfNeeded pushes any new image content through the PBO ring. It
// must run on the texture-upload thread, inside the texture lock.
func (t *TextureImage) UploadIfNeeded() error {
	if !t.NeedsUpload() {
		return nil
	}
	if t.tex == nil {
		t.tex = gfx.NewTexture()
		t.tex.SetFiltering(t.filtering)
	}

	ts := t.img.Timestamp()
	spec, pixels := t.img.PixelData()
	if len(pixels) == 0 {
		return nil
	}
	if err := t.tex.Upload(pixels, toTextureSpec(spec)); err != nil {
		t.Log.Warn().Err(err).Msg("texture upload failed")
		return err
	}
	t.lastUpload = ts
	return nil
}

// TextureID returns the GL texture name, 0 while uninitialized.
func (t *TextureImage) TextureID() uint32 {
	if t.tex == nil || !t.tex.Initialized() {
		return 0
	}
	return t.tex.ID()
}

// YCbCr reports whether the sampling shader must convert the colorspace.
func (t *TextureImage) YCbCr() bool {
	if t.img == nil {
		return false
	}
	format := t.img.Spec().Format
	return format == "YUYV" || format == "UYVY"
}

// Destroy releases the GL texture, then the base object.
func (t *TextureImage) Destroy() {
	if t.tex != nil {
		t.tex.Destroy()
		t.tex = nil
	}
	t.BaseObject.Destroy()
}

func toTextureSpec(s image.Spec) gfx.TextureSpec {
	return gfx.TextureSpec{
		Width:      int32(s.Width),
		Height:     int32(s.Height),
		Channels:   s.Channels,
		Bpp:        s.Bpp,
		Format:     s.Format,
		VideoFrame: s.VideoFrame,
	}
}
