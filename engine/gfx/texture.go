package gfx

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v4.5-core/gl"
)

// S3TC enums live in the EXT_texture_compression_s3tc extension and are
// not part of the core profile bindings.
const (
	compressedRGBADXT5 uint32 = 0x83F3
	compressedRGBDXT1  uint32 = 0x83F0
)

// TextureSpec describes the pixel storage of a texture, mirroring the
// serialized image header.
type TextureSpec struct {
	Width      int32
	Height     int32
	Channels   uint16
	Bpp        uint16
	Format     string // RGBA, sRGBA, R16, YUYV, UYVY, D, DXT1, DXT5
	VideoFrame bool
}

// Compressed reports whether the spec holds block-compressed content.
func (s TextureSpec) Compressed() bool {
	return s.Format == "DXT1" || s.Format == "DXT5"
}

// glFormats resolves the internal format, pixel format and pixel type for
// the spec.
func (s TextureSpec) glFormats() (internal int32, format, xtype uint32, err error) {
	switch s.Format {
	case "RGBA":
		return gl.RGBA8, gl.RGBA, gl.UNSIGNED_INT_8_8_8_8_REV, nil
	case "sRGBA":
		return gl.SRGB8_ALPHA8, gl.RGBA, gl.UNSIGNED_INT_8_8_8_8_REV, nil
	case "R16":
		return gl.R16, gl.RED, gl.UNSIGNED_SHORT, nil
	case "YUYV", "UYVY":
		// Two-channel byte path; the colorspace conversion runs in the
		// sampling shader, keyed by the YCbCr uniform.
		return gl.RG8, gl.RG, gl.UNSIGNED_BYTE, nil
	case "D":
		return gl.DEPTH_COMPONENT32F, gl.DEPTH_COMPONENT, gl.FLOAT, nil
	case "DXT1":
		return int32(compressedRGBDXT1), 0, 0, nil
	case "DXT5":
		return int32(compressedRGBADXT5), 0, 0, nil
	default:
		return 0, 0, 0, fmt.Errorf("%w: unknown pixel format %q", ErrResource, s.Format)
	}
}

// Texture owns one GL texture and the two-PBO upload ring pushing new
// image content to it asynchronously from the texture-upload thread.
type Texture struct {
	id        uint32
	spec      TextureSpec
	filtering bool

	pbos       [2]uint32
	pboPtrs    [2]unsafe.Pointer
	pboSize    int
	pboIndex   int
	persistent bool

	initialized bool
}

// NewTexture creates an empty texture with linear filtering enabled.
func NewTexture() *Texture {
	t := &Texture{filtering: true}
	gl.GenTextures(1, &t.id)
	gl.GenBuffers(2, &t.pbos[0])
	return t
}

// ID returns the GL texture name.
func (t *Texture) ID() uint32 { return t.id }

// Spec returns the current storage spec.
func (t *Texture) Spec() TextureSpec { return t.spec }

// Initialized reports whether the texture has valid storage; uninitialized
// textures refuse to be sampled.
func (t *Texture) Initialized() bool { return t.initialized }

// SetFiltering toggles mipmapped minification.
func (t *Texture) SetFiltering(enabled bool) { t.filtering = enabled }

// Reset (re)allocates texture storage for the given spec.
func (t *Texture) Reset(spec TextureSpec) error {
	internal, format, xtype, err := spec.glFormats()
	if err != nil {
		t.initialized = false
		return err
	}

	gl.BindTexture(gl.TEXTURE_2D, t.id)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	if t.filtering && !spec.Compressed() {
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR_MIPMAP_LINEAR)
	} else {
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	}

	if spec.Compressed() {
		gl.CompressedTexImage2D(gl.TEXTURE_2D, 0, uint32(internal), spec.Width, spec.Height, 0, 0, nil)
	} else {
		gl.TexImage2D(gl.TEXTURE_2D, 0, internal, spec.Width, spec.Height, 0, format, xtype, nil)
	}
	gl.BindTexture(gl.TEXTURE_2D, 0)

	t.spec = spec
	t.initialized = true
	return nil
}

// resizePBOs (re)allocates the two staging buffers, persistently mapped
// when the size changed.
func (t *Texture) resizePBOs(size int) error {
	if size == t.pboSize && t.persistent {
		return nil
	}
	if t.persistent {
		// Persistent maps outlive the data store only until reallocation.
		gl.DeleteBuffers(2, &t.pbos[0])
		gl.GenBuffers(2, &t.pbos[0])
		t.persistent = false
	}
	flags := uint32(gl.MAP_WRITE_BIT | gl.MAP_PERSISTENT_BIT | gl.MAP_COHERENT_BIT)
	for i := 0; i < 2; i++ {
		gl.BindBuffer(gl.PIXEL_UNPACK_BUFFER, t.pbos[i])
		gl.BufferStorage(gl.PIXEL_UNPACK_BUFFER, size, nil, flags)
		ptr := gl.MapBufferRange(gl.PIXEL_UNPACK_BUFFER, 0, size, flags)
		if ptr == nil {
			gl.BindBuffer(gl.PIXEL_UNPACK_BUFFER, 0)
			return fmt.Errorf("%w: PBO map failed", ErrResource)
		}
		t.pboPtrs[i] = ptr
	}
	gl.BindBuffer(gl.PIXEL_UNPACK_BUFFER, 0)
	t.pboSize = size
	t.persistent = true
	return nil
}

// Upload pushes new content through the PBO ring: the pixels are copied
// into the currently mapped staging buffer, the texture is updated from
// that same buffer, and the ring advances so the next upload fills the
// other one. Mipmaps are regenerated iff
// filtering is enabled and the format is not compressed.
func (t *Texture) Upload(pixels []byte, spec TextureSpec) error {
	if spec != t.spec || !t.initialized {
		if err := t.Reset(spec); err != nil {
			return err
		}
	}
	if len(pixels) == 0 {
		return nil
	}
	if err := t.resizePBOs(len(pixels)); err != nil {
		return err
	}

	// Fill the current staging buffer while the GPU may still read the
	// other one.
	dst := unsafe.Slice((*byte)(t.pboPtrs[t.pboIndex]), len(pixels))
	copy(dst, pixels)
	src := t.pbos[t.pboIndex]
	gl.BindBuffer(gl.PIXEL_UNPACK_BUFFER, src)
	gl.BindTexture(gl.TEXTURE_2D, t.id)
	if spec.Compressed() {
		internal, _, _, _ := spec.glFormats()
		gl.CompressedTexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, spec.Width, spec.Height, uint32(internal), int32(len(pixels)), nil)
	} else {
		_, format, xtype, _ := spec.glFormats()
		gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, spec.Width, spec.Height, format, xtype, nil)
	}
	if t.filtering && !spec.Compressed() {
		gl.GenerateMipmap(gl.TEXTURE_2D)
	}
	gl.BindTexture(gl.TEXTURE_2D, 0)
	gl.BindBuffer(gl.PIXEL_UNPACK_BUFFER, 0)

	t.pboIndex = (t.pboIndex + 1) % 2
	return nil
}

// Bind activates the texture on the given unit.
func (t *Texture) Bind(unit uint32) {
	gl.ActiveTexture(gl.TEXTURE0 + unit)
	gl.BindTexture(gl.TEXTURE_2D, t.id)
}

// Destroy releases the texture and its staging buffers.
func (t *Texture) Destroy() {
	if t.id != 0 {
		gl.DeleteTextures(1, &t.id)
		gl.DeleteBuffers(2, &t.pbos[0])
		t.id = 0
		t.initialized = false
	}
}
