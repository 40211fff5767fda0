// Package image implements the Image buffer object: a pixel payload owned
// by the World, replicated to Scenes over the Link and consumed by
// texture objects through the upload thread.
package image

import (
	"bytes"
	"encoding/binary"
	"fmt"
	stdimage "image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/graph"
)

// Spec describes the pixel storage of an image payload.
type Spec struct {
	Width      uint32
	Height     uint32
	Channels   uint16
	Bpp        uint16
	Type       uint8 // 0: uint8 per channel, 1: uint16, 2: float32
	Format     string
	VideoFrame bool
}

// BytesPerPixel derives the pixel stride from the spec.
func (s Spec) BytesPerPixel() int {
	return int(s.Bpp) / 8
}

// DataSize returns the expected payload size in bytes.
func (s Spec) DataSize() int {
	return int(s.Width) * int(s.Height) * s.BytesPerPixel()
}

// Image is a buffer object holding one frame of pixels.
type Image struct {
	graph.BufferBase

	spec Spec
	data *common.ResizableArray[byte]

	// capture, when set, produces a frame on the "capture" attribute; the
	// color calibrator points it at the installation camera.
	capture func(shutterSeconds float64) (Spec, []byte)

	shutterspeed float64
	srgb         bool
	flip         bool
}

var _ graph.BufferObject = (*Image)(nil)

// New creates an Image attached to the root, initialized with the default
// test pattern.
func New(rootObj graph.Root) *Image {
	img := &Image{shutterspeed: 1.0 / 60.0}
	img.Init(rootObj, "image", graph.CategoryImage, graph.PriorityMedia)
	img.registerAttributes()
	spec, data := Pattern(512, 512)
	img.SetImage(spec, data)
	return img
}

func (img *Image) registerAttributes() {
	img.AddAttribute("file", "s", func(args common.Values) bool {
		if err := img.readFile(args[0].AsString()); err != nil {
			img.Log.Warn().Err(err).Msg("cannot read image file")
			return false
		}
		return true
	}, nil).Doc("Path to the image file to load")

	img.AddAttribute("srgb", "n", func(args common.Values) bool {
		img.srgb = args[0].AsBool()
		return true
	}, func() common.Values {
		return common.Values{common.B(img.srgb)}
	}).Doc("Set to true if the image file is stored as sRGB")

	img.AddAttribute("flip", "n", func(args common.Values) bool {
		img.flip = args[0].AsBool()
		return true
	}, func() common.Values {
		return common.Values{common.B(img.flip)}
	}).Doc("Mirror the image vertically")

	img.AddAttribute("pattern", "nn", func(args common.Values) bool {
		spec, data := Pattern(uint32(args[0].AsInt()), uint32(args[1].AsInt()))
		img.SetImage(spec, data)
		return true
	}, nil).Doc("Fill the image with a UV test pattern of the given size").NotSavable()

	img.AddAttribute("shutterspeed", "n", func(args common.Values) bool {
		v := args[0].AsFloat()
		if v <= 0 {
			return false
		}
		img.shutterspeed = v
		return true
	}, func() common.Values {
		return common.Values{common.R(img.shutterspeed)}
	}).Doc("Exposure duration of the capture device, in seconds").NotSavable()

	img.AddAttribute("capture", "", func(common.Values) bool {
		return img.Capture()
	}, nil).Doc("Trigger a capture on the attached device").NotSavable()
}

// SetCaptureFunc attaches the frame producer backing the "capture"
// attribute.
func (img *Image) SetCaptureFunc(fn func(shutterSeconds float64) (Spec, []byte)) {
	img.capture = fn
}

// Capture produces a new frame through the capture hook.
func (img *Image) Capture() bool {
	if img.capture == nil {
		return false
	}
	spec, data := img.capture(img.shutterspeed)
	if len(data) == 0 {
		return false
	}
	img.SetImage(spec, data)
	return true
}

// Shutterspeed returns the current exposure duration in seconds.
func (img *Image) Shutterspeed() float64 { return img.shutterspeed }

// Spec returns the current pixel spec under the read lock.
func (img *Image) Spec() Spec {
	img.RW.RLock()
	defer img.RW.RUnlock()
	return img.spec
}

// SetImage replaces the payload under the write lock and bumps the
// timestamp.
func (img *Image) SetImage(spec Spec, data []byte) {
	img.RW.Lock()
	img.spec = spec
	img.data = common.ResizableArrayFrom(data)
	img.RW.Unlock()
	img.BumpTimestamp()
}

// PixelData snapshots the payload under the read lock.
func (img *Image) PixelData() (Spec, []byte) {
	img.RW.RLock()
	defer img.RW.RUnlock()
	if img.data == nil {
		return img.spec, nil
	}
	out := make([]byte, img.data.Size())
	copy(out, img.data.Data())
	return img.spec, out
}

// Update is a no-op for plain images; capture-backed subclasses refresh
// their payload here.
func (img *Image) Update() {}

// Serialize snapshots the payload: fixed header then raw pixel bytes.
func (img *Image) Serialize() *graph.Serialized {
	img.RW.RLock()
	defer img.RW.RUnlock()

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, img.spec.Width)
	binary.Write(&buf, binary.LittleEndian, img.spec.Height)
	binary.Write(&buf, binary.LittleEndian, img.spec.Channels)
	binary.Write(&buf, binary.LittleEndian, img.spec.Bpp)
	binary.Write(&buf, binary.LittleEndian, img.spec.Type)
	binary.Write(&buf, binary.LittleEndian, uint32(len(img.spec.Format)))
	buf.WriteString(img.spec.Format)
	binary.Write(&buf, binary.LittleEndian, img.Timestamp())
	videoFrame := uint8(0)
	if img.spec.VideoFrame {
		videoFrame = 1
	}
	binary.Write(&buf, binary.LittleEndian, videoFrame)
	if img.data != nil {
		buf.Write(img.data.Data())
	}

	return &graph.Serialized{
		Name:      img.Name(),
		Timestamp: img.Timestamp(),
		Data:      common.ResizableArrayFrom(buf.Bytes()),
	}
}

// Deserialize replaces the payload from a serialized frame.
func (img *Image) Deserialize(s *graph.Serialized) error {
	r := bytes.NewReader(s.Data.Data())
	var spec Spec
	var formatLen uint32
	var ts int64
	var videoFrame uint8
	if err := binary.Read(r, binary.LittleEndian, &spec.Width); err != nil {
		return fmt.Errorf("%w: image header", graph.ErrDeserialize)
	}
	binary.Read(r, binary.LittleEndian, &spec.Height)
	binary.Read(r, binary.LittleEndian, &spec.Channels)
	binary.Read(r, binary.LittleEndian, &spec.Bpp)
	binary.Read(r, binary.LittleEndian, &spec.Type)
	if err := binary.Read(r, binary.LittleEndian, &formatLen); err != nil {
		return fmt.Errorf("%w: image header", graph.ErrDeserialize)
	}
	format := make([]byte, formatLen)
	if _, err := r.Read(format); err != nil {
		return fmt.Errorf("%w: image format", graph.ErrDeserialize)
	}
	spec.Format = string(format)
	binary.Read(r, binary.LittleEndian, &ts)
	binary.Read(r, binary.LittleEndian, &videoFrame)
	spec.VideoFrame = videoFrame != 0

	pixels := make([]byte, r.Len())
	r.Read(pixels)
	if len(pixels) != spec.DataSize() {
		return fmt.Errorf("%w: image payload size %d, expected %d",
			graph.ErrDeserialize, len(pixels), spec.DataSize())
	}

	img.RW.Lock()
	img.spec = spec
	img.data = common.ResizableArrayFrom(pixels)
	img.RW.Unlock()
	img.SetTimestamp(ts)
	return nil
}

// readFile decodes an image file to RGBA.
func (img *Image) readFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	decoded, _, err := stdimage.Decode(f)
	if err != nil {
		return fmt.Errorf("cannot decode %s: %w", path, err)
	}

	bounds := decoded.Bounds()
	rgba := stdimage.NewRGBA(bounds)
	draw.Draw(rgba, bounds, decoded, bounds.Min, draw.Src)

	if img.flip {
		flipVertically(rgba)
	}

	format := "RGBA"
	if img.srgb {
		format = "sRGBA"
	}
	img.SetImage(Spec{
		Width:    uint32(bounds.Dx()),
		Height:   uint32(bounds.Dy()),
		Channels: 4,
		Bpp:      32,
		Type:     0,
		Format:   format,
	}, rgba.Pix)
	return nil
}

func flipVertically(img *stdimage.RGBA) {
	stride := img.Stride
	tmp := make([]byte, stride)
	h := img.Rect.Dy()
	for y := 0; y < h/2; y++ {
		top := img.Pix[y*stride : (y+1)*stride]
		bottom := img.Pix[(h-1-y)*stride : (h-y)*stride]
		copy(tmp, top)
		copy(top, bottom)
		copy(bottom, tmp)
	}
}

// Pattern builds the default UV test pattern: an 8x8 checkerboard with a
// red/green UV ramp.
func Pattern(width, height uint32) (Spec, []byte) {
	if width == 0 {
		width = 512
	}
	if height == 0 {
		height = 512
	}
	data := make([]byte, width*height*4)
	for y := uint32(0); y < height; y++ {
		for x := uint32(0); x < width; x++ {
			i := (y*width + x) * 4
			checker := ((x/(width/8) + y/(height/8)) % 2) * 64
			data[i+0] = uint8(x * 255 / width)
			data[i+1] = uint8(y * 255 / height)
			data[i+2] = uint8(128 + checker)
			data[i+3] = 255
		}
	}
	return Spec{Width: width, Height: height, Channels: 4, Bpp: 32, Type: 0, Format: "RGBA"}, data
}
