package image

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternSpec(t *testing.T) {
	spec, data := Pattern(64, 32)
	assert.Equal(t, uint32(64), spec.Width)
	assert.Equal(t, uint32(32), spec.Height)
	assert.Equal(t, spec.DataSize(), len(data))
	assert.Equal(t, "RGBA", spec.Format)
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	src := &Image{}
	src.SetName("img1")
	spec, data := Pattern(16, 16)
	src.SetImage(spec, data)

	s := src.Serialize()
	require.NotNil(t, s)
	assert.Equal(t, "img1", s.Name)
	assert.Equal(t, src.Timestamp(), s.Timestamp)

	dst := &Image{}
	dst.SetName("img1")
	require.NoError(t, dst.Deserialize(s))

	gotSpec, gotData := dst.PixelData()
	assert.Equal(t, spec, gotSpec)
	assert.Equal(t, data, gotData)
	assert.Equal(t, src.Timestamp(), dst.Timestamp())
}

func TestDeserializeRejectsSizeMismatch(t *testing.T) {
	src := &Image{}
	src.SetName("img1")
	spec, data := Pattern(16, 16)
	src.SetImage(spec, data)
	s := src.Serialize()
	s.Data.Resize(s.Data.Size() - 10)

	dst := &Image{}
	assert.Error(t, dst.Deserialize(s))
}

func TestCaptureHook(t *testing.T) {
	img := &Image{shutterspeed: 1.0 / 60.0}
	img.SetName("grab1")
	assert.False(t, img.Capture(), "no device attached")

	img.SetCaptureFunc(func(shutter float64) (Spec, []byte) {
		spec, data := Pattern(8, 8)
		return spec, data
	})
	before := img.Timestamp()
	require.True(t, img.Capture())
	assert.Greater(t, img.Timestamp(), before)
}

func TestTimestampIncreasesOnSetImage(t *testing.T) {
	img := &Image{}
	img.SetName("img1")
	spec, data := Pattern(8, 8)
	img.SetImage(spec, data)
	first := img.Timestamp()
	img.SetImage(spec, data)
	assert.GreaterOrEqual(t, img.Timestamp(), first)
}
