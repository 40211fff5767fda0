package calibrator

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splashmapping/splash/engine/camera"
	"github.com/splashmapping/splash/engine/image"
	"github.com/splashmapping/splash/engine/root"
)

// linearCapture simulates a perfectly linear camera photographing the
// installation: the measured value is the mean of the cameras' clear
// colors scaled by the exposure.
func linearCapture(r *root.Root, gain float64) func(float64) (image.Spec, []byte) {
	return func(shutter float64) (image.Spec, []byte) {
		cams := r.ObjectsOfType("camera")
		var rgb [3]float64
		for _, cam := range cams {
			cc, _ := cam.GetAttribute("clearColor")
			if len(cc) < 3 {
				continue
			}
			for ch := 0; ch < 3; ch++ {
				rgb[ch] += cc[ch].AsFloat()
			}
		}
		if n := float64(len(cams)); n > 0 {
			for ch := range rgb {
				rgb[ch] /= n
			}
		}

		const w, h = 32, 32
		data := make([]byte, w*h*4)
		for p := 0; p < w*h; p++ {
			for ch := 0; ch < 3; ch++ {
				v := rgb[ch] * shutter * gain
				if v > 1 {
					v = 1
				}
				data[p*4+ch] = uint8(v * 255)
			}
			data[p*4+3] = 255
		}
		return image.Spec{Width: w, Height: h, Channels: 4, Bpp: 32, Format: "RGBA"}, data
	}
}

func newCalibrationRig(t *testing.T, name string) (*root.Root, *Calibrator, *image.Image) {
	t.Helper()
	r, err := root.NewRoot(name, true, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(r.Close)

	cam := camera.New(r)
	require.True(t, r.AddObject("cam1", cam))

	c := New(r)
	require.True(t, r.AddObject("calib1", c))

	grab := image.New(r)
	require.True(t, r.AddObject("grab1", grab))
	grab.SetCaptureFunc(linearCapture(r, 42.0))
	require.True(t, r.Link("grab1", "calib1"))

	return r, c, grab
}

func TestIdentityResponseYieldsIdentityCalibration(t *testing.T) {
	r, c, _ := newCalibrationRig(t, "calib_identity")
	c.colorCurveSamples = 5
	c.colorLUTSize = 64

	require.NoError(t, c.run())

	// The LUT must be the identity within quantization error.
	lut := r.Get("cam1", "colorLUT")
	require.Len(t, lut, c.colorLUTSize*3)
	for ch := 0; ch < 3; ch++ {
		for i := 0; i < c.colorLUTSize; i++ {
			expected := float64(i) / float64(c.colorLUTSize-1)
			assert.InDelta(t, expected, lut[ch*c.colorLUTSize+i].AsFloat(), 0.01,
				"channel %d entry %d", ch, i)
		}
	}

	// The mixing matrix must be the identity within 1e-3.
	mix := r.Get("cam1", "colorMixMatrix")
	require.Len(t, mix, 9)
	for i := 0; i < 9; i++ {
		expected := 0.0
		if i%4 == 0 {
			expected = 1.0
		}
		assert.InDelta(t, expected, mix[i].AsFloat(), 1e-3, "matrix entry %d", i)
	}

	// The write-back resets the color chain.
	assert.True(t, r.Get("cam1", "activateColorLUT")[0].AsBool())
	assert.InDelta(t, 1.0, r.Get("cam1", "brightness")[0].AsFloat(), 1e-6)
	assert.InDelta(t, 6500.0, r.Get("cam1", "colorTemperature")[0].AsFloat(), 1e-6)
}

func TestCalibrationIdempotent(t *testing.T) {
	r, c, _ := newCalibrationRig(t, "calib_idem")
	c.colorCurveSamples = 5
	c.colorLUTSize = 32

	require.NoError(t, c.run())
	first := r.Get("cam1", "colorLUT")
	require.NoError(t, c.run())
	second := r.Get("cam1", "colorLUT")

	require.Len(t, second, len(first))
	for i := range first {
		assert.InDelta(t, first[i].AsFloat(), second[i].AsFloat(), 0.01)
	}
}

func TestFindCorrectExposureGivesUp(t *testing.T) {
	r, err := root.NewRoot("calib_dark", true, zerolog.Nop())
	require.NoError(t, err)
	defer r.Close()

	cam := camera.New(r)
	require.True(t, r.AddObject("cam1", cam))
	c := New(r)
	require.True(t, r.AddObject("calib1", c))

	grab := image.New(r)
	require.True(t, r.AddObject("grab1", grab))
	// A dead sensor: black whatever the exposure.
	grab.SetCaptureFunc(func(float64) (image.Spec, []byte) {
		spec := image.Spec{Width: 8, Height: 8, Channels: 4, Bpp: 32, Format: "RGBA"}
		return spec, make([]byte, spec.DataSize())
	})
	require.True(t, r.Link("grab1", "calib1"))

	assert.Equal(t, 0.0, c.findCorrectExposure())
}

func TestCalibrationAbortsOnEmptyCapture(t *testing.T) {
	r, c, grab := newCalibrationRig(t, "calib_abort")
	c.colorCurveSamples = 5

	grab.SetCaptureFunc(func(float64) (image.Spec, []byte) {
		return image.Spec{}, nil
	})
	assert.Error(t, c.run())
	// No calibration was written back.
	assert.Empty(t, r.Get("cam1", "colorLUT"))
}

func TestSecondRunWhileBusyIsRejected(t *testing.T) {
	_, c, _ := newCalibrationRig(t, "calib_busy")
	require.True(t, c.running.CompareAndSwap(false, true))
	c.RunAsync() // must log and return, not deadlock
	assert.True(t, c.running.Load())
	c.running.Store(false)
}

func TestInvertCurveIdentity(t *testing.T) {
	points := make([]curvePoint, 8)
	for i := range points {
		v := float64(i) / 7
		points[i] = curvePoint{in: v, out: [3]float64{v * 10, v * 10, v * 10}}
	}
	lut := invertCurve(points, 0, 16)
	require.Len(t, lut, 16)
	for i, v := range lut {
		assert.InDelta(t, float64(i)/15, v, 1e-6)
	}
}

func TestEqualizeWeakestProjector(t *testing.T) {
	bright := &calibrationParams{whitePoint: [3]float64{2, 2, 2}, maxLum: 2}
	dim := &calibrationParams{whitePoint: [3]float64{1, 1, 1}, maxLum: 1}
	equalizeWhiteBalances([]*calibrationParams{bright, dim}, equalizeWeakestProjector)

	// The bright projector is scaled down to the weakest one.
	assert.InDelta(t, 0.5, bright.mix[0], 1e-6)
	assert.InDelta(t, 1.0, dim.mix[0], 1e-6)
}
