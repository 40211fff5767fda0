package calibrator

import (
	"fmt"
	stdimage "image"
	"math"

	"github.com/anthonynsimon/bild/blur"

	"github.com/splashmapping/splash/common"
)

// captureLDR triggers one capture at the given exposure and returns the
// frame. An empty capture aborts the run.
func (c *Calibrator) captureLDR(exposure float64) (ldrFrame, error) {
	dev := c.captureDevice
	if dev == nil {
		return ldrFrame{}, ErrCalibration
	}
	dev.SetAttribute("shutterspeed", common.Values{common.R(exposure)})
	if !dev.SetAttribute("capture", common.Values{}) {
		return ldrFrame{}, fmt.Errorf("%w: capture returned no image", ErrCalibration)
	}
	spec, pix := dev.PixelData()
	if len(pix) == 0 || spec.Channels != 4 || spec.Bpp != 32 {
		return ldrFrame{}, fmt.Errorf("%w: capture returned no usable image", ErrCalibration)
	}
	return ldrFrame{spec: spec, pix: pix, exposure: exposure}, nil
}

// findCorrectExposure iteratively adjusts the shutter speed until the
// central 20% luminance lies in [100, 160] on an 8-bit scale. Returns the
// found exposure, or 0 if the shutter could not be updated within the
// iteration cap.
func (c *Calibrator) findCorrectExposure() float64 {
	exposure := c.captureDevice.Shutterspeed()
	for iter := 0; iter < MaxShutterspeedIterations; iter++ {
		frame, err := c.captureLDR(exposure)
		if err != nil {
			return 0
		}
		lum := centralLuminance(&frame)
		if lum >= targetExposureLow && lum <= targetExposureHigh {
			return exposure
		}

		next := exposure
		if lum < targetExposureLow {
			next *= ShutterspeedStep
		} else {
			next /= ShutterspeedStep
		}
		c.captureDevice.SetAttribute("shutterspeed", common.Values{common.R(next)})
		applied := c.captureDevice.Shutterspeed()
		if applied == exposure {
			// The device refused the update; retrying cannot converge.
			return 0
		}
		exposure = applied
	}
	return 0
}

// centralLuminance averages the 8-bit luminance over the central 20% of
// the frame.
func centralLuminance(f *ldrFrame) float64 {
	w, h := int(f.spec.Width), int(f.spec.Height)
	x0, x1 := int(float64(w)*0.4), int(float64(w)*0.6)
	y0, y1 := int(float64(h)*0.4), int(float64(h)*0.6)
	var sum float64
	var count int
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			p := y*w + x
			r := f.channelAt(p, 0)
			g := f.channelAt(p, 1)
			b := f.channelAt(p, 2)
			sum += (0.299*r + 0.587*g + 0.114*b) * 255
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// captureBracketed shoots n LDR frames geometrically spaced around the
// current exposure by step ev.
func (c *Calibrator) captureBracketed(n int, step float64) []ldrFrame {
	base := c.captureDevice.Shutterspeed()
	frames := make([]ldrFrame, 0, n)
	for i := 0; i < n; i++ {
		exposure := base * math.Pow(2, step*float64(i-n/2))
		frame, err := c.captureLDR(exposure)
		if err != nil {
			c.Log.Warn().Err(err).Msg("bracketed capture failed")
			return nil
		}
		frames = append(frames, frame)
	}
	// Restore the metered exposure.
	c.captureDevice.SetAttribute("shutterspeed", common.Values{common.R(base)})
	return frames
}

// captureHDR shoots one merged HDR image.
func (c *Calibrator) captureHDR() *HDR {
	frames := c.captureBracketed(c.imagePerHDR, c.hdrStep)
	if len(frames) == 0 {
		return &HDR{}
	}
	response := c.response
	if response == nil {
		response = identityCRF()
	}
	return mergeHDR(frames, response)
}

// calibrateCamera detects one camera's region of interest, then sweeps
// its response curves.
func (c *Calibrator) calibrateCamera(cam string, all []string) (*calibrationParams, error) {
	rootObj := c.Root()
	p := &calibrationParams{camName: cam}

	setColor := func(name string, r, g, b float64) {
		rootObj.Set(name, "flashBG", common.Values{common.I(0)})
		rootObj.Set(name, "clearColor", common.Values{common.R(r), common.R(g), common.R(b), common.R(1.0)})
	}

	// Step 3: ROI mask from the difference between this camera lit alone
	// and all the others lit.
	setColor(cam, 1, 1, 1)
	for _, other := range all {
		if other != cam {
			setColor(other, 0, 0, 0)
		}
	}
	alone := c.captureHDR()
	if alone.Empty() {
		return nil, fmt.Errorf("%w: empty ROI capture", ErrCalibration)
	}

	setColor(cam, 0, 0, 0)
	for _, other := range all {
		if other != cam {
			setColor(other, 1, 1, 1)
		}
	}
	others := c.captureHDR()
	if others.Empty() {
		return nil, fmt.Errorf("%w: empty ROI capture", ErrCalibration)
	}

	p.roi = c.detectROI(alone, others)

	// Step 4: per-channel response sweep over the ROI.
	samples := c.colorCurveSamples
	for ch := 0; ch < 3; ch++ {
		for s := 0; s < samples; s++ {
			v := float64(s) / float64(samples-1)
			var rgb [3]float64
			rgb[ch] = v
			setColor(cam, rgb[0], rgb[1], rgb[2])
			hdr := c.captureHDR()
			if hdr.Empty() {
				return nil, fmt.Errorf("%w: empty curve capture", ErrCalibration)
			}
			mean := meanOverROI(hdr, p.roi)
			p.curves[ch] = append(p.curves[ch], curvePoint{in: v, out: mean})
		}
	}

	// White point and luminance bounds from a full-white capture.
	setColor(cam, 1, 1, 1)
	white := c.captureHDR()
	if white.Empty() {
		return nil, fmt.Errorf("%w: empty white capture", ErrCalibration)
	}
	p.whitePoint = meanOverROI(white, p.roi)
	p.maxLum = 0.299*p.whitePoint[0] + 0.587*p.whitePoint[1] + 0.114*p.whitePoint[2]
	setColor(cam, 0, 0, 0)
	dark := c.captureHDR()
	if !dark.Empty() {
		mean := meanOverROI(dark, p.roi)
		p.minLum = 0.299*mean[0] + 0.587*mean[1] + 0.114*mean[2]
	}
	return p, nil
}

// detectROI thresholds the blurred luminance difference, doubling the
// luminance window until the mask covers at least minimumROIArea of the
// image.
func (c *Calibrator) detectROI(alone, others *HDR) []bool {
	total := alone.Width * alone.Height
	diff := make([]float64, total)
	maxDiff := 0.0
	for i := 0; i < total; i++ {
		d := alone.Luminance(i) - others.Luminance(i)*c.displayDetection
		if d < 0 {
			d = 0
		}
		diff[i] = d
		if d > maxDiff {
			maxDiff = d
		}
	}
	if maxDiff == 0 {
		return make([]bool, total)
	}

	diff = blurDifference(diff, alone.Width, alone.Height, maxDiff)

	mask := make([]bool, total)
	threshold := maxDiff
	for {
		area := 0
		for i, d := range diff {
			mask[i] = d >= threshold
			if mask[i] {
				area++
			}
		}
		if float64(area) >= c.minimumROIArea*float64(total) || threshold < 1e-6 {
			break
		}
		threshold /= 2
	}
	return mask
}

// blurDifference smooths the difference map so isolated hot pixels do not
// define the ROI.
func blurDifference(diff []float64, w, h int, maxDiff float64) []float64 {
	gray := stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))
	for i, d := range diff {
		v := uint8(math.Min(d/maxDiff, 1) * 255)
		gray.Pix[i*4] = v
		gray.Pix[i*4+1] = v
		gray.Pix[i*4+2] = v
		gray.Pix[i*4+3] = 255
	}
	blurred := blur.Gaussian(gray, 2.0)
	out := make([]float64, len(diff))
	for i := range out {
		out[i] = float64(blurred.Pix[i*4]) / 255 * maxDiff
	}
	return out
}

// meanOverROI averages RGB over the masked pixels; a nil mask averages the
// whole image.
func meanOverROI(hdr *HDR, roi []bool) [3]float64 {
	var sum [3]float64
	count := 0
	for p := 0; p < hdr.Width*hdr.Height; p++ {
		if roi != nil && !roi[p] {
			continue
		}
		for ch := 0; ch < 3; ch++ {
			sum[ch] += hdr.Pix[p*3+ch]
		}
		count++
	}
	if count == 0 {
		return sum
	}
	for ch := 0; ch < 3; ch++ {
		sum[ch] /= float64(count)
	}
	return sum
}

// computeCalibration inverts each response curve into a LUT and equalizes
// the white balances across cameras.
func (c *Calibrator) computeCalibration(params []*calibrationParams) {
	for _, p := range params {
		for ch := 0; ch < 3; ch++ {
			p.lut[ch] = invertCurve(p.curves[ch], ch, c.colorLUTSize)
		}
	}
	equalizeWhiteBalances(params, c.equalizeMethod)
}
