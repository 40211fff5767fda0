package calibrator

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/splashmapping/splash/engine/image"
)

// HDR holds a merged high-dynamic-range capture: three float64 channels
// per pixel, in scene-linear radiance.
type HDR struct {
	Width  int
	Height int
	Pix    []float64 // len = Width * Height * 3
}

// Empty reports whether the capture failed.
func (h *HDR) Empty() bool { return h == nil || len(h.Pix) == 0 }

// Luminance returns the Rec.601 luminance of one pixel.
func (h *HDR) Luminance(i int) float64 {
	p := h.Pix[i*3:]
	return 0.299*p[0] + 0.587*p[1] + 0.114*p[2]
}

// ldrFrame is one bracketed capture with its exposure time.
type ldrFrame struct {
	spec     image.Spec
	pix      []byte
	exposure float64
}

// channelAt reads one normalized channel value of an 8-bit RGBA frame.
func (f *ldrFrame) channelAt(pixel, channel int) float64 {
	return float64(f.pix[pixel*4+channel]) / 255.0
}

// crf holds the recovered camera response: per channel, the log exposure
// of each of the 256 input levels.
type crf struct {
	g [3][256]float64
}

// identityCRF assumes a linear sensor; used before the Debevec solve ran.
func identityCRF() *crf {
	var c crf
	for ch := 0; ch < 3; ch++ {
		for z := 0; z < 256; z++ {
			c.g[ch][z] = math.Log(math.Max(float64(z)/255.0, 1e-4))
		}
	}
	return &c
}

// weight is the Debevec triangle weighting favoring mid-range values.
func weight(z float64) float64 {
	if z <= 0.5 {
		return 2 * z
	}
	return 2 * (1 - z)
}

// mergeHDR fuses bracketed LDR frames through the response function.
func mergeHDR(frames []ldrFrame, response *crf) *HDR {
	if len(frames) == 0 {
		return &HDR{}
	}
	w := int(frames[0].spec.Width)
	h := int(frames[0].spec.Height)
	out := &HDR{Width: w, Height: h, Pix: make([]float64, w*h*3)}

	for p := 0; p < w*h; p++ {
		for ch := 0; ch < 3; ch++ {
			var num, den float64
			for _, f := range frames {
				z := f.channelAt(p, ch)
				wz := weight(z)
				if wz <= 0 {
					continue
				}
				level := int(z * 255)
				num += wz * (response.g[ch][level] - math.Log(f.exposure))
				den += wz
			}
			if den > 0 {
				out.Pix[p*3+ch] = math.Exp(num / den)
			}
		}
	}
	return out
}

// Debevec solve constants.
const (
	crfSampleCount = 64
	crfSmoothness  = 10.0
)

// solveCRF recovers the per-channel response curves from the bracketed
// frames with a damped least-squares over log exposures. A failed solve
// (singular system) returns nil and the previous response is preserved.
func solveCRF(frames []ldrFrame) *crf {
	if len(frames) < 2 {
		return nil
	}
	w := int(frames[0].spec.Width)
	h := int(frames[0].spec.Height)
	total := w * h
	stride := total / crfSampleCount
	if stride == 0 {
		stride = 1
	}

	var out crf
	for ch := 0; ch < 3; ch++ {
		g, ok := solveChannel(frames, ch, stride, total)
		if !ok {
			return nil
		}
		out.g[ch] = g
	}
	return &out
}

// solveChannel sets up the Debevec system for one channel: one equation
// per (sample, exposure) pair, 254 smoothness equations, one anchor fixing
// g(128) = 0.
func solveChannel(frames []ldrFrame, ch, stride, total int) (g [256]float64, ok bool) {
	samples := make([]int, 0, crfSampleCount)
	for p := 0; p < total && len(samples) < crfSampleCount; p += stride {
		samples = append(samples, p)
	}

	n := 256
	rows := len(samples)*len(frames) + n - 2 + 1
	cols := n + len(samples)
	a := mat.NewDense(rows, cols, nil)
	b := mat.NewVecDense(rows, nil)

	row := 0
	for si, p := range samples {
		for _, f := range frames {
			z := f.channelAt(p, ch)
			wz := weight(z) + 1e-3
			level := int(z * 255)
			a.Set(row, level, wz)
			a.Set(row, n+si, -wz)
			b.SetVec(row, wz*math.Log(f.exposure))
			row++
		}
	}

	// Smoothness on the second derivative of g.
	for z := 1; z < n-1; z++ {
		wz := crfSmoothness * (weight(float64(z)/255.0) + 1e-3)
		a.Set(row, z-1, wz)
		a.Set(row, z, -2*wz)
		a.Set(row, z+1, wz)
		row++
	}

	// Anchor the curve's middle.
	a.Set(row, n/2, 1)

	var solution mat.VecDense
	if err := safeSolve(&solution, a, b); err != nil {
		return g, false
	}
	for z := 0; z < n; z++ {
		g[z] = solution.AtVec(z)
	}
	return g, true
}

// safeSolve runs a least-squares solve, converting gonum panics on
// ill-conditioned systems into errors so a failed calibration never takes
// the Scene down.
func safeSolve(dst *mat.VecDense, a *mat.Dense, b *mat.VecDense) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errSolverFailed
		}
	}()
	var qr mat.QR
	qr.Factorize(a)
	if solveErr := qr.SolveVecTo(dst, false, b); solveErr != nil {
		return solveErr
	}
	return nil
}
