package calibrator

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// curvePoint is one sampled (input, measured) pair of a response curve.
type curvePoint struct {
	in  float64
	out [3]float64
}

// calibrationParams accumulates the per-camera calibration state.
type calibrationParams struct {
	camName string

	roi []bool // per-pixel region-of-interest mask

	curves     [3][]curvePoint // per channel
	whitePoint [3]float64
	minLum     float64
	maxLum     float64

	lut [3][]float64
	mix [9]float64
}

// invertCurve builds a LUT of the given size mapping the wanted output
// level back to the input driving it, through an Akima spline over the
// strictly increasing measured abscissas (linear below 5 samples).
func invertCurve(points []curvePoint, channel, lutSize int) []float64 {
	xs := make([]float64, 0, len(points))
	ys := make([]float64, 0, len(points))

	sorted := make([]curvePoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].out[channel] < sorted[j].out[channel] })

	for _, p := range sorted {
		x := p.out[channel]
		if len(xs) > 0 && x <= xs[len(xs)-1] {
			continue // spline abscissas must strictly increase
		}
		xs = append(xs, x)
		ys = append(ys, p.in)
	}
	if len(xs) < 2 {
		return identityLUT(lutSize)
	}

	var predictor interp.FittablePredictor
	if len(xs) < 5 {
		predictor = &interp.PiecewiseLinear{}
	} else {
		predictor = &interp.AkimaSpline{}
	}
	if err := predictor.Fit(xs, ys); err != nil {
		return identityLUT(lutSize)
	}

	lo, hi := xs[0], xs[len(xs)-1]
	out := make([]float64, lutSize)
	for i := 0; i < lutSize; i++ {
		target := lo + (hi-lo)*float64(i)/float64(lutSize-1)
		v := predictor.Predict(target)
		out[i] = math.Max(0, math.Min(1, v))
	}
	return out
}

func identityLUT(size int) []float64 {
	out := make([]float64, size)
	for i := range out {
		out[i] = float64(i) / float64(size-1)
	}
	return out
}

// White-balance equalization policies.
const (
	equalizeWBOnly = iota
	equalizeWeakestProjector
	equalizeMaxMinLuminance
)

// luminanceConvergence stops the iterative optimizer when the change in
// minimum luminance falls below this fraction of it.
const luminanceConvergence = 0.01

// equalizeWhiteBalances computes each camera's 3x3 mixing matrix so the
// projected whites match across the installation.
func equalizeWhiteBalances(params []*calibrationParams, method int) {
	if len(params) == 0 {
		return
	}

	switch method {
	case equalizeWeakestProjector:
		target := math.Inf(1)
		for _, p := range params {
			if p.maxLum < target {
				target = p.maxLum
			}
		}
		for _, p := range params {
			scale := 1.0
			if p.maxLum > 0 {
				scale = target / p.maxLum
			}
			p.mix = scaledBalanceMatrix(p.whitePoint, scale)
		}

	case equalizeMaxMinLuminance:
		// Iteratively raise the dimmest projector until the minimum
		// luminance stops improving.
		gains := make([]float64, len(params))
		for i := range gains {
			gains[i] = 1
		}
		prevMin := 0.0
		for iter := 0; iter < 100; iter++ {
			minLum, minIdx := math.Inf(1), 0
			for i, p := range params {
				lum := p.maxLum * gains[i]
				if lum < minLum {
					minLum = lum
					minIdx = i
				}
			}
			if prevMin > 0 && math.Abs(minLum-prevMin) < luminanceConvergence*minLum {
				break
			}
			prevMin = minLum
			gains[minIdx] = math.Min(gains[minIdx]*1.05, 1.0/0.7)
		}
		for i, p := range params {
			p.mix = scaledBalanceMatrix(p.whitePoint, gains[i])
		}

	default: // equalizeWBOnly
		for _, p := range params {
			p.mix = scaledBalanceMatrix(p.whitePoint, 1)
		}
	}
}

// scaledBalanceMatrix builds a diagonal matrix normalizing the white
// point to its green channel, scaled globally.
func scaledBalanceMatrix(white [3]float64, scale float64) [9]float64 {
	ref := white[1]
	if ref <= 0 {
		ref = 1
	}
	var m [9]float64
	for c := 0; c < 3; c++ {
		gain := scale
		if white[c] > 0 {
			gain = scale * ref / white[c]
		}
		m[c*3+c] = gain
	}
	return m
}
