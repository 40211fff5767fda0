package warp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splashmapping/splash/common"
)

func TestIdentityLatticeEvaluation(t *testing.T) {
	w := New(nil)

	// With the identity lattice, the Bézier patch is the identity mapping
	// of the output square.
	for _, uv := range [][2]float32{{0, 0}, {1, 0}, {0.5, 0.5}, {0.25, 0.75}} {
		x, y := w.EvalPatch(uv[0], uv[1])
		assert.InDelta(t, float64(2*uv[0]-1), float64(x), 1e-5)
		assert.InDelta(t, float64(2*uv[1]-1), float64(y), 1e-5)
	}
}

func TestPickControlPoint(t *testing.T) {
	w := New(nil)
	require.True(t, w.SetAttribute("patchSize", common.Values{common.I(3), common.I(3)}))

	// Nearest control of a 3x3 identity lattice.
	assert.Equal(t, 0, w.PickControlPoint(-1, -1))
	assert.Equal(t, 4, w.PickControlPoint(0.1, -0.1))
	assert.Equal(t, 8, w.PickControlPoint(0.9, 1.1))
}

func TestPatchControlArity(t *testing.T) {
	w := New(nil)
	// Default lattice is 2x2: 8 scalars expected.
	bad := make(common.Values, 6)
	for i := range bad {
		bad[i] = common.R(0.0)
	}
	assert.False(t, w.SetAttribute("patchControl", bad))

	good := make(common.Values, 8)
	for i := range good {
		good[i] = common.R(float64(i) / 8)
	}
	assert.True(t, w.SetAttribute("patchControl", good))
}

func TestPatchSizeBounds(t *testing.T) {
	w := New(nil)
	assert.False(t, w.SetAttribute("patchSize", common.Values{common.I(1), common.I(4)}))
	assert.False(t, w.SetAttribute("patchSize", common.Values{common.I(32), common.I(4)}))
	assert.True(t, w.SetAttribute("patchSize", common.Values{common.I(4), common.I(4)}))

	got, ok := w.GetAttribute("patchSize")
	require.True(t, ok)
	assert.Equal(t, int64(4), got[0].AsInt())
}

func TestPatchResolutionBounds(t *testing.T) {
	w := New(nil)
	assert.False(t, w.SetAttribute("patchResolution", common.Values{common.I(2)}))
	assert.True(t, w.SetAttribute("patchResolution", common.Values{common.I(32)}))
}
