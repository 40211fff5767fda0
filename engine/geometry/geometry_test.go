package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityMatrix() []float32 {
	m := make([]float32, 16)
	m[0], m[5], m[10], m[15] = 1, 1, 1, 1
	return m
}

// translated returns the identity with a translation on x, pushing the
// default plane outside the clip volume.
func translated(x float32) []float32 {
	m := identityMatrix()
	m[12] = x
	return m
}

func TestComputeVisibilityMarksVertices(t *testing.T) {
	g := New(nil)

	g.ComputeVisibility(identityMatrix())
	data := g.AlternativeData()
	for v := 0; v < data.VertexCount(); v++ {
		assert.Equal(t, float32(1), data.Annexe[v*4+1], "vertex %d should be visible", v)
	}

	g.ComputeVisibility(translated(5))
	data = g.AlternativeData()
	for v := 0; v < data.VertexCount(); v++ {
		assert.Equal(t, float32(0), data.Annexe[v*4+1], "vertex %d should be culled", v)
	}
}

func TestBlendingContributionAccumulates(t *testing.T) {
	g := New(nil)
	g.ResetBlending()

	// Two cameras seeing the whole plane: the accumulator integrates to 2.
	g.AddBlendingContribution(identityMatrix())
	g.AddBlendingContribution(identityMatrix())
	data := g.AlternativeData()
	for v := 0; v < data.VertexCount(); v++ {
		assert.Equal(t, float32(2), data.Annexe[v*4], "vertex %d", v)
	}

	// A camera looking elsewhere adds nothing.
	g.AddBlendingContribution(translated(5))
	data = g.AlternativeData()
	for v := 0; v < data.VertexCount(); v++ {
		assert.Equal(t, float32(2), data.Annexe[v*4])
	}
}

func TestResetBlendingClearsAccumulator(t *testing.T) {
	g := New(nil)
	g.AddBlendingContribution(identityMatrix())
	g.ResetBlending()
	data := g.AlternativeData()
	for v := 0; v < data.VertexCount(); v++ {
		assert.Equal(t, float32(0), data.Annexe[v*4])
	}
}

func TestTessellationSubdividesBoundaryTriangles(t *testing.T) {
	g := New(nil)
	beforeData := g.AlternativeData()
	before := beforeData.VertexCount()

	// A frustum covering only half the plane crosses its triangles.
	g.Tessellate(translated(1), 1)
	afterData := g.AlternativeData()
	after := afterData.VertexCount()
	assert.Greater(t, after, before)

	// Fully inside: no triangle is split.
	g.ResetTessellation()
	g.Tessellate(identityMatrix(), 3)
	finalData := g.AlternativeData()
	assert.Equal(t, before, finalData.VertexCount())
}

func TestResetTessellationRestoresBaseMesh(t *testing.T) {
	g := New(nil)
	baseData := g.AlternativeData()
	base := baseData.VertexCount()
	g.Tessellate(translated(1), 2)
	afterData := g.AlternativeData()
	require.Greater(t, afterData.VertexCount(), base)
	g.ResetTessellation()
	resetData := g.AlternativeData()
	assert.Equal(t, base, resetData.VertexCount())
}

func TestSerializeDeserializeIntoAlternativeBuffers(t *testing.T) {
	src := New(nil)
	src.SetName("geom1")
	src.Tessellate(translated(1), 1)
	src.AddBlendingContribution(identityMatrix())
	s := src.Serialize()

	dst := New(nil)
	dst.SetName("geom1")
	require.NoError(t, dst.Deserialize(s))

	got := dst.AlternativeData()
	want := src.AlternativeData()
	assert.Equal(t, want.Vertices, got.Vertices)
	assert.Equal(t, want.Annexe, got.Annexe)
}
