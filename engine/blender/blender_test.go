package blender

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/camera"
	"github.com/splashmapping/splash/engine/geometry"
	"github.com/splashmapping/splash/engine/mesh"
	"github.com/splashmapping/splash/engine/object"
	"github.com/splashmapping/splash/engine/root"
)

// buildScene wires mesh -> geometry -> object -> two cameras sharing the
// same pose, so their frusta overlap on the whole default plane.
func buildScene(t *testing.T, name string) (*root.Root, *Blender, *object.Object) {
	t.Helper()
	r, err := root.NewRoot(name, true, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(r.Close)

	m := mesh.New(r)
	require.True(t, r.AddObject("mesh1", m))
	g := geometry.New(r)
	require.True(t, r.AddObject("geom1", g))
	obj := object.New(r)
	require.True(t, r.AddObject("obj1", obj))
	cam1 := camera.New(r)
	require.True(t, r.AddObject("cam1", cam1))
	cam2 := camera.New(r)
	require.True(t, r.AddObject("cam2", cam2))

	require.True(t, r.Link("mesh1", "geom1"))
	require.True(t, r.Link("geom1", "obj1"))
	require.True(t, r.Link("obj1", "cam1"))
	require.True(t, r.Link("obj1", "cam2"))

	pose := func(cam string) {
		require.True(t, r.Set(cam, "eye", common.Values{common.R(0.0), common.R(0.0), common.R(5.0)}))
		require.True(t, r.Set(cam, "target", common.Values{common.R(0.0), common.R(0.0), common.R(0.0)}))
		require.True(t, r.Set(cam, "up", common.Values{common.R(0.0), common.R(1.0), common.R(0.0)}))
		require.True(t, r.Set(cam, "fov", common.Values{common.R(60.0)}))
	}
	pose("cam1")
	pose("cam2")

	b := New(r)
	require.True(t, r.AddObject("blender1", b))
	return r, b, obj
}

func TestBlenderOnceAccumulatesContributions(t *testing.T) {
	_, b, obj := buildScene(t, "blend_once")

	require.True(t, b.SetAttribute("mode", common.Values{common.S("once")}))
	b.Update()

	// Every object linked to a camera has vertex blending active.
	got, ok := obj.GetAttribute("activateVertexBlending")
	require.True(t, ok)
	assert.True(t, got[0].AsBool())

	// Both frusta cover the whole plane: the accumulator integrates to
	// exactly 2 everywhere.
	data := obj.Geometry().AlternativeData()
	require.Greater(t, data.VertexCount(), 0)
	for v := 0; v < data.VertexCount(); v++ {
		assert.Equal(t, float32(2), data.Annexe[v*4], "vertex %d", v)
	}
}

func TestBlenderOnceComputesOnlyOnce(t *testing.T) {
	_, b, obj := buildScene(t, "blend_once_only")

	require.True(t, b.SetAttribute("mode", common.Values{common.S("once")}))
	b.Update()
	first := obj.Geometry().AlternativeData()

	// A second tick without re-arming must not recompute.
	obj.Geometry().ResetBlending()
	b.Update()
	second := obj.Geometry().AlternativeData()
	assert.NotEqual(t, first.Annexe, second.Annexe)
}

func TestBlenderIncludesGhostCameras(t *testing.T) {
	r, b, obj := buildScene(t, "blend_ghost")

	// On the master, a projector owned by another Scene exists only as a
	// ghost; its frustum still contributes to the blending weights.
	cam2, ok := r.GetObject("cam2")
	require.True(t, ok)
	cam2.SetGhost(true)

	require.True(t, b.SetAttribute("mode", common.Values{common.S("once")}))
	b.Update()

	data := obj.Geometry().AlternativeData()
	require.Greater(t, data.VertexCount(), 0)
	for v := 0; v < data.VertexCount(); v++ {
		assert.Equal(t, float32(2), data.Annexe[v*4], "vertex %d", v)
	}
}

func TestBlenderNoopWithoutCameras(t *testing.T) {
	r, err := root.NewRoot("blend_nocam", true, zerolog.Nop())
	require.NoError(t, err)
	defer r.Close()

	b := New(r)
	require.True(t, r.AddObject("blender1", b))
	require.True(t, b.SetAttribute("mode", common.Values{common.S("once")}))
	b.Update() // must not panic nor mark anything
	assert.Equal(t, "once", b.Mode())
}

func TestBlenderDeactivation(t *testing.T) {
	_, b, obj := buildScene(t, "blend_off")

	require.True(t, b.SetAttribute("mode", common.Values{common.S("once")}))
	b.Update()

	require.True(t, b.SetAttribute("mode", common.Values{common.S("none")}))
	b.Update()

	got, ok := obj.GetAttribute("activateVertexBlending")
	require.True(t, ok)
	assert.False(t, got[0].AsBool())
}

func TestBlenderRejectsUnknownMode(t *testing.T) {
	r, err := root.NewRoot("blend_badmode", true, zerolog.Nop())
	require.NoError(t, err)
	defer r.Close()
	b := New(r)
	assert.False(t, b.SetAttribute("mode", common.Values{common.S("sometimes")}))
}
