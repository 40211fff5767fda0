package mesh

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	src := &Mesh{}
	src.SetName("mesh1")
	src.SetData(Plane())

	s := src.Serialize()
	require.NotNil(t, s)
	assert.Equal(t, "mesh1", s.Name)
	assert.Equal(t, src.Timestamp(), s.Timestamp)

	dst := &Mesh{}
	dst.SetName("mesh1")
	require.NoError(t, dst.Deserialize(s))

	// Content is byte-equal and the timestamp is preserved.
	got := dst.Data()
	want := src.Data()
	assert.Equal(t, want.Vertices, got.Vertices)
	assert.Equal(t, want.UVs, got.UVs)
	assert.Equal(t, want.Normals, got.Normals)
	assert.Equal(t, want.Annexe, got.Annexe)
	assert.Equal(t, src.Timestamp(), dst.Timestamp())

	// Second round trip stays identical.
	s2 := dst.Serialize()
	assert.Equal(t, s.Data.Data(), s2.Data.Data())
}

func TestDeserializeRejectsTruncatedPayload(t *testing.T) {
	src := &Mesh{}
	src.SetName("mesh1")
	src.SetData(Plane())
	s := src.Serialize()
	s.Data.Resize(s.Data.Size() - 4)

	dst := &Mesh{}
	assert.Error(t, dst.Deserialize(s))
}

func TestPlaneShape(t *testing.T) {
	d := Plane()
	assert.Equal(t, 6, d.VertexCount())
	assert.Len(t, d.UVs, 12)
	assert.Len(t, d.Normals, 24)
	assert.Len(t, d.Annexe, 24)
}

func TestLoadOBJ(t *testing.T) {
	content := `# simple quad
v -1 -1 0
v 1 -1 0
v 1 1 0
v -1 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 1
f 1/1/1 2/2/1 3/3/1 4/4/1
`
	path := filepath.Join(t.TempDir(), "quad.obj")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	d, err := LoadOBJ(path)
	require.NoError(t, err)
	// Quad fan-triangulates to two triangles.
	assert.Equal(t, 6, d.VertexCount())
	assert.Equal(t, float32(-1), d.Vertices[0])
	assert.Equal(t, float32(1), d.Vertices[3]) // w component
	assert.Equal(t, float32(1), d.Normals[2])
}

func TestLoadOBJRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.obj")
	require.NoError(t, os.WriteFile(path, []byte("v 1 2\n"), 0o644))
	_, err := LoadOBJ(path)
	assert.Error(t, err)

	_, err = LoadOBJ(filepath.Join(t.TempDir(), "missing.obj"))
	assert.Error(t, err)
}
