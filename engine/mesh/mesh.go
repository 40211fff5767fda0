// Package mesh implements the Mesh buffer object: the triangulated
// geometry replicated between World and Scenes and consumed by Geometry
// objects on the GPU side.
package mesh

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/graph"
)

// Data is the tightly packed triangle soup of a mesh: vec4 vertices, vec2
// uvs, vec4 normals and a vec4 annexe per vertex (x carries the blending
// accumulator).
type Data struct {
	Vertices []float32
	UVs      []float32
	Normals  []float32
	Annexe   []float32
}

// VertexCount returns the number of vertices.
func (d *Data) VertexCount() int { return len(d.Vertices) / 4 }

// Clone deep-copies the mesh data.
func (d *Data) Clone() Data {
	out := Data{
		Vertices: make([]float32, len(d.Vertices)),
		UVs:      make([]float32, len(d.UVs)),
		Normals:  make([]float32, len(d.Normals)),
		Annexe:   make([]float32, len(d.Annexe)),
	}
	copy(out.Vertices, d.Vertices)
	copy(out.UVs, d.UVs)
	copy(out.Normals, d.Normals)
	copy(out.Annexe, d.Annexe)
	return out
}

// Mesh is a buffer object holding triangulated geometry.
type Mesh struct {
	graph.BufferBase

	data Data
	file string
}

var _ graph.BufferObject = (*Mesh)(nil)

// New creates a Mesh attached to the root, initialized with the default
// plane.
func New(rootObj graph.Root) *Mesh {
	m := &Mesh{}
	m.Init(rootObj, "mesh", graph.CategoryMesh, graph.PriorityMedia)
	m.registerAttributes()
	m.SetData(Plane())
	return m
}

func (m *Mesh) registerAttributes() {
	m.AddAttribute("file", "s", func(args common.Values) bool {
		path := args[0].AsString()
		data, err := LoadOBJ(path)
		if err != nil {
			m.Log.Warn().Err(err).Str("file", path).Msg("cannot read mesh file")
			return false
		}
		m.file = path
		m.SetData(data)
		return true
	}, func() common.Values {
		return common.Values{common.S(m.file)}
	}).Doc("Path to the Wavefront OBJ file to load")
}

// Data snapshots the mesh under the read lock.
func (m *Mesh) Data() Data {
	m.RW.RLock()
	defer m.RW.RUnlock()
	return m.data.Clone()
}

// SetData replaces the mesh under the write lock and bumps the timestamp.
func (m *Mesh) SetData(d Data) {
	m.RW.Lock()
	m.data = d
	m.RW.Unlock()
	m.BumpTimestamp()
}

// Serialize snapshots the mesh: four u64 counts then the arrays tightly
// packed as float32.
func (m *Mesh) Serialize() *graph.Serialized {
	m.RW.RLock()
	defer m.RW.RUnlock()

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint64(len(m.data.Vertices)/4))
	binary.Write(&buf, binary.LittleEndian, uint64(len(m.data.UVs)/2))
	binary.Write(&buf, binary.LittleEndian, uint64(len(m.data.Normals)/4))
	binary.Write(&buf, binary.LittleEndian, uint64(len(m.data.Annexe)/4))
	buf.Write(common.SliceToBytes(m.data.Vertices))
	buf.Write(common.SliceToBytes(m.data.UVs))
	buf.Write(common.SliceToBytes(m.data.Normals))
	buf.Write(common.SliceToBytes(m.data.Annexe))

	return &graph.Serialized{
		Name:      m.Name(),
		Timestamp: m.Timestamp(),
		Data:      common.ResizableArrayFrom(buf.Bytes()),
	}
}

// Deserialize replaces the mesh from a serialized frame.
func (m *Mesh) Deserialize(s *graph.Serialized) error {
	payload := s.Data.Data()
	if len(payload) < 32 {
		return fmt.Errorf("%w: mesh header", graph.ErrDeserialize)
	}
	nVertices := binary.LittleEndian.Uint64(payload)
	nUVs := binary.LittleEndian.Uint64(payload[8:])
	nNormals := binary.LittleEndian.Uint64(payload[16:])
	nAnnexe := binary.LittleEndian.Uint64(payload[24:])
	payload = payload[32:]

	expected := (nVertices*4 + nUVs*2 + nNormals*4 + nAnnexe*4) * 4
	if uint64(len(payload)) != expected {
		return fmt.Errorf("%w: mesh payload size %d, expected %d",
			graph.ErrDeserialize, len(payload), expected)
	}

	floats := common.BytesToSlice[float32](payload)
	var d Data
	d.Vertices = append(d.Vertices, floats[:nVertices*4]...)
	floats = floats[nVertices*4:]
	d.UVs = append(d.UVs, floats[:nUVs*2]...)
	floats = floats[nUVs*2:]
	d.Normals = append(d.Normals, floats[:nNormals*4]...)
	floats = floats[nNormals*4:]
	d.Annexe = append(d.Annexe, floats[:nAnnexe*4]...)

	m.RW.Lock()
	m.data = d
	m.RW.Unlock()
	m.SetTimestamp(s.Timestamp)
	return nil
}

// Plane returns the default mesh: a quad spanning [-1, 1] in X and Y,
// facing +Z, two triangles.
func Plane() Data {
	corners := [][2]float32{
		{-1, -1}, {1, -1}, {1, 1},
		{-1, -1}, {1, 1}, {-1, 1},
	}
	var d Data
	for _, c := range corners {
		d.Vertices = append(d.Vertices, c[0], c[1], 0, 1)
		d.UVs = append(d.UVs, (c[0]+1)/2, (c[1]+1)/2)
		d.Normals = append(d.Normals, 0, 0, 1, 0)
		d.Annexe = append(d.Annexe, 0, 0, 0, 0)
	}
	return d
}
