// Package geometry implements the GPU geometry object: per-context vertex
// arrays over the four mesh buffers, plus the alternative-buffer slot
// receiving blending-recomputed meshes.
package geometry

import (
	"sync"

	"github.com/go-gl/gl/v4.5-core/gl"

	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/gfx"
	"github.com/splashmapping/splash/engine/graph"
	"github.com/splashmapping/splash/engine/mesh"
)

// Geometry owns the GPU buffers of one mesh. The base buffers mirror the
// linked Mesh object; the alternative buffers receive the tessellated,
// blending-annotated copy computed by the blender and distributed to
// non-master Scenes.
type Geometry struct {
	graph.BufferBase

	meshObj *mesh.Mesh

	dataMu   sync.Mutex
	baseData mesh.Data
	altData  mesh.Data
	useAlt   bool
	dirtyGPU bool

	buffers    [4]*gfx.GpuBuffer // vertex, uv, normal, annexe
	altBuffers [4]*gfx.GpuBuffer
	vaos       map[string]uint32
}

var _ graph.BufferObject = (*Geometry)(nil)

// New creates a Geometry attached to the root.
func New(rootObj graph.Root) *Geometry {
	g := &Geometry{vaos: make(map[string]uint32)}
	g.Init(rootObj, "geometry", graph.CategoryOther, graph.PriorityNoRender)
	g.baseData = mesh.Plane()
	g.altData = g.baseData.Clone()
	g.dirtyGPU = true
	return g
}

// TryLink accepts a Mesh object as geometry source.
func (g *Geometry) TryLink(o graph.Object) bool {
	m, ok := o.(*mesh.Mesh)
	if !ok {
		return false
	}
	if !g.BufferBase.TryLink(o) {
		return false
	}
	g.meshObj = m
	g.pullMesh()
	return true
}

func (g *Geometry) TryUnlink(o graph.Object) {
	if g.meshObj != nil && o != nil && o.Name() == g.meshObj.Name() {
		g.meshObj = nil
	}
	g.BufferBase.TryUnlink(o)
}

// Update pulls fresh mesh content when the linked Mesh changed.
func (g *Geometry) Update() {
	if g.meshObj != nil && g.meshObj.WasUpdated() {
		g.pullMesh()
		g.meshObj.SetUpdated(false)
		g.SetUpdated(true)
	}
}

func (g *Geometry) pullMesh() {
	data := g.meshObj.Data()
	g.dataMu.Lock()
	g.baseData = data
	g.altData = data.Clone()
	g.useAlt = false
	g.dirtyGPU = true
	g.dataMu.Unlock()
	g.BumpTimestamp()
}

// VertexCount returns the vertex count of the currently active buffers.
func (g *Geometry) VertexCount() int {
	g.dataMu.Lock()
	defer g.dataMu.Unlock()
	if g.useAlt {
		return g.altData.VertexCount()
	}
	return g.baseData.VertexCount()
}

// UseAlternativeBuffers toggles which buffers the vertex arrays bind.
func (g *Geometry) UseAlternativeBuffers(use bool) {
	g.dataMu.Lock()
	g.useAlt = use
	g.dirtyGPU = true
	g.dataMu.Unlock()
}

// ── CPU blending operations, driven by the blender ─────────────────────

// ResetTessellation restores the alternative buffers to the base mesh.
func (g *Geometry) ResetTessellation() {
	g.dataMu.Lock()
	g.altData = g.baseData.Clone()
	g.dirtyGPU = true
	g.dataMu.Unlock()
}

// ResetVisibility clears the per-vertex visibility counters.
func (g *Geometry) ResetVisibility() {
	g.dataMu.Lock()
	for i := 1; i < len(g.altData.Annexe); i += 4 {
		g.altData.Annexe[i] = 0
	}
	g.dirtyGPU = true
	g.dataMu.Unlock()
}

// ResetBlending clears the per-vertex blending accumulators.
func (g *Geometry) ResetBlending() {
	g.dataMu.Lock()
	for i := 0; i < len(g.altData.Annexe); i += 4 {
		g.altData.Annexe[i] = 0
	}
	g.dirtyGPU = true
	g.dataMu.Unlock()
}

// ComputeVisibility marks each vertex of the alternative mesh with the
// given camera's visibility: annexe.y is 1 when the vertex projects inside
// the frustum, 0 otherwise.
func (g *Geometry) ComputeVisibility(viewProj []float32) {
	frustum := common.ExtractFrustumFromMatrix(viewProj)
	g.dataMu.Lock()
	for v := 0; v < g.altData.VertexCount(); v++ {
		x := g.altData.Vertices[v*4]
		y := g.altData.Vertices[v*4+1]
		z := g.altData.Vertices[v*4+2]
		if frustum.ContainsPoint(x, y, z) {
			g.altData.Annexe[v*4+1] = 1
		} else {
			g.altData.Annexe[v*4+1] = 0
		}
	}
	g.dirtyGPU = true
	g.dataMu.Unlock()
}

// Tessellate subdivides the triangles of the alternative mesh whose edges
// cross the given camera's projection boundary, so blending weights can
// follow the projector border closely.
func (g *Geometry) Tessellate(viewProj []float32, maxDepth int) {
	frustum := common.ExtractFrustumFromMatrix(viewProj)
	g.dataMu.Lock()
	defer g.dataMu.Unlock()

	for depth := 0; depth < maxDepth; depth++ {
		var out mesh.Data
		split := false
		for t := 0; t+2 < g.altData.VertexCount(); t += 3 {
			inside := 0
			for k := 0; k < 3; k++ {
				v := (t + k) * 4
				if frustum.ContainsPoint(g.altData.Vertices[v], g.altData.Vertices[v+1], g.altData.Vertices[v+2]) {
					inside++
				}
			}
			if inside == 0 || inside == 3 {
				copyTriangle(&out, &g.altData, t)
				continue
			}
			split = true
			subdivideTriangle(&out, &g.altData, t)
		}
		g.altData = out
		g.dirtyGPU = true
		if !split {
			break
		}
	}
}

// AddBlendingContribution adds one camera's weight to every vertex it
// lights: the integer accumulator in annexe.x grows by one, the smooth
// border attenuation accumulates in annexe.z.
func (g *Geometry) AddBlendingContribution(viewProj []float32) {
	g.dataMu.Lock()
	defer g.dataMu.Unlock()
	for v := 0; v < g.altData.VertexCount(); v++ {
		x := g.altData.Vertices[v*4]
		y := g.altData.Vertices[v*4+1]
		z := g.altData.Vertices[v*4+2]
		cx, cy, _, cw := common.TransformPoint(viewProj, x, y, z, 1)
		if cw <= 0 {
			continue
		}
		ndcX, ndcY := cx/cw, cy/cw
		if ndcX < -1 || ndcX > 1 || ndcY < -1 || ndcY > 1 {
			continue
		}
		g.altData.Annexe[v*4] += 1
		border := common.Clamp(min32(1-abs32(ndcX), 1-abs32(ndcY)), 0, 1)
		g.altData.Annexe[v*4+2] += border
	}
	g.dirtyGPU = true
}

// AlternativeData snapshots the alternative mesh, for tests and
// serialization.
func (g *Geometry) AlternativeData() mesh.Data {
	g.dataMu.Lock()
	defer g.dataMu.Unlock()
	return g.altData.Clone()
}

// ── Serialization: the blender distributes the alternative buffers ─────

// Serialize packs the alternative mesh in the Mesh wire format.
func (g *Geometry) Serialize() *graph.Serialized {
	g.dataMu.Lock()
	data := g.altData.Clone()
	g.dataMu.Unlock()

	carrier := &mesh.Mesh{}
	carrier.SetName(g.Name())
	carrier.SetData(data)
	s := carrier.Serialize()
	s.Timestamp = g.Timestamp()
	return s
}

// Deserialize receives a blending-recomputed mesh into the alternative
// buffers and switches to them.
func (g *Geometry) Deserialize(s *graph.Serialized) error {
	carrier := &mesh.Mesh{}
	if err := carrier.Deserialize(s); err != nil {
		return err
	}
	g.dataMu.Lock()
	g.altData = carrier.Data()
	g.useAlt = true
	g.dirtyGPU = true
	g.dataMu.Unlock()
	g.SetTimestamp(s.Timestamp)
	return nil
}

// ── GPU side, render thread only ───────────────────────────────────────

// Activate binds (and lazily builds) the vertex array for the given GL
// context key and uploads any pending CPU-side changes.
func (g *Geometry) Activate(contextKey string) {
	g.dataMu.Lock()
	data := &g.baseData
	if g.useAlt {
		data = &g.altData
	}
	dirty := g.dirtyGPU
	g.dirtyGPU = false
	g.dataMu.Unlock()

	if g.buffers[0] == nil {
		g.buffers[0] = gfx.NewGpuBuffer(4, nil)
		g.buffers[1] = gfx.NewGpuBuffer(2, nil)
		g.buffers[2] = gfx.NewGpuBuffer(4, nil)
		g.buffers[3] = gfx.NewGpuBuffer(4, nil)
	}
	if dirty {
		g.buffers[0].SetContent(data.Vertices)
		g.buffers[1].SetContent(data.UVs)
		g.buffers[2].SetContent(data.Normals)
		g.buffers[3].SetContent(data.Annexe)
	}

	vao, ok := g.vaos[contextKey]
	if !ok || dirty {
		if !ok {
			gl.GenVertexArrays(1, &vao)
			g.vaos[contextKey] = vao
		}
		gl.BindVertexArray(vao)
		sizes := []int32{4, 2, 4, 4}
		for i, buf := range g.buffers {
			gl.BindBuffer(gl.ARRAY_BUFFER, buf.ID())
			gl.VertexAttribPointerWithOffset(uint32(i), sizes[i], gl.FLOAT, false, 0, 0)
			gl.EnableVertexAttribArray(uint32(i))
		}
		gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	} else {
		gl.BindVertexArray(vao)
	}
}

// Draw issues the draw call for the active buffers.
func (g *Geometry) Draw() {
	gl.DrawArrays(gl.TRIANGLES, 0, int32(g.VertexCount()))
}

// Deactivate unbinds the vertex array.
func (g *Geometry) Deactivate() {
	gl.BindVertexArray(0)
}

// Destroy releases GPU resources, then the base object.
func (g *Geometry) Destroy() {
	for _, b := range g.buffers {
		if b != nil {
			b.Destroy()
		}
	}
	for _, vao := range g.vaos {
		v := vao
		gl.DeleteVertexArrays(1, &v)
	}
	g.vaos = make(map[string]uint32)
	g.BufferBase.Destroy()
}

func copyTriangle(dst, src *mesh.Data, t int) {
	for k := 0; k < 3; k++ {
		appendVertexFrom(dst, src, t+k)
	}
}

// subdivideTriangle splits one triangle into four by edge midpoints.
func subdivideTriangle(dst, src *mesh.Data, t int) {
	a, b, c := t, t+1, t+2
	ab := midpoint(src, a, b)
	bc := midpoint(src, b, c)
	ca := midpoint(src, c, a)

	old := func(v int) { appendVertexFrom(dst, src, v) }
	mid := func(m midVertex) { appendMidVertex(dst, m) }

	old(a)
	mid(ab)
	mid(ca)

	mid(ab)
	old(b)
	mid(bc)

	mid(ca)
	mid(bc)
	old(c)

	mid(ab)
	mid(bc)
	mid(ca)
}

type midVertex struct {
	pos    [4]float32
	uv     [2]float32
	normal [4]float32
	annexe [4]float32
}

func midpoint(d *mesh.Data, i, j int) midVertex {
	var m midVertex
	for k := 0; k < 4; k++ {
		m.pos[k] = (d.Vertices[i*4+k] + d.Vertices[j*4+k]) / 2
		m.normal[k] = (d.Normals[i*4+k] + d.Normals[j*4+k]) / 2
		m.annexe[k] = (d.Annexe[i*4+k] + d.Annexe[j*4+k]) / 2
	}
	for k := 0; k < 2; k++ {
		m.uv[k] = (d.UVs[i*2+k] + d.UVs[j*2+k]) / 2
	}
	return m
}

func appendVertexFrom(dst, src *mesh.Data, v int) {
	dst.Vertices = append(dst.Vertices, src.Vertices[v*4:v*4+4]...)
	dst.UVs = append(dst.UVs, src.UVs[v*2:v*2+2]...)
	dst.Normals = append(dst.Normals, src.Normals[v*4:v*4+4]...)
	dst.Annexe = append(dst.Annexe, src.Annexe[v*4:v*4+4]...)
}

func appendMidVertex(dst *mesh.Data, m midVertex) {
	dst.Vertices = append(dst.Vertices, m.pos[:]...)
	dst.UVs = append(dst.UVs, m.uv[:]...)
	dst.Normals = append(dst.Normals, m.normal[:]...)
	dst.Annexe = append(dst.Annexe, m.annexe[:]...)
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
