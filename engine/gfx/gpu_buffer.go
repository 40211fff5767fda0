package gfx

import (
	"github.com/go-gl/gl/v4.5-core/gl"

	"github.com/splashmapping/splash/common"
)

// GpuBuffer owns one GL buffer object holding an array of fixed-size
// vertex attributes (positions, UVs, normals, annexe).
type GpuBuffer struct {
	id          uint32
	elementSize int32 // components per vertex
	baseSize    int32 // bytes per component
	glType      uint32
	capacity    int // vertices allocated on the GPU
	size        int // vertices in use
}

// NewGpuBuffer allocates a buffer for vertices of elementSize float32
// components each.
func NewGpuBuffer(elementSize int32, data []float32) *GpuBuffer {
	b := &GpuBuffer{
		elementSize: elementSize,
		baseSize:    4,
		glType:      gl.FLOAT,
	}
	gl.GenBuffers(1, &b.id)
	if len(data) > 0 {
		b.SetContent(data)
	}
	return b
}

// ID returns the GL buffer name.
func (b *GpuBuffer) ID() uint32 { return b.id }

// ElementSize returns the number of components per vertex.
func (b *GpuBuffer) ElementSize() int32 { return b.elementSize }

// Size returns the number of vertices in use.
func (b *GpuBuffer) Size() int { return b.size }

// SetContent uploads vertex data, reallocating when the capacity grows.
func (b *GpuBuffer) SetContent(data []float32) {
	verts := len(data) / int(b.elementSize)
	gl.BindBuffer(gl.ARRAY_BUFFER, b.id)
	if verts > b.capacity {
		gl.BufferData(gl.ARRAY_BUFFER, len(data)*4, gl.Ptr(data), gl.DYNAMIC_DRAW)
		b.capacity = verts
	} else if len(data) > 0 {
		gl.BufferSubData(gl.ARRAY_BUFFER, 0, len(data)*4, gl.Ptr(data))
	}
	b.size = verts
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
}

// Content reads the buffer back to client memory.
func (b *GpuBuffer) Content() []float32 {
	if b.size == 0 {
		return nil
	}
	out := make([]float32, b.size*int(b.elementSize))
	gl.BindBuffer(gl.ARRAY_BUFFER, b.id)
	gl.GetBufferSubData(gl.ARRAY_BUFFER, 0, len(out)*4, gl.Ptr(out))
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	return out
}

// Resize sets the vertex count without initializing new content.
func (b *GpuBuffer) Resize(verts int) {
	if verts > b.capacity {
		gl.BindBuffer(gl.ARRAY_BUFFER, b.id)
		gl.BufferData(gl.ARRAY_BUFFER, verts*int(b.elementSize)*4, nil, gl.DYNAMIC_DRAW)
		gl.BindBuffer(gl.ARRAY_BUFFER, 0)
		b.capacity = verts
	}
	b.size = verts
}

// Bytes returns the buffer content as raw bytes, for serialization.
func (b *GpuBuffer) Bytes() []byte {
	return common.SliceToBytes(b.Content())
}

// Destroy releases the GL buffer.
func (b *GpuBuffer) Destroy() {
	if b.id != 0 {
		gl.DeleteBuffers(1, &b.id)
		b.id = 0
	}
}
