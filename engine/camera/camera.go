// Package camera implements the virtual projector camera: intrinsics and
// pose, the multisampled framebuffer the linked objects are drawn into,
// the per-vertex visibility and tessellation passes feeding the blender,
// and the color correction state written back by the calibrator.
package camera

import (
	"github.com/go-gl/gl/v4.5-core/gl"

	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/gfx"
	"github.com/splashmapping/splash/engine/graph"
	"github.com/splashmapping/splash/engine/object"
)

// TessellationDepth bounds the edge-subdivision passes run per camera.
const TessellationDepth = 3

// Camera renders linked objects through one projector's point of view.
type Camera struct {
	graph.BaseObject

	objects []*object.Object

	eye    [3]float32
	target [3]float32
	up     [3]float32
	fov    float32
	size   [2]int32
	near   float32
	far    float32

	viewMatrix [16]float32
	projMatrix [16]float32

	msFbo  *gfx.Framebuffer
	outFbo *gfx.Framebuffer

	hide       bool
	flashBG    bool
	clearColor [4]float32

	// Color correction, written back by the calibrator.
	brightness       float32
	colorTemperature float32
	activateColorLUT bool
	colorLUTSize     int32
	colorLUT         []float32
	colorMixMatrix   []float32
	whitePoint       [3]float32
	colorSamples     int64
	colorCurves      common.Values
}

var _ graph.Object = (*Camera)(nil)

// New creates a Camera attached to the root.
func New(rootObj graph.Root) *Camera {
	c := &Camera{
		eye:              [3]float32{2, 2, 2},
		target:           [3]float32{0, 0, 0},
		up:               [3]float32{0, 0, 1},
		fov:              50.0 * 3.14159265 / 180.0,
		size:             [2]int32{1920, 1080},
		near:             0.1,
		far:              100.0,
		clearColor:       [4]float32{0, 0, 0, 1},
		brightness:       1.0,
		colorTemperature: 6500.0,
	}
	c.Init(rootObj, "camera", graph.CategoryOther, graph.PriorityCamera)
	c.registerAttributes()
	c.computeMatrices()
	return c
}

// TryLink accepts drawable objects.
func (c *Camera) TryLink(o graph.Object) bool {
	obj, ok := o.(*object.Object)
	if !ok {
		return false
	}
	if !c.BaseObject.TryLink(o) {
		return false
	}
	c.objects = append(c.objects, obj)
	return true
}

func (c *Camera) TryUnlink(o graph.Object) {
	for i, obj := range c.objects {
		if obj.Name() == o.Name() {
			c.objects = append(c.objects[:i], c.objects[i+1:]...)
			break
		}
	}
	c.BaseObject.TryUnlink(o)
}

// Objects returns the drawables linked into the camera.
func (c *Camera) Objects() []*object.Object {
	out := make([]*object.Object, len(c.objects))
	copy(out, c.objects)
	return out
}

// ViewProjection returns the combined view-projection matrix.
func (c *Camera) ViewProjection() []float32 {
	vp := make([]float32, 16)
	common.Mul4(vp, c.projMatrix[:], c.viewMatrix[:])
	return vp
}

func (c *Camera) computeMatrices() {
	common.LookAt(c.viewMatrix[:],
		c.eye[0], c.eye[1], c.eye[2],
		c.target[0], c.target[1], c.target[2],
		c.up[0], c.up[1], c.up[2])
	aspect := float32(c.size[0]) / float32(c.size[1])
	common.Perspective(c.projMatrix[:], c.fov, aspect, c.near, c.far)
}

// objectViewProj combines the camera and one object's model matrix.
func (c *Camera) objectViewProj(obj *object.Object) []float32 {
	model := make([]float32, 16)
	mvp := make([]float32, 16)
	obj.ModelMatrix(model)
	common.Mul4(mvp, c.ViewProjection(), model)
	return mvp
}

// ── Blending passes, driven by the blender on the master Scene ─────────

// ComputeVertexVisibility writes this camera's per-vertex visibility
// counters into every linked object's geometry.
func (c *Camera) ComputeVertexVisibility() {
	c.computeMatrices()
	for _, obj := range c.objects {
		if geom := obj.Geometry(); geom != nil {
			geom.ComputeVisibility(c.objectViewProj(obj))
		}
	}
}

// BlendingTessellateForCurrentCamera subdivides the edges crossing this
// camera's projection boundary, expanding geometry in place in the
// objects' alternative buffers.
func (c *Camera) BlendingTessellateForCurrentCamera() {
	for _, obj := range c.objects {
		if geom := obj.Geometry(); geom != nil {
			geom.Tessellate(c.objectViewProj(obj), TessellationDepth)
		}
	}
}

// ComputeBlendingContribution adds this camera's contribution to each
// vertex's blending weight.
func (c *Camera) ComputeBlendingContribution() {
	for _, obj := range c.objects {
		if geom := obj.Geometry(); geom != nil {
			geom.AddBlendingContribution(c.objectViewProj(obj))
		}
	}
}

// ── Rendering, render thread only ──────────────────────────────────────

// Update recomputes the matrices and propagates object updates.
func (c *Camera) Update() {
	c.computeMatrices()
	for _, obj := range c.objects {
		obj.Update()
		if obj.WasUpdated() {
			c.SetUpdated(true)
		}
	}
}

// TextureID exposes the resolved color attachment, sampled by warps and
// windows. Returns 0 while the framebuffer is not complete.
func (c *Camera) TextureID() uint32 {
	if c.outFbo == nil || !c.outFbo.Complete() {
		return 0
	}
	return c.outFbo.ColorTexture()
}

// YCbCr implements the texture source contract; camera output is RGB.
func (c *Camera) YCbCr() bool { return false }

// Render draws all linked objects into the camera framebuffer.
func (c *Camera) Render() {
	if c.msFbo == nil {
		c.msFbo = gfx.NewFramebuffer(4, false)
		c.outFbo = gfx.NewFramebuffer(1, false)
	}
	if err := c.msFbo.Setup(c.size[0], c.size[1]); err != nil {
		c.Log.Warn().Err(err).Msg("camera framebuffer incomplete")
		return
	}
	if err := c.outFbo.Setup(c.size[0], c.size[1]); err != nil {
		c.Log.Warn().Err(err).Msg("camera output framebuffer incomplete")
		return
	}

	c.msFbo.Bind()
	clear := c.clearColor
	if c.flashBG {
		clear = [4]float32{1, 1, 1, 1}
	}
	gl.ClearColor(clear[0], clear[1], clear[2], clear[3])
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
	gl.Enable(gl.DEPTH_TEST)

	if !c.hide {
		state := object.DrawState{
			ViewProj:         c.ViewProjection(),
			ContextKey:       c.Name(),
			Brightness:       c.brightness,
			ActivateColorLUT: c.activateColorLUT,
			ColorLUTSize:     c.colorLUTSize,
			ColorLUT:         c.colorLUT,
			ColorMixMatrix:   c.colorMixMatrix,
		}
		for _, obj := range c.objects {
			obj.Draw(state)
		}
	}

	gl.Disable(gl.DEPTH_TEST)
	c.msFbo.Unbind()
	c.msFbo.BlitTo(c.outFbo)
}

// Destroy releases the framebuffers, then the base object.
func (c *Camera) Destroy() {
	if c.msFbo != nil {
		c.msFbo.Destroy()
		c.outFbo.Destroy()
	}
	c.BaseObject.Destroy()
}
