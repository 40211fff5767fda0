// Package object implements the drawable Object: a geometry, a shader and
// a texture list with per-frame uniforms. Cameras draw linked objects
// through the final blending shader.
package object

import (
	"sync"

	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/geometry"
	"github.com/splashmapping/splash/engine/gfx"
	"github.com/splashmapping/splash/engine/graph"
	"github.com/splashmapping/splash/engine/mesh"
	"github.com/splashmapping/splash/engine/texture"
)

// Object is the textured-mesh drawable placed in front of the cameras.
type Object struct {
	graph.BaseObject

	geom     *geometry.Geometry
	textures []texture.Source

	shader     *gfx.Shader
	shaderOnce sync.Once

	position [3]float32
	rotation [3]float32
	scale    [3]float32
	color    [4]float32

	activateVertexBlending bool
	culling                int // 0: none, 1: back, 2: front

	// Dirty bits consumed by the blender.
	tessellationReset bool
	blendingReset     bool
	visibilityReset   bool
}

var _ graph.Object = (*Object)(nil)

// New creates an Object attached to the root.
func New(rootObj graph.Root) *Object {
	o := &Object{
		scale: [3]float32{1, 1, 1},
		color: [4]float32{1, 1, 1, 1},
	}
	o.Init(rootObj, "object", graph.CategoryOther, graph.PriorityPreCamera)
	o.registerAttributes()
	return o
}

func (o *Object) registerAttributes() {
	o.AddAttribute("position", "nnn", func(args common.Values) bool {
		for i := 0; i < 3; i++ {
			o.position[i] = float32(args[i].AsFloat())
		}
		return true
	}, func() common.Values {
		return common.Values{common.R(o.position[0]), common.R(o.position[1]), common.R(o.position[2])}
	}).Doc("Position of the object")

	o.AddAttribute("rotation", "nnn", func(args common.Values) bool {
		for i := 0; i < 3; i++ {
			o.rotation[i] = float32(args[i].AsFloat())
		}
		return true
	}, func() common.Values {
		return common.Values{common.R(o.rotation[0]), common.R(o.rotation[1]), common.R(o.rotation[2])}
	}).Doc("Rotation of the object, in radians")

	o.AddAttribute("scale", "nnn", func(args common.Values) bool {
		for i := 0; i < 3; i++ {
			o.scale[i] = float32(args[i].AsFloat())
		}
		return true
	}, func() common.Values {
		return common.Values{common.R(o.scale[0]), common.R(o.scale[1]), common.R(o.scale[2])}
	}).Doc("Scale of the object")

	o.AddAttribute("color", "nnnn", func(args common.Values) bool {
		for i := 0; i < 4; i++ {
			o.color[i] = float32(args[i].AsFloat())
		}
		return true
	}, func() common.Values {
		return common.Values{common.R(o.color[0]), common.R(o.color[1]), common.R(o.color[2]), common.R(o.color[3])}
	}).Doc("Color of the object when no texture is linked")

	o.AddAttribute("culling", "n", func(args common.Values) bool {
		v := int(args[0].AsInt())
		if v < 0 || v > 2 {
			return false
		}
		o.culling = v
		return true
	}, func() common.Values {
		return common.Values{common.I(o.culling)}
	}).Doc("Face culling: 0 for none, 1 for back faces, 2 for front faces")

	o.AddAttribute("activateVertexBlending", "n", func(args common.Values) bool {
		o.activateVertexBlending = args[0].AsBool()
		if o.geom != nil {
			o.geom.UseAlternativeBuffers(o.activateVertexBlending)
		}
		return true
	}, func() common.Values {
		return common.Values{common.B(o.activateVertexBlending)}
	}).Doc("Activate the per-vertex blending attribute").NotSavable()

	o.AddAttribute("resetTessellation", "", func(common.Values) bool {
		if o.geom != nil {
			o.geom.ResetTessellation()
		}
		o.tessellationReset = true
		return true
	}, nil).Doc("Restore the untessellated geometry").NotSavable()

	o.AddAttribute("resetBlendingAttribute", "", func(common.Values) bool {
		if o.geom != nil {
			o.geom.ResetBlending()
		}
		o.blendingReset = true
		return true
	}, nil).Doc("Clear the per-vertex blending accumulators").NotSavable()

	o.AddAttribute("resetVisibility", "", func(common.Values) bool {
		if o.geom != nil {
			o.geom.ResetVisibility()
		}
		o.visibilityReset = true
		return true
	}, nil).Doc("Clear the per-vertex visibility counters").NotSavable()
}

// TryLink accepts geometries, meshes (wrapped in a private geometry) and
// texture sources.
func (o *Object) TryLink(other graph.Object) bool {
	switch linked := other.(type) {
	case *geometry.Geometry:
		if !o.BaseObject.TryLink(other) {
			return false
		}
		o.geom = linked
		return true
	case *mesh.Mesh:
		if !o.BaseObject.TryLink(other) {
			return false
		}
		// The geometry name derives from the object name so the blending
		// distribution resolves the same geometry on every Scene, and the
		// geometry is registered so serialized payloads reach it.
		name := o.Name() + "_geom"
		if o.Root() != nil {
			if existing, ok := o.Root().GetObject(name); ok {
				if geom, okGeom := existing.(*geometry.Geometry); okGeom {
					geom.TryLink(linked)
					o.geom = geom
					return true
				}
			}
		}
		geom := geometry.New(o.Root())
		if o.Root() != nil {
			o.Root().AddObject(name, geom)
		} else {
			geom.SetName(name)
		}
		geom.TryLink(linked)
		o.geom = geom
		return true
	case texture.Source:
		if !o.BaseObject.TryLink(other) {
			return false
		}
		o.textures = append(o.textures, linked)
		return true
	default:
		return false
	}
}

func (o *Object) TryUnlink(other graph.Object) {
	switch linked := other.(type) {
	case *geometry.Geometry:
		if o.geom == linked {
			o.geom = nil
		}
	case *mesh.Mesh:
		o.geom = nil
	case texture.Source:
		for i, t := range o.textures {
			if t == linked {
				o.textures = append(o.textures[:i], o.textures[i+1:]...)
				break
			}
		}
	}
	o.BaseObject.TryUnlink(other)
}

// Geometry returns the linked geometry, if any.
func (o *Object) Geometry() *geometry.Geometry { return o.geom }

// VertexBlendingActive reports whether blending weights are applied.
func (o *Object) VertexBlendingActive() bool { return o.activateVertexBlending }

// ModelMatrix fills out with the object's model matrix.
func (o *Object) ModelMatrix(out []float32) {
	common.BuildModelMatrix(out,
		o.position[0], o.position[1], o.position[2],
		o.rotation[0], o.rotation[1], o.rotation[2],
		o.scale[0], o.scale[1], o.scale[2])
}

// Update refreshes the geometry from its mesh source.
func (o *Object) Update() {
	if o.geom != nil {
		o.geom.Update()
		if o.geom.WasUpdated() {
			o.SetUpdated(true)
			o.geom.SetUpdated(false)
		}
	}
}

// DrawState carries the per-camera uniforms injected into the object
// shader: the view-projection matrix and the color correction chain.
type DrawState struct {
	ViewProj   []float32
	ContextKey string

	Brightness   float32
	BlackLevel   float32
	ColorBalance [3]float32

	ActivateColorLUT bool
	ColorLUTSize     int32
	ColorLUT         []float32 // 3 * ColorLUTSize values, R then G then B
	ColorMixMatrix   []float32 // 9 values, column-major 3x3
}

// Draw renders the object with the given draw state, on the render thread.
func (o *Object) Draw(state DrawState) {
	if o.geom == nil {
		return
	}
	o.shaderOnce.Do(func() {
		s, err := gfx.NewShader(gfx.VertexSourceObject, gfx.FragmentSourceObject)
		if err != nil {
			o.Log.Error().Err(err).Msg("object shader failed to build")
			return
		}
		o.shader = s
	})
	if o.shader == nil || !o.shader.Valid() {
		return
	}

	var model [16]float32
	var mvp [16]float32
	o.ModelMatrix(model[:])
	common.Mul4(mvp[:], state.ViewProj, model[:])

	brightness := state.Brightness
	if brightness == 0 {
		brightness = 1
	}
	balance := state.ColorBalance
	if balance == ([3]float32{}) {
		balance = [3]float32{1, 1, 1}
	}

	o.shader.Activate()
	o.shader.SetMat4("_modelViewProjectionMatrix", mvp[:])
	o.shader.SetMat4("_normalMatrix", model[:])
	o.shader.SetInt("_textureCount", int32(len(o.textures)))
	blending := int32(0)
	if o.activateVertexBlending {
		blending = 1
	}
	o.shader.SetInt("_activateVertexBlending", blending)
	o.shader.SetInt("_texYCbCr", 0)
	o.shader.SetFloat("_brightness", brightness)
	o.shader.SetFloat("_blackLevel", state.BlackLevel)
	o.shader.SetVec3("_colorBalance", balance[0], balance[1], balance[2])
	if state.ActivateColorLUT && state.ColorLUTSize > 0 && len(state.ColorLUT) == int(state.ColorLUTSize)*3 {
		o.shader.SetInt("_activateColorLUT", 1)
		o.shader.SetInt("_colorLUTSize", state.ColorLUTSize)
		o.shader.SetFloatArray("_colorLUT", state.ColorLUT)
		if len(state.ColorMixMatrix) == 9 {
			o.shader.SetMat3("_colorMixMatrix", state.ColorMixMatrix)
		}
	} else {
		o.shader.SetInt("_activateColorLUT", 0)
	}

	for i, t := range o.textures {
		if t.TextureID() == 0 {
			continue
		}
		if t.YCbCr() {
			o.shader.SetInt("_texYCbCr", 1)
		}
		bindTexture(uint32(i), t.TextureID())
		o.shader.SetInt(texUniformName(i), int32(i))
	}

	o.geom.Activate(state.ContextKey)
	o.geom.Draw()
	o.geom.Deactivate()
	o.shader.Deactivate()
}

// Destroy releases the shader, then the base object.
func (o *Object) Destroy() {
	if o.shader != nil {
		o.shader.Destroy()
	}
	o.BaseObject.Destroy()
}
