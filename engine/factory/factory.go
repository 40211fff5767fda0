// Package factory maps type strings to object constructors. Constructing
// an unknown type returns nil, never panics.
package factory

import (
	"sort"

	"github.com/splashmapping/splash/engine/blender"
	"github.com/splashmapping/splash/engine/calibrator"
	"github.com/splashmapping/splash/engine/camera"
	"github.com/splashmapping/splash/engine/filter"
	"github.com/splashmapping/splash/engine/geometry"
	"github.com/splashmapping/splash/engine/graph"
	"github.com/splashmapping/splash/engine/gui"
	"github.com/splashmapping/splash/engine/image"
	"github.com/splashmapping/splash/engine/mesh"
	"github.com/splashmapping/splash/engine/object"
	"github.com/splashmapping/splash/engine/queue"
	"github.com/splashmapping/splash/engine/texture"
	"github.com/splashmapping/splash/engine/warp"
	"github.com/splashmapping/splash/engine/window"
)

// Description documents one constructible type.
type Description struct {
	Category graph.Category
	Short    string
}

type builder func(graph.Root) graph.Object

var constructors = map[string]builder{
	"blender":         func(r graph.Root) graph.Object { return blender.New(r) },
	"camera":          func(r graph.Root) graph.Object { return camera.New(r) },
	"colorCalibrator": func(r graph.Root) graph.Object { return calibrator.New(r) },
	"filter":          func(r graph.Root) graph.Object { return filter.New(r) },
	"geometry":        func(r graph.Root) graph.Object { return geometry.New(r) },
	"gui":             func(r graph.Root) graph.Object { return gui.New(r) },
	"image":           func(r graph.Root) graph.Object { return image.New(r) },
	"mesh":            func(r graph.Root) graph.Object { return mesh.New(r) },
	"object":          func(r graph.Root) graph.Object { return object.New(r) },
	"queue":           func(r graph.Root) graph.Object { return queue.New(r) },
	"texture_image":   func(r graph.Root) graph.Object { return texture.New(r) },
	"warp":            func(r graph.Root) graph.Object { return warp.New(r) },
	"window":          func(r graph.Root) graph.Object { return window.New(r) },
}

var descriptions = map[string]Description{
	"blender":         {graph.CategoryControl, "Controls the blending of the cameras' outputs"},
	"camera":          {graph.CategoryOther, "Virtual camera rendering the objects for one projector"},
	"colorCalibrator": {graph.CategoryControl, "Recovers per-projector color response through a capture device"},
	"filter":          {graph.CategoryOther, "Shader pass applied to a texture"},
	"geometry":        {graph.CategoryOther, "GPU geometry fed by a mesh"},
	"gui":             {graph.CategoryControl, "Control surface of the master scene"},
	"image":           {graph.CategoryImage, "Still image buffer"},
	"mesh":            {graph.CategoryMesh, "Triangulated mesh buffer, loaded from OBJ"},
	"object":          {graph.CategoryOther, "Textured drawable placed in front of the cameras"},
	"queue":           {graph.CategoryMixer, "Timed playlist of media sources"},
	"texture_image":   {graph.CategoryTexture, "GPU texture fed by an image buffer"},
	"warp":            {graph.CategoryOther, "Output deformation lattice for one projector"},
	"window":          {graph.CategoryOther, "Projector output window"},
}

// New constructs an object of the given type attached to the root.
// Unknown types yield nil.
func New(typeName string, rootObj graph.Root) graph.Object {
	build, ok := constructors[typeName]
	if !ok {
		return nil
	}
	return build(rootObj)
}

// Exists reports whether the type string is constructible.
func Exists(typeName string) bool {
	_, ok := constructors[typeName]
	return ok
}

// Describe returns the description of a type.
func Describe(typeName string) (Description, bool) {
	d, ok := descriptions[typeName]
	return d, ok
}

// Types lists the constructible type strings, sorted.
func Types() []string {
	out := make([]string, 0, len(constructors))
	for name := range constructors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
