// Package graph holds the attributed-object model shared by every process:
// the GraphObject base with its attribute runtime, buffer objects with
// serialization, the name registry, and the Root interface through which
// objects and controllers reach their owning World or Scene.
package graph

// Priority orders objects inside the render loop. Priorities partition the
// object list into bands; within a band, insertion order is stable.
type Priority int

const (
	PriorityNoRender   Priority = -1 // object is never rendered
	PriorityMedia      Priority = 5  // images, meshes, queues
	PriorityBlending   Priority = 10 // blending controller
	PriorityPreCamera  Priority = 15 // filters feeding cameras
	PriorityCamera     Priority = 20 // cameras
	PriorityPostCamera Priority = 25 // warps
	PriorityWindow     Priority = 30 // output windows
	PriorityGUI        Priority = 35 // gui, always last
)

// Category tags the broad family an object type belongs to.
type Category int

const (
	CategoryOther Category = iota
	CategoryImage
	CategoryMesh
	CategoryMixer
	CategoryControl
	CategoryTexture
)

// String returns the category name as used in type descriptions.
func (c Category) String() string {
	switch c {
	case CategoryImage:
		return "image"
	case CategoryMesh:
		return "mesh"
	case CategoryMixer:
		return "mixer"
	case CategoryControl:
		return "control"
	case CategoryTexture:
		return "texture"
	default:
		return "other"
	}
}
