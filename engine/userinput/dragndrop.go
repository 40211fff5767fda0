package userinput

import (
	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/graph"
)

// DragNDrop aggregates file-drop events.
type DragNDrop struct {
	Input
}

// NewDragNDrop creates the drop aggregator and starts its loop.
func NewDragNDrop(rootObj graph.Root) *DragNDrop {
	d := &DragNDrop{}
	d.initInput(rootObj, "dragndrop")
	return d
}

// Drop receives the paths dropped onto a window.
func (d *DragNDrop) Drop(window string, paths []string) {
	values := make(common.Values, len(paths))
	for i, p := range paths {
		values[i] = common.S(p)
	}
	d.push(State{
		Action: "dragndrop",
		Value:  values,
		Window: window,
	})
}
