package userinput

import (
	"sync"

	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/graph"
)

// Mouse aggregates button and scroll events in arrival order, and the
// pointer position as at most one snapshot per loop tick.
type Mouse struct {
	Input

	posMu     sync.Mutex
	posWindow string
	posX      float64
	posY      float64
	posDirty  bool
}

// NewMouse creates the mouse aggregator and starts its loop.
func NewMouse(rootObj graph.Root) *Mouse {
	m := &Mouse{}
	m.initInput(rootObj, "mouse")
	m.updateMethod = m.snapshotPosition
	return m
}

// MouseButton receives a raw button event from a window.
func (m *Mouse) MouseButton(window string, button, action, mods int) {
	var name string
	switch action {
	case actionPress:
		name = "mouse_press"
	case actionRelease:
		name = "mouse_release"
	default:
		return
	}
	m.push(State{
		Action:    name,
		Value:     common.Values{common.I(button)},
		Modifiers: mods,
		Window:    window,
	})
}

// MousePos records the latest pointer position; only the most recent one
// is visible per tick.
func (m *Mouse) MousePos(window string, x, y float64) {
	m.posMu.Lock()
	m.posWindow = window
	m.posX, m.posY = x, y
	m.posDirty = true
	m.posMu.Unlock()
}

// Scroll receives a raw scroll event from a window.
func (m *Mouse) Scroll(window string, xoff, yoff float64) {
	m.push(State{
		Action: "mouse_scroll",
		Value:  common.Values{common.R(xoff), common.R(yoff)},
		Window: window,
	})
}

// snapshotPosition folds the pending position into the state buffer once
// per tick.
func (m *Mouse) snapshotPosition() {
	m.posMu.Lock()
	dirty := m.posDirty
	window := m.posWindow
	x, y := m.posX, m.posY
	m.posDirty = false
	m.posMu.Unlock()
	if !dirty {
		return
	}
	m.push(State{
		Action: "mouse_position",
		Value:  common.Values{common.R(x), common.R(y)},
		Window: window,
	})
}
