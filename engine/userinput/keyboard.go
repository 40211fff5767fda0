package userinput

import (
	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/graph"
)

// GLFW action codes, mirrored to avoid a hard dependency in every source.
const (
	actionRelease = 0
	actionPress   = 1
	actionRepeat  = 2
)

// Keyboard aggregates key and unicode character events, in arrival order.
type Keyboard struct {
	Input
}

// NewKeyboard creates the keyboard aggregator and starts its loop.
func NewKeyboard(rootObj graph.Root) *Keyboard {
	k := &Keyboard{}
	k.initInput(rootObj, "keyboard")
	return k
}

// Key receives a raw key event from a window.
func (k *Keyboard) Key(window string, key, scancode, action, mods int) {
	var name string
	switch action {
	case actionPress:
		name = "keyboard_press"
	case actionRepeat:
		name = "keyboard_repeat"
	case actionRelease:
		name = "keyboard_release"
	default:
		return
	}
	k.push(State{
		Action:    name,
		Value:     common.Values{common.I(key)},
		Modifiers: mods,
		Window:    window,
	})
}

// Char receives a decoded unicode input character from a window.
func (k *Keyboard) Char(window string, codepoint rune) {
	k.push(State{
		Action: "keyboard_unicodeChar",
		Value:  common.Values{common.I(int64(codepoint))},
		Window: window,
	})
}
