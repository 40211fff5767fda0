package userinput

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splashmapping/splash/common"
)

func TestKeyboardStateFIFO(t *testing.T) {
	k := NewKeyboard(nil)
	defer k.Destroy()

	k.Key("win1", 65, 0, actionPress, 0)
	k.Key("win1", 65, 0, actionRelease, 0)
	k.Char("win1", 'a')

	states := k.GetState("gui")
	require.Len(t, states, 3)
	assert.Equal(t, "keyboard_press", states[0].Action)
	assert.Equal(t, "keyboard_release", states[1].Action)
	assert.Equal(t, "keyboard_unicodeChar", states[2].Action)
	assert.Equal(t, int64(65), states[0].Value[0].AsInt())
	assert.Equal(t, "win1", states[0].Window)

	// The buffer was drained.
	assert.Empty(t, k.GetState("gui"))
}

func TestCaptureExclusivity(t *testing.T) {
	k := NewKeyboard(nil)
	defer k.Destroy()

	require.True(t, k.Capture("widget"))
	assert.False(t, k.Capture("other"), "capture is exclusive")

	k.Key("win1", 32, 0, actionPress, 0)

	// Any other id reads empty until release.
	assert.Empty(t, k.GetState("other"))
	assert.Len(t, k.GetState("widget"), 1)

	// Release by a non-capturer is ignored.
	k.Key("win1", 32, 0, actionPress, 0)
	k.Release("other")
	assert.Empty(t, k.GetState("other"))

	k.Release("widget")
	assert.Len(t, k.GetState("other"), 1)
}

func TestCallbackConsumesMatchingStates(t *testing.T) {
	k := NewKeyboard(nil)
	defer k.Destroy()

	var mu sync.Mutex
	var fired []State
	k.SetCallback(State{Action: "keyboard_press", Modifiers: common.ModControl}, func(s State) {
		mu.Lock()
		fired = append(fired, s)
		mu.Unlock()
	})

	// Value is ignored by matching; modifiers are not.
	k.Key("win1", 81, 0, actionPress, common.ModControl)
	k.Key("win1", 81, 0, actionPress, 0)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, time.Second, time.Millisecond)

	// The unmatched state remains pollable.
	assert.Eventually(t, func() bool {
		states := k.GetState("gui")
		return len(states) == 1 && states[0].Modifiers == 0
	}, time.Second, 5*time.Millisecond)

	k.ResetCallback(State{Action: "keyboard_press", Modifiers: common.ModControl})
	k.Key("win1", 81, 0, actionPress, common.ModControl)
	assert.Eventually(t, func() bool {
		return len(k.GetState("gui")) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestMousePositionIsSnapshot(t *testing.T) {
	m := NewMouse(nil)
	defer m.Destroy()

	m.MousePos("win1", 1, 1)
	m.MousePos("win1", 2, 2)
	m.MousePos("win1", 3, 4)

	assert.Eventually(t, func() bool {
		states := m.GetState("gui")
		for _, s := range states {
			if s.Action == "mouse_position" {
				return s.Value[0].AsFloat() == 3 && s.Value[1].AsFloat() == 4
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestJoystickAxisAccumulation(t *testing.T) {
	j := &Joystick{
		axes:    make(map[int][]float32),
		buttons: make(map[int][]byte),
		pollFunc: func(id int) ([]float32, []byte, bool) {
			if id != 0 {
				return nil, nil, false
			}
			return []float32{0.5, 0.1}, []byte{1, 0}, true
		},
	}
	// The loop thread is left without an update method so the polls below
	// are the only integration source.
	j.initInput(nil, "joystick")
	defer j.Destroy()

	// Two polls accumulate the first axis; the second stays in the dead
	// zone. The read resets the accumulators.
	j.poll()
	j.poll()

	var axes, buttons *State
	for _, s := range j.GetState("gui") {
		copied := s
		switch s.Action {
		case "joystick_0_axes":
			axes = &copied
		case "joystick_0_buttons":
			buttons = &copied
		}
	}
	require.NotNil(t, axes)
	assert.InDelta(t, 1.0, axes.Value[0].AsFloat(), 1e-6)
	assert.Equal(t, 0.0, axes.Value[1].AsFloat())

	require.NotNil(t, buttons)
	assert.True(t, buttons.Value[0].AsBool())
	assert.False(t, buttons.Value[1].AsBool())

	// Accumulators were reset by the read.
	for _, s := range j.GetState("gui") {
		assert.NotEqual(t, "joystick_0_axes", s.Action)
	}
}

func TestDragNDropPaths(t *testing.T) {
	d := NewDragNDrop(nil)
	defer d.Destroy()

	d.Drop("win1", []string{"/tmp/a.obj", "/tmp/b.png"})
	states := d.GetState("gui")
	require.Len(t, states, 1)
	assert.Equal(t, "dragndrop", states[0].Action)
	require.Len(t, states[0].Value, 2)
	assert.Equal(t, "/tmp/a.obj", states[0].Value[0].AsString())
}
