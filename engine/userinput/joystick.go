package userinput

import (
	"strconv"
	"sync"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/graph"
)

// JoystickDeadZone zeroes axis readings below this absolute value.
const JoystickDeadZone = 0.2

// Joystick polls every connected GLFW joystick. Axis values are
// accumulated between reads and reset on read, so a poll-and-integrate
// consumer does not miss transient deflections; button values are the
// current press state.
type Joystick struct {
	Input

	hwMu    sync.Mutex
	axes    map[int][]float32
	buttons map[int][]byte

	// pollFunc reads one joystick's hardware; replaced in tests.
	pollFunc func(id int) (axes []float32, buttons []byte, present bool)
}

// NewJoystick creates the joystick aggregator and starts its loop.
func NewJoystick(rootObj graph.Root) *Joystick {
	j := &Joystick{
		axes:     make(map[int][]float32),
		buttons:  make(map[int][]byte),
		pollFunc: pollGLFWJoystick,
	}
	j.initInput(rootObj, "joystick")
	j.updateMethod = j.poll
	return j
}

// poll integrates every present joystick's deflections.
func (j *Joystick) poll() {
	j.hwMu.Lock()
	defer j.hwMu.Unlock()
	for id := 0; id <= int(glfw.JoystickLast); id++ {
		axes, buttons, present := j.pollFunc(id)
		if !present {
			continue
		}
		acc := j.axes[id]
		if len(acc) != len(axes) {
			acc = make([]float32, len(axes))
		}
		for i, v := range axes {
			if v > -JoystickDeadZone && v < JoystickDeadZone {
				continue // dead zone
			}
			acc[i] += v
		}
		j.axes[id] = acc
		j.buttons[id] = buttons
	}
}

// GetState flushes the accumulated axes and current button states into
// the buffer, then drains it. The axis accumulators reset here.
func (j *Joystick) GetState(id string) []State {
	j.flush()
	return j.Input.GetState(id)
}

func (j *Joystick) flush() {
	j.hwMu.Lock()
	defer j.hwMu.Unlock()
	for id, acc := range j.axes {
		values := make(common.Values, len(acc))
		nonZero := false
		for i, v := range acc {
			values[i] = common.R(v)
			if v != 0 {
				nonZero = true
			}
			acc[i] = 0
		}
		if nonZero {
			j.push(State{
				Action: "joystick_" + strconv.Itoa(id) + "_axes",
				Value:  values,
			})
		}
	}
	for id, buttons := range j.buttons {
		if len(buttons) == 0 {
			continue
		}
		values := make(common.Values, len(buttons))
		for i, b := range buttons {
			values[i] = common.B(b != 0)
		}
		j.push(State{
			Action: "joystick_" + strconv.Itoa(id) + "_buttons",
			Value:  values,
		})
	}
}

func pollGLFWJoystick(id int) ([]float32, []byte, bool) {
	joy := glfw.Joystick(id)
	if !joy.Present() {
		return nil, nil, false
	}
	axes := joy.GetAxes()
	rawButtons := joy.GetButtons()
	buttons := make([]byte, len(rawButtons))
	for i, b := range rawButtons {
		buttons[i] = byte(b)
	}
	return axes, buttons, true
}
