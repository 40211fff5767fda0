// Package userinput implements the pollable, callback-dispatchable input
// aggregator: window, keyboard, mouse, joystick and drag-and-drop events
// coalesced into state records drained by GetState or consumed by
// registered callbacks.
package userinput

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/graph"
)

// Update-rate bounds of the input loop, in Hz.
const (
	DefaultUpdateRate = 100
	MinUpdateRate     = 10
)

// State is one aggregated input record.
type State struct {
	Action    string
	Value     common.Values
	Modifiers int
	Window    string
}

// Matches compares two states on action and modifiers only; the value is
// ignored, as callback patterns are keyed that way.
func (s State) Matches(o State) bool {
	return s.Action == o.Action && s.Modifiers == o.Modifiers
}

type callbackKey struct {
	action    string
	modifiers int
}

// Input is the base aggregator embedded by the concrete sources. Its loop
// thread runs at updateRate Hz, dispatching matching callbacks and leaving
// unmatched states for the next GetState.
type Input struct {
	graph.BaseObject

	updateRate int32

	stateMu sync.Mutex
	state   []State

	captureMu sync.Mutex
	captured  bool
	capturer  string

	callbackMu sync.Mutex
	callbacks  map[callbackKey]func(State)

	// updateMethod, when set, runs each tick before callback dispatch;
	// polling sources (joystick) drain their hardware here.
	updateMethod func()

	running atomic.Bool
	stopCh  chan struct{}
	done    sync.WaitGroup
}

// initInput wires the base and starts the loop thread.
func (in *Input) initInput(rootObj graph.Root, typeName string) {
	in.updateRate = DefaultUpdateRate
	in.callbacks = make(map[callbackKey]func(State))
	in.stopCh = make(chan struct{})
	in.Init(rootObj, typeName, graph.CategoryControl, graph.PriorityNoRender)
	in.registerAttributes()

	in.running.Store(true)
	in.done.Add(1)
	go in.updateLoop()
}

func (in *Input) registerAttributes() {
	in.AddAttribute("updateRate", "n", func(args common.Values) bool {
		v := int32(args[0].AsInt())
		if v < MinUpdateRate {
			v = MinUpdateRate
		}
		atomic.StoreInt32(&in.updateRate, v)
		return true
	}, func() common.Values {
		return common.Values{common.I(atomic.LoadInt32(&in.updateRate))}
	}).Doc("Loop frequency of the input aggregator, in Hz")
}

// updateLoop ticks at updateRate Hz until Destroy.
func (in *Input) updateLoop() {
	defer in.done.Done()
	for in.running.Load() {
		rate := atomic.LoadInt32(&in.updateRate)
		period := time.Duration(1e9 / int64(rate))

		if in.updateMethod != nil {
			in.updateMethod()
		}
		in.dispatchCallbacks()

		select {
		case <-in.stopCh:
			return
		case <-time.After(period):
		}
	}
}

// dispatchCallbacks consumes the states matching a registered pattern and
// invokes the callbacks synchronously; unmatched states stay buffered.
func (in *Input) dispatchCallbacks() {
	in.callbackMu.Lock()
	defer in.callbackMu.Unlock()
	if len(in.callbacks) == 0 {
		return
	}

	in.stateMu.Lock()
	kept := in.state[:0]
	var fired []struct {
		fn func(State)
		s  State
	}
	for _, s := range in.state {
		if fn, ok := in.callbacks[callbackKey{s.Action, s.Modifiers}]; ok {
			fired = append(fired, struct {
				fn func(State)
				s  State
			}{fn, s})
		} else {
			kept = append(kept, s)
		}
	}
	in.state = kept
	in.stateMu.Unlock()

	for _, f := range fired {
		f.fn(f.s)
	}
}

// Capture atomically sets the capturer; GetState from any other id returns
// empty until the same id releases.
func (in *Input) Capture(id string) bool {
	in.captureMu.Lock()
	defer in.captureMu.Unlock()
	if in.captured {
		return false
	}
	in.captured = true
	in.capturer = id
	return true
}

// Release frees the capture, by the capturing id only.
func (in *Input) Release(id string) {
	in.captureMu.Lock()
	defer in.captureMu.Unlock()
	if in.captured && in.capturer == id {
		in.captured = false
		in.capturer = ""
	}
}

// GetState drains and returns the accumulated states, unless the
// aggregator is captured by another id.
func (in *Input) GetState(id string) []State {
	in.stateMu.Lock()
	defer in.stateMu.Unlock()

	in.captureMu.Lock()
	capturedByOther := in.captured && in.capturer != id
	in.captureMu.Unlock()
	if capturedByOther {
		return nil
	}

	out := in.state
	in.state = nil
	return out
}

// SetCallback registers a callback keyed by the pattern's action and
// modifiers.
func (in *Input) SetCallback(pattern State, fn func(State)) {
	in.callbackMu.Lock()
	in.callbacks[callbackKey{pattern.Action, pattern.Modifiers}] = fn
	in.callbackMu.Unlock()
}

// ResetCallback removes the callback registered for the pattern.
func (in *Input) ResetCallback(pattern State) {
	in.callbackMu.Lock()
	delete(in.callbacks, callbackKey{pattern.Action, pattern.Modifiers})
	in.callbackMu.Unlock()
}

// push appends one state to the buffer, FIFO across ticks.
func (in *Input) push(s State) {
	in.stateMu.Lock()
	in.state = append(in.state, s)
	in.stateMu.Unlock()
}

// Destroy stops the loop thread, then the base object.
func (in *Input) Destroy() {
	if in.running.CompareAndSwap(true, false) {
		close(in.stopCh)
	}
	in.done.Wait()
	in.BaseObject.Destroy()
}
