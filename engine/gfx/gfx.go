// Package gfx wraps the OpenGL resources the render scheduler drives:
// GPU buffers, textures with their PBO upload rings, framebuffers, shader
// programs and fence syncs. All calls must run on a thread owning a GL
// context; the Scene pins its render and upload goroutines accordingly.
package gfx

import (
	"errors"
	"fmt"

	"github.com/go-gl/gl/v4.5-core/gl"
)

// ErrResource flags GL resource failures: incomplete framebuffers, failed
// allocations, failed PBO maps. The affected object enters an
// uninitialized state and refuses to render; the Scene continues.
var ErrResource = errors.New("gfx: resource error")

// Init loads the GL function pointers for the current context. Must be
// called once per context-owning thread after MakeContextCurrent.
func Init() error {
	if err := gl.Init(); err != nil {
		return fmt.Errorf("%w: %v", ErrResource, err)
	}
	return nil
}

// Flush submits all pending GL commands of the current context.
func Flush() { gl.Flush() }

// Fence wraps a GL sync object observed by one thread and signaled by
// another. The zero Fence is unsignaled and waits are no-ops.
type Fence struct {
	sync uintptr
}

// Insert issues a fence in the current context's command stream, deleting
// any previous one.
func (f *Fence) Insert() {
	if f.sync != 0 {
		gl.DeleteSync(f.sync)
	}
	f.sync = gl.FenceSync(gl.SYNC_GPU_COMMANDS_COMPLETE, 0)
}

// Wait makes the GPU wait for the fence on the current context without
// blocking the CPU.
func (f *Fence) Wait() {
	if f.sync == 0 {
		return
	}
	gl.WaitSync(f.sync, 0, gl.TIMEOUT_IGNORED)
}

// ClientWait blocks the calling CPU thread until the fence signals or the
// timeout (nanoseconds) expires. Returns false on timeout.
func (f *Fence) ClientWait(timeoutNs uint64) bool {
	if f.sync == 0 {
		return true
	}
	status := gl.ClientWaitSync(f.sync, gl.SYNC_FLUSH_COMMANDS_BIT, timeoutNs)
	return status == gl.ALREADY_SIGNALED || status == gl.CONDITION_SATISFIED
}

// Release deletes the underlying sync object.
func (f *Fence) Release() {
	if f.sync != 0 {
		gl.DeleteSync(f.sync)
		f.sync = 0
	}
}
