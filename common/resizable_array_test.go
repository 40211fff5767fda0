package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResizableArrayResizeZero(t *testing.T) {
	a := NewResizableArray[byte](16)
	a.Resize(0)
	assert.Equal(t, 0, a.Size())
}

func TestResizableArrayShiftThenResize(t *testing.T) {
	a := ResizableArrayFrom([]byte{0, 1, 2, 3, 4, 5, 6, 7})
	a.Shift(3)
	assert.Equal(t, 5, a.Size())
	assert.Equal(t, byte(3), a.Data()[0])

	// resize(n) after shift(k) preserves the first min(old_size-k, n)
	// elements.
	a.Resize(3)
	assert.Equal(t, 3, a.Size())
	assert.Equal(t, []byte{3, 4, 5}, a.Data())

	a.Resize(6)
	assert.Equal(t, 6, a.Size())
	assert.Equal(t, []byte{3, 4, 5, 0, 0, 0}, a.Data())
}

func TestResizableArrayShiftPastEnd(t *testing.T) {
	a := ResizableArrayFrom([]byte{1, 2})
	a.Shift(10)
	assert.Equal(t, 0, a.Size())
}
