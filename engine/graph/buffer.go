package graph

import (
	"errors"
	"sync"
	"time"

	"github.com/splashmapping/splash/common"
)

// ErrDeserialize is returned when a serialized payload cannot be decoded by
// the destination buffer object.
var ErrDeserialize = errors.New("graph: cannot deserialize buffer")

// Serialized is an owned, shiftable byte array plus the originating object
// name and timestamp. It carries enough metadata to be deserialized by a
// BufferObject of the right derived type on the far side.
type Serialized struct {
	Name      string
	Timestamp int64
	Data      *common.ResizableArray[byte]
}

// BufferObject is a graph object whose value is a large binary payload
// replicated across processes.
type BufferObject interface {
	Object

	// Timestamp returns the nanoseconds-since-epoch stamp of the content.
	Timestamp() int64

	// BumpTimestamp moves the timestamp to now. It never goes backward.
	BumpTimestamp()

	// Serialize snapshots the content under the read lock.
	Serialize() *Serialized

	// Deserialize replaces the content under the write lock. It may fail.
	Deserialize(s *Serialized) error

	// UpdatedBuffer reports whether the content changed since the flag was
	// last cleared; the world replication tick and the texture-upload
	// thread consume it.
	UpdatedBuffer() bool

	// ClearUpdatedBuffer clears the replication dirty flag.
	ClearUpdatedBuffer()
}

// BufferBase implements the timestamp and lock discipline shared by Image
// and Mesh. Content readers take RLock, writers and Deserialize take Lock.
type BufferBase struct {
	BaseObject

	// RW guards the buffer content. Update and serialization take the write
	// or read side explicitly in the derived types.
	RW sync.RWMutex

	tsMu      sync.Mutex
	timestamp int64

	updatedBuffer sync.Mutex // protects updatedFlag only
	updatedFlag   bool
}

func (b *BufferBase) Timestamp() int64 {
	b.tsMu.Lock()
	defer b.tsMu.Unlock()
	return b.timestamp
}

// BumpTimestamp stamps the content with the current time. The timestamp is
// monotonic: an older stamp never replaces a newer one.
func (b *BufferBase) BumpTimestamp() {
	b.SetTimestamp(time.Now().UnixNano())
}

// SetTimestamp applies a stamp coming from a deserialized payload, keeping
// the monotonic invariant.
func (b *BufferBase) SetTimestamp(ts int64) {
	b.tsMu.Lock()
	if ts > b.timestamp {
		b.timestamp = ts
	}
	b.tsMu.Unlock()

	b.updatedBuffer.Lock()
	b.updatedFlag = true
	b.updatedBuffer.Unlock()
	b.SetUpdated(true)
}

func (b *BufferBase) UpdatedBuffer() bool {
	b.updatedBuffer.Lock()
	defer b.updatedBuffer.Unlock()
	return b.updatedFlag
}

func (b *BufferBase) ClearUpdatedBuffer() {
	b.updatedBuffer.Lock()
	b.updatedFlag = false
	b.updatedBuffer.Unlock()
}
