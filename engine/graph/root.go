package graph

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/splashmapping/splash/common"
)

// Broadcast sentinels for message destinations.
const (
	// AllPeers routes a message to every connected peer.
	AllPeers = "__ALL__"
	// OtherScenes routes a message to every Scene except the sender's own.
	OtherScenes = "__ALL_OTHER_SCENES__"
)

// Root is the contract World and Scene expose to the objects and
// controllers they own: registry lookups, attribute routing, task
// scheduling and cross-process messaging.
type Root interface {
	// Name returns the root's own name (world name or scene name).
	Name() string

	// Logger returns the root's logger; objects derive theirs from it.
	Logger() zerolog.Logger

	// Registry returns the name/id registry.
	Registry() *NameRegistry

	// IsMaster reports whether this root is the master Scene (or the World).
	IsMaster() bool

	// GetObject looks up an object by name.
	GetObject(name string) (Object, bool)

	// AddObject attaches an object to the registry under the given name,
	// unique within the process.
	AddObject(name string, obj Object) bool

	// RemoveObject detaches and destroys an object, enforcing
	// pending-task quiescence first.
	RemoveObject(name string)

	// Objects returns a stable-ordered snapshot of the registry, in
	// insertion order.
	Objects() []Object

	// ObjectsOfType returns the objects whose factory type matches.
	ObjectsOfType(typeName string) []Object

	// Set applies an attribute set on a local object (or on the root itself
	// when objName equals the root's name), returning success.
	Set(objName, attr string, args common.Values) bool

	// Get reads an attribute from a local object; empty when unknown.
	Get(objName, attr string) common.Values

	// Link links object from into object to, locally.
	Link(from, to string) bool

	// Unlink removes a link, locally.
	Unlink(from, to string)

	// SendMessage pushes an attribute-set message toward dest. Sentinels
	// AllPeers and OtherScenes broadcast; the local root name enqueues
	// locally.
	SendMessage(dest, attr string, args common.Values)

	// SendMessageWithAnswer pushes a request and blocks until the matching
	// answer arrives or the timeout expires; empty on timeout.
	SendMessageWithAnswer(dest, attr string, args common.Values, timeout time.Duration) common.Values

	// SendBuffer pushes a serialized buffer toward dest's twin object.
	SendBuffer(dest string, s *Serialized) error

	// AddTask enqueues a callable on the root's next tick.
	AddTask(fn func())

	// AddPeriodicTask (re)registers a named periodic task. Non-reentrant:
	// a tick is skipped while the previous invocation still runs.
	AddPeriodicTask(name string, fn func(), period time.Duration)

	// RemovePeriodicTask drops a periodic task.
	RemovePeriodicTask(name string)
}
