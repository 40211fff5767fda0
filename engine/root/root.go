// Package root implements the common ancestor of World and Scene: the
// graph-object registry, the task queue, the periodic-task scheduler and
// the attached Link endpoint with request/answer messaging.
package root

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/graph"
	"github.com/splashmapping/splash/engine/link"
)

// Hidden message attributes implementing request/answer round-trips.
const (
	askAttribute    = "__ask__"
	answerAttribute = "__answer__"
)

type periodicTask struct {
	fn      func()
	period  time.Duration
	lastRun time.Time
	running atomic.Bool
}

// Root aggregates the shared runtime of World and Scene. Concrete roots
// embed it and override the message handling hooks they need.
type Root struct {
	graph.BaseObject

	log      zerolog.Logger
	registry *graph.NameRegistry

	objMu    sync.Mutex
	objects  map[string]graph.Object
	objOrder []string

	taskMu sync.Mutex
	tasks  []func()

	periodicMu sync.Mutex
	periodic   map[string]*periodicTask

	lnk *link.Link

	answerMu  sync.Mutex
	answerID  atomic.Int64
	answers   map[int64]chan common.Values
	transport map[string]string // peer -> uri of the connected peers

	// OnMessage, when set, gets first crack at every incoming message
	// frame and reports whether it consumed it. The World wires its relay
	// here: in the star topology the Scenes only ever connect to the
	// World, so object-addressed and sentinel-addressed frames must be
	// forwarded to the Scene that owns the destination.
	OnMessage func(dest, attr string, args common.Values) bool

	// OnBufferRelay, when set, is consulted for serialized payloads whose
	// destination is not a local object; the World forwards them to its
	// Scenes here.
	OnBufferRelay func(s *graph.Serialized) bool

	// OnBufferReceived, when set, is called after a serialized payload was
	// deserialized into a local object; the Scene wakes its texture-upload
	// thread here.
	OnBufferReceived func(name string)

	master bool
	quit   atomic.Bool
}

// NewRoot creates the root with its name bound on the Link's in-process
// registry.
func NewRoot(name string, master bool, log zerolog.Logger) (*Root, error) {
	r := &Root{
		log:       log.With().Str("root", name).Logger(),
		registry:  graph.NewNameRegistry(),
		objects:   make(map[string]graph.Object),
		periodic:  make(map[string]*periodicTask),
		answers:   make(map[int64]chan common.Values),
		transport: make(map[string]string),
		master:    master,
	}
	r.Init(r, "root", graph.CategoryOther, graph.PriorityNoRender)
	r.SetName(name)
	r.registry.RegisterName(name)

	lnk, err := link.NewLink(name, r.handleLinkMessage, r.SetFromSerialized, log)
	if err != nil {
		return nil, err
	}
	r.lnk = lnk
	return r, nil
}

// Logger returns the root's logger.
func (r *Root) Logger() zerolog.Logger { return r.log }

// Registry returns the name/id registry.
func (r *Root) Registry() *graph.NameRegistry { return r.registry }

// IsMaster reports whether this root drives the installation.
func (r *Root) IsMaster() bool { return r.master }

// Transport exposes the link endpoint, for IPC socket binding.
func (r *Root) Transport() *link.Link { return r.lnk }

// Quitting reports whether shutdown was requested.
func (r *Root) Quitting() bool { return r.quit.Load() }

// RequestQuit flags the root for shutdown.
func (r *Root) RequestQuit() { r.quit.Store(true) }

// ConnectTo wires the outgoing transport toward a peer.
func (r *Root) ConnectTo(peer, uri string) error {
	if err := r.lnk.ConnectTo(peer, uri); err != nil {
		return err
	}
	r.answerMu.Lock()
	r.transport[peer] = uri
	r.answerMu.Unlock()
	return nil
}

// DisconnectFrom drops a peer. Other peers keep working.
func (r *Root) DisconnectFrom(peer string) {
	r.lnk.DisconnectFrom(peer)
	r.answerMu.Lock()
	delete(r.transport, peer)
	r.answerMu.Unlock()
}

// ── Registry ───────────────────────────────────────────────────────────

// AddObject attaches an object to the registry under the given name. The
// name must be unique within the process.
func (r *Root) AddObject(name string, obj graph.Object) bool {
	if name == "" || obj == nil {
		return false
	}
	r.objMu.Lock()
	defer r.objMu.Unlock()
	if _, exists := r.objects[name]; exists {
		r.log.Warn().Str("object", name).Msg("name already registered")
		return false
	}
	r.registry.RegisterName(name)
	obj.SetName(name)
	r.objects[name] = obj
	r.objOrder = append(r.objOrder, name)
	return true
}

// RemoveObject detaches and destroys an object. Pending-task quiescence is
// enforced by Destroy before resources go away.
func (r *Root) RemoveObject(name string) {
	r.objMu.Lock()
	obj, ok := r.objects[name]
	if ok {
		delete(r.objects, name)
		for i, n := range r.objOrder {
			if n == name {
				r.objOrder = append(r.objOrder[:i], r.objOrder[i+1:]...)
				break
			}
		}
	}
	r.objMu.Unlock()
	if !ok {
		return
	}
	// Drop links referencing the removed object so the registry never holds
	// a link to a missing endpoint.
	for _, other := range r.Objects() {
		other.TryUnlink(obj)
	}
	obj.Destroy()
	r.registry.UnregisterName(name)
}

func (r *Root) GetObject(name string) (graph.Object, bool) {
	r.objMu.Lock()
	defer r.objMu.Unlock()
	obj, ok := r.objects[name]
	return obj, ok
}

func (r *Root) Objects() []graph.Object {
	r.objMu.Lock()
	defer r.objMu.Unlock()
	out := make([]graph.Object, 0, len(r.objOrder))
	for _, name := range r.objOrder {
		out = append(out, r.objects[name])
	}
	return out
}

func (r *Root) ObjectsOfType(typeName string) []graph.Object {
	out := []graph.Object{}
	for _, obj := range r.Objects() {
		if obj.Type() == typeName {
			out = append(out, obj)
		}
	}
	return out
}

// Link links object from into object to: to accepts from as an input.
func (r *Root) Link(from, to string) bool {
	src, okFrom := r.GetObject(from)
	dst, okTo := r.GetObject(to)
	if !okFrom || !okTo {
		return false
	}
	return dst.TryLink(src)
}

func (r *Root) Unlink(from, to string) {
	src, okFrom := r.GetObject(from)
	dst, okTo := r.GetObject(to)
	if okFrom && okTo {
		dst.TryUnlink(src)
	}
}

// ── Attribute routing ──────────────────────────────────────────────────

// Set applies an attribute set on a local object, or on the root itself
// when objName equals the root's name.
func (r *Root) Set(objName, attr string, args common.Values) bool {
	if objName == r.Name() {
		return r.SetAttribute(attr, args)
	}
	obj, ok := r.GetObject(objName)
	if !ok {
		r.log.Debug().Str("object", objName).Str("attribute", attr).Msg("set on unknown object")
		return false
	}
	if !obj.SetAttribute(attr, args) {
		r.log.Warn().Str("object", objName).Str("attribute", attr).Msg("attribute set failed")
		return false
	}
	return true
}

// Get reads an attribute from a local object; empty when unknown.
func (r *Root) Get(objName, attr string) common.Values {
	if objName == r.Name() {
		if v, ok := r.GetAttribute(attr); ok {
			return v
		}
		return common.Values{}
	}
	obj, ok := r.GetObject(objName)
	if !ok {
		return common.Values{}
	}
	if v, okAttr := obj.GetAttribute(attr); okAttr {
		return v
	}
	return common.Values{}
}

// SetFromSerialized routes an incoming serialized payload into the
// destination buffer object, under its write lock. Payloads for objects
// this root does not own are offered to the relay hook.
func (r *Root) SetFromSerialized(s *graph.Serialized) {
	obj, ok := r.GetObject(s.Name)
	if !ok {
		if r.OnBufferRelay != nil && r.OnBufferRelay(s) {
			return
		}
		r.log.Debug().Str("object", s.Name).Msg("buffer for unknown object")
		return
	}
	buf, ok := obj.(graph.BufferObject)
	if !ok {
		r.log.Warn().Str("object", s.Name).Msg("buffer for non-buffer object")
		return
	}
	if err := buf.Deserialize(s); err != nil {
		r.log.Warn().Err(err).Str("object", s.Name).Msg("deserialize failed")
		return
	}
	if r.OnBufferReceived != nil {
		r.OnBufferReceived(s.Name)
	}
}

// ── Tasks ──────────────────────────────────────────────────────────────

func (r *Root) AddTask(fn func()) {
	r.taskMu.Lock()
	r.tasks = append(r.tasks, fn)
	r.taskMu.Unlock()
}

// RunTasks drains the task FIFO on the owning thread.
func (r *Root) RunTasks() {
	r.taskMu.Lock()
	tasks := r.tasks
	r.tasks = nil
	r.taskMu.Unlock()
	for _, fn := range tasks {
		fn()
	}
}

func (r *Root) AddPeriodicTask(name string, fn func(), period time.Duration) {
	r.periodicMu.Lock()
	r.periodic[name] = &periodicTask{fn: fn, period: period}
	r.periodicMu.Unlock()
}

func (r *Root) RemovePeriodicTask(name string) {
	r.periodicMu.Lock()
	delete(r.periodic, name)
	r.periodicMu.Unlock()
}

// RunPeriodicTasks dispatches due entries serially. A task whose previous
// invocation has not returned skips its tick.
func (r *Root) RunPeriodicTasks() {
	now := time.Now()
	r.periodicMu.Lock()
	due := make([]*periodicTask, 0, len(r.periodic))
	for _, t := range r.periodic {
		if now.Sub(t.lastRun) >= t.period {
			t.lastRun = now
			due = append(due, t)
		}
	}
	r.periodicMu.Unlock()

	for _, t := range due {
		if !t.running.CompareAndSwap(false, true) {
			continue
		}
		t.fn()
		t.running.Store(false)
	}
}

// ── Messaging ──────────────────────────────────────────────────────────

// SendMessage pushes an attribute-set message toward dest. The AllPeers
// sentinel broadcasts; OtherScenes broadcasts with the sender's name
// prepended so relays and receivers can exclude the sender's own Scene;
// the local root name enqueues locally; any other destination goes to the
// owning peer when known, otherwise to every peer — in the star topology
// that is the World, which relays it to the owning Scene.
func (r *Root) SendMessage(dest, attr string, args common.Values) {
	switch dest {
	case r.Name():
		r.AddTask(func() { r.Set(dest, attr, args) })
	case graph.AllPeers:
		for _, peer := range r.lnk.Peers() {
			_ = r.lnk.SendMessage(peer, dest, attr, args)
		}
	case graph.OtherScenes:
		wrapped := append(common.Values{common.S(r.Name())}, args...)
		for _, peer := range r.lnk.Peers() {
			_ = r.lnk.SendMessage(peer, dest, attr, wrapped)
		}
	default:
		for _, peer := range r.lnk.Peers() {
			if peer == dest {
				_ = r.lnk.SendMessage(peer, dest, attr, args)
				return
			}
		}
		for _, peer := range r.lnk.Peers() {
			_ = r.lnk.SendMessage(peer, dest, attr, args)
		}
	}
}

// SendMessageWithAnswer pushes a request and blocks the calling goroutine
// until the matching answer arrives or the timeout expires; empty on
// timeout.
func (r *Root) SendMessageWithAnswer(dest, attr string, args common.Values, timeout time.Duration) common.Values {
	id := r.answerID.Add(1)
	ch := make(chan common.Values, 1)
	r.answerMu.Lock()
	r.answers[id] = ch
	r.answerMu.Unlock()
	defer func() {
		r.answerMu.Lock()
		delete(r.answers, id)
		r.answerMu.Unlock()
	}()

	wrapped := append(common.Values{common.S(r.Name()), common.I(id), common.S(attr)}, args...)
	r.SendMessage(dest, askAttribute, wrapped)

	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		r.log.Warn().Str("remote", dest).Str("attribute", attr).Msg("message answer timed out")
		return common.Values{}
	}
}

// Answer wakes the waiter of a pending request.
func (r *Root) Answer(id int64, args common.Values) {
	r.answerMu.Lock()
	ch, ok := r.answers[id]
	r.answerMu.Unlock()
	if ok {
		select {
		case ch <- args:
		default:
		}
	}
}

// SendBuffer pushes a serialized buffer toward dest's twin object; the
// AllPeers sentinel fans out to every peer. The first overflow is returned.
func (r *Root) SendBuffer(dest string, s *graph.Serialized) error {
	if dest == graph.AllPeers {
		var firstErr error
		for _, peer := range r.lnk.Peers() {
			if err := r.lnk.SendBuffer(peer, s); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
	return r.lnk.SendBuffer(dest, s)
}

// handleLinkMessage dispatches one incoming message frame. It runs on the
// link's message input loop. The relay hook runs first so the World can
// forward frames whose destination lives on one of its Scenes.
func (r *Root) handleLinkMessage(dest, attr string, args common.Values) {
	switch attr {
	case askAttribute:
		if len(args) < 3 {
			return
		}
		// Only the owner of the destination answers; anyone else either
		// relays the request or drops it (pub/sub delivery reaches every
		// peer).
		if dest != r.Name() {
			if _, ok := r.GetObject(dest); !ok {
				if r.OnMessage != nil {
					r.OnMessage(dest, attr, args)
				}
				return
			}
		}
		origin := args[0].AsString()
		id := args[1].AsInt()
		realAttr := args[2].AsString()
		realArgs := args[3:]
		r.AddTask(func() {
			r.Set(dest, realAttr, realArgs)
			result := r.Get(dest, realAttr)
			r.SendMessage(origin, answerAttribute, append(common.Values{common.I(id)}, result...))
		})
		return
	case answerAttribute:
		if len(args) < 1 {
			return
		}
		// Answers addressed to another root pass through untouched.
		if dest != r.Name() && r.OnMessage != nil && r.OnMessage(dest, attr, args) {
			return
		}
		r.Answer(args[0].AsInt(), args[1:].Clone())
		return
	}

	if r.OnMessage != nil && r.OnMessage(dest, attr, args) {
		return
	}

	if dest == graph.OtherScenes {
		// The first argument carries the sender's name; its own Scene
		// skips the message.
		if len(args) >= 1 {
			if args[0].AsString() == r.Name() {
				return
			}
			args = args[1:]
		}
		payload := args
		r.AddTask(func() { r.SetAttribute(attr, payload) })
		return
	}
	if dest == r.Name() || dest == graph.AllPeers {
		r.AddTask(func() { r.SetAttribute(attr, args) })
		return
	}
	if _, ok := r.GetObject(dest); ok {
		r.AddTask(func() { r.Set(dest, attr, args) })
		return
	}
	// Not ours: pub/sub delivery to non-owners is expected, stay silent.
}

// Close tears down the link endpoint.
func (r *Root) Close() {
	r.lnk.Close()
}
