package graph

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/splashmapping/splash/common"
)

// Object is the polymorphic contract every graph object fulfils: it has
// attributes, a name unique within its root, a render priority, may link to
// other objects and may run pending tasks. Update and Render are no-ops for
// objects with no render behavior.
type Object interface {
	// ID returns the process-unique integer id.
	ID() int64

	// Name returns the object name, unique within the owning root.
	Name() string

	// SetName sets the object name. It does not touch the owning root's
	// registry; Root.AddObject calls it when registering the object.
	SetName(name string)

	// Type returns the factory type string.
	Type() string

	// Category returns the broad family tag.
	Category() Category

	// Priority returns the rendering priority band.
	Priority() Priority

	// Savable reports whether the object is emitted on configuration save.
	Savable() bool

	// Ghost reports whether this object is a master-side placeholder for an
	// object physically owned by a worker Scene.
	Ghost() bool

	// SetGhost flips the ghost flag.
	SetGhost(ghost bool)

	// WasUpdated reports the dirty bit consumed by the render scheduler.
	WasUpdated() bool

	// SetUpdated sets or clears the dirty bit.
	SetUpdated(updated bool)

	// SetAttribute validates and applies an attribute set, returning success.
	SetAttribute(name string, args common.Values) bool

	// GetAttribute returns the attribute value, and whether the attribute
	// exists.
	GetAttribute(name string) (common.Values, bool)

	// DescribeAttribute returns the registered documentation string.
	DescribeAttribute(name string) string

	// AttributeNames lists the registered attribute names, sorted.
	AttributeNames() []string

	// SavableAttributes returns stored values of savable attributes.
	SavableAttributes() map[string]common.Values

	// TryLink gives the object a chance to accept an incoming link from o.
	// The base implementation records the relation and accepts.
	TryLink(o Object) bool

	// TryUnlink drops an incoming link from o.
	TryUnlink(o Object)

	// LinkedObjects returns the names of objects linked into this one.
	LinkedObjects() []string

	// AddTask enqueues a callable run on the next RunTasks tick.
	AddTask(fn func())

	// RunTasks drains the pending task queue on the calling thread.
	RunTasks()

	// Update runs the per-frame update. Base implementation is a no-op.
	Update()

	// Render draws the object. Base implementation is a no-op.
	Render()

	// Destroy waits for pending-task quiescence and releases resources.
	Destroy()
}

// BaseObject carries the state and attribute runtime shared by every graph
// object. Concrete types embed it and register their attributes at
// construction time.
type BaseObject struct {
	id       int64
	name     string
	typeName string
	category Category
	priority Priority
	savable  bool
	ghost    atomic.Bool
	updated  atomic.Bool

	root Root
	Log  zerolog.Logger

	attrMu sync.Mutex
	attrs  map[string]*Attribute

	linkMu sync.Mutex
	linked []string // names of objects linked into this one

	taskMu  sync.Mutex
	tasks   []func()
	running sync.WaitGroup
}

var _ Object = (*BaseObject)(nil)

// Init wires the base with its root, type string and logger. Every concrete
// constructor calls it before registering attributes.
func (b *BaseObject) Init(root Root, typeName string, category Category, priority Priority) {
	b.root = root
	b.typeName = typeName
	b.category = category
	b.priority = priority
	b.savable = true
	b.attrs = make(map[string]*Attribute)
	if root != nil {
		b.id = root.Registry().NextID()
		b.Log = root.Logger().With().Str("object", typeName).Logger()
	} else {
		b.Log = zerolog.Nop()
	}
	b.registerBaseAttributes()
}

func (b *BaseObject) registerBaseAttributes() {
	b.AddAttribute("savable", "n", func(args common.Values) bool {
		b.savable = args[0].AsBool()
		return true
	}, func() common.Values {
		return common.Values{common.B(b.savable)}
	}).Doc("If false, the object is not saved in the configuration").NotSavable()

	b.AddAttribute("priorityShift", "n", func(args common.Values) bool {
		b.priority = Priority(args[0].AsInt())
		return true
	}, func() common.Values {
		return common.Values{common.I(int64(b.priority))}
	}).Doc("Shift the rendering priority of the object").NotSavable()
}

// Root returns the owning root object.
func (b *BaseObject) Root() Root { return b.root }

func (b *BaseObject) ID() int64          { return b.id }
func (b *BaseObject) Name() string       { return b.name }
func (b *BaseObject) SetName(n string)   { b.name = n }
func (b *BaseObject) Type() string       { return b.typeName }
func (b *BaseObject) Category() Category { return b.category }
func (b *BaseObject) Priority() Priority { return b.priority }
func (b *BaseObject) Savable() bool      { return b.savable }

// SetPriority overrides the rendering priority band.
func (b *BaseObject) SetPriority(p Priority) { b.priority = p }

func (b *BaseObject) Ghost() bool         { return b.ghost.Load() }
func (b *BaseObject) SetGhost(ghost bool) { b.ghost.Store(ghost) }
func (b *BaseObject) WasUpdated() bool    { return b.updated.Load() }
func (b *BaseObject) SetUpdated(u bool)   { b.updated.Store(u) }

// AddAttribute registers an attribute with the given signature, setter and
// optional getter, and returns it for fluent configuration.
func (b *BaseObject) AddAttribute(name, kinds string, set func(common.Values) bool, get func() common.Values) *Attribute {
	b.attrMu.Lock()
	defer b.attrMu.Unlock()
	a := &Attribute{name: name, kinds: kinds, setFunc: set, getFunc: get, savable: true}
	b.attrs[name] = a
	return a
}

func (b *BaseObject) SetAttribute(name string, args common.Values) bool {
	b.attrMu.Lock()
	a, ok := b.attrs[name]
	b.attrMu.Unlock()
	if !ok {
		b.Log.Warn().Str("attribute", name).Msg("unknown attribute")
		return false
	}
	return a.set(args)
}

func (b *BaseObject) GetAttribute(name string) (common.Values, bool) {
	b.attrMu.Lock()
	a, ok := b.attrs[name]
	b.attrMu.Unlock()
	if !ok {
		return common.Values{}, false
	}
	return a.get(), true
}

func (b *BaseObject) DescribeAttribute(name string) string {
	b.attrMu.Lock()
	defer b.attrMu.Unlock()
	if a, ok := b.attrs[name]; ok {
		return a.doc
	}
	return ""
}

func (b *BaseObject) AttributeNames() []string {
	b.attrMu.Lock()
	defer b.attrMu.Unlock()
	names := make([]string, 0, len(b.attrs))
	for n := range b.attrs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (b *BaseObject) SavableAttributes() map[string]common.Values {
	b.attrMu.Lock()
	defer b.attrMu.Unlock()
	out := make(map[string]common.Values)
	for n, a := range b.attrs {
		if a.savable && len(a.get()) > 0 {
			out[n] = a.get()
		}
	}
	return out
}

// Attr returns the attribute handle, for sync policy and savability checks.
func (b *BaseObject) Attr(name string) (*Attribute, bool) {
	b.attrMu.Lock()
	defer b.attrMu.Unlock()
	a, ok := b.attrs[name]
	return a, ok
}

// TryLink records the relation. Concrete types override it to grab typed
// references to the incoming object and must call it when they accept.
func (b *BaseObject) TryLink(o Object) bool {
	if o == nil {
		return false
	}
	b.linkMu.Lock()
	defer b.linkMu.Unlock()
	for _, n := range b.linked {
		if n == o.Name() {
			return true
		}
	}
	b.linked = append(b.linked, o.Name())
	return true
}

func (b *BaseObject) TryUnlink(o Object) {
	if o == nil {
		return
	}
	b.linkMu.Lock()
	defer b.linkMu.Unlock()
	for i, n := range b.linked {
		if n == o.Name() {
			b.linked = append(b.linked[:i], b.linked[i+1:]...)
			return
		}
	}
}

func (b *BaseObject) LinkedObjects() []string {
	b.linkMu.Lock()
	defer b.linkMu.Unlock()
	out := make([]string, len(b.linked))
	copy(out, b.linked)
	return out
}

func (b *BaseObject) AddTask(fn func()) {
	b.taskMu.Lock()
	b.tasks = append(b.tasks, fn)
	b.taskMu.Unlock()
}

func (b *BaseObject) RunTasks() {
	b.taskMu.Lock()
	tasks := b.tasks
	b.tasks = nil
	b.taskMu.Unlock()

	for _, fn := range tasks {
		b.running.Add(1)
		fn()
		b.running.Done()
	}
}

func (b *BaseObject) Update() {}
func (b *BaseObject) Render() {}

// Destroy waits for pending-task quiescence. Concrete types with GPU
// resources override it and call the base at the end.
func (b *BaseObject) Destroy() {
	b.running.Wait()
	b.taskMu.Lock()
	b.tasks = nil
	b.taskMu.Unlock()
}
