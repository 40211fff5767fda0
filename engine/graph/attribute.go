package graph

import (
	"time"

	"github.com/splashmapping/splash/common"
)

// SyncPolicy controls whether a distant attribute set returns immediately
// or blocks the sender until the far side acknowledged it.
type SyncPolicy int

const (
	// SyncAuto pushes the set and returns without waiting.
	SyncAuto SyncPolicy = iota
	// SyncForce blocks the sender until the set is acknowledged.
	SyncForce
)

// Attribute is a named, typed slot attached to a GraphObject. Setting
// invokes the setter and, on success, records the values and a last-changed
// timestamp; reading returns the getter result or the last set values.
type Attribute struct {
	name        string
	kinds       string // per-argument kind codes; empty = unchecked arity and kinds
	setFunc     func(common.Values) bool
	getFunc     func() common.Values
	doc         string
	sync        SyncPolicy
	savable     bool
	distantOnly bool

	stored      common.Values
	lastChanged time.Time
}

// Doc sets the documentation string and returns the attribute for chaining.
func (a *Attribute) Doc(doc string) *Attribute {
	a.doc = doc
	return a
}

// ForceSync marks the attribute so distant sets block until acknowledged.
func (a *Attribute) ForceSync() *Attribute {
	a.sync = SyncForce
	return a
}

// NotSavable excludes the attribute from configuration files.
func (a *Attribute) NotSavable() *Attribute {
	a.savable = false
	return a
}

// DistantOnly marks the attribute as pushed from World to Scenes only.
// The flag is only recorded: set and the root's dispatch do not read it,
// so a local set still invokes the setter.
func (a *Attribute) DistantOnly() *Attribute {
	a.distantOnly = true
	return a
}

// Savable reports whether the attribute is emitted on configuration save.
func (a *Attribute) Savable() bool { return a.savable }

// Sync returns the attribute's sync policy.
func (a *Attribute) Sync() SyncPolicy { return a.sync }

// LastChanged returns the time of the last successful set.
func (a *Attribute) LastChanged() time.Time { return a.lastChanged }

// set validates args against the signature, invokes the setter and records
// the values on success.
func (a *Attribute) set(args common.Values) bool {
	if !checkArgs(a.kinds, args) {
		return false
	}
	if a.setFunc != nil && !a.setFunc(args) {
		return false
	}
	a.stored = args.Clone()
	a.lastChanged = time.Now()
	return true
}

// get returns the getter result when one is registered, otherwise the last
// stored values.
func (a *Attribute) get() common.Values {
	if a.getFunc != nil {
		return a.getFunc()
	}
	return a.stored
}

// checkArgs validates arity and kinds. Kind codes: 'n' any numeric,
// 'r' real, 'i' integer, 'b' boolean (all accept numeric values),
// 's' string only. An empty signature skips validation.
func checkArgs(kinds string, args common.Values) bool {
	if kinds == "" {
		return true
	}
	if len(args) != len(kinds) {
		return false
	}
	for i, k := range kinds {
		switch k {
		case 's':
			if args[i].Type() != common.ValueString {
				return false
			}
		case 'n', 'r', 'i', 'b':
			if !args[i].IsNumber() {
				return false
			}
		default:
			return false
		}
	}
	return true
}
