// Package constraint implements named predicates over ambient system state
// (network reachable, account registered, ...) that gate job eligibility.
//
// Constraints are evaluated fresh on every eligibility pass and never
// cached. A change in any constraint is announced to listeners so that
// parked workers re-run the pass instead of busy-polling.
package constraint

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Constraint is a named boolean predicate.
type Constraint interface {
	IsMet() bool
}

// Func adapts a function to Constraint.
type Func func() bool

// IsMet calls f.
func (f Func) IsMet() bool { return f() }

// Registry maps constraint names to predicates. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	constraints map[string]Constraint
	listeners   []func()
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{constraints: make(map[string]Constraint)}
}

// Register binds name to c and announces a change.
func (r *Registry) Register(name string, c Constraint) {
	r.mu.Lock()
	r.constraints[name] = c
	r.mu.Unlock()
	if f, ok := c.(*Flag); ok {
		f.attach(r, name)
	}
	r.Notify(name)
}

// Get returns the constraint bound to name.
func (r *Registry) Get(name string) (Constraint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.constraints[name]
	return c, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.constraints))
	for n := range r.constraints {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// IsMet evaluates a single constraint. Unknown names are never met.
func (r *Registry) IsMet(name string) bool {
	c, ok := r.Get(name)
	return ok && c.IsMet()
}

// AllMet evaluates names in order and returns false with the first unmet
// name as soon as one fails.
func (r *Registry) AllMet(names []string) (bool, string) {
	for _, n := range names {
		if !r.IsMet(n) {
			return false, n
		}
	}
	return true, ""
}

// OnChange registers fn to be called whenever any constraint may have
// changed. fn must not block.
func (r *Registry) OnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Notify announces that the state behind name may have changed. Callers
// owning predicates that are not Flags invoke it from their own change
// events (connectivity callbacks, registration completion, ...).
func (r *Registry) Notify(_ string) {
	r.mu.RLock()
	listeners := make([]func(), len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn()
	}
}

// Flag is a settable constraint that notifies its registry on change.
type Flag struct {
	v atomic.Bool

	mu   sync.Mutex
	regs []binding
}

type binding struct {
	r    *Registry
	name string
}

// NewFlag returns a Flag with the initial value v.
func NewFlag(v bool) *Flag {
	f := &Flag{}
	f.v.Store(v)
	return f
}

// IsMet reports the current value.
func (f *Flag) IsMet() bool { return f.v.Load() }

// Set changes the value, notifying registries only on an actual change.
func (f *Flag) Set(v bool) {
	if f.v.Swap(v) == v {
		return
	}
	f.mu.Lock()
	regs := make([]binding, len(f.regs))
	copy(regs, f.regs)
	f.mu.Unlock()
	for _, b := range regs {
		b.r.Notify(b.name)
	}
}

func (f *Flag) attach(r *Registry, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs = append(f.regs, binding{r: r, name: name})
}
