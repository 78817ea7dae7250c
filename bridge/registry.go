package bridge

import (
	"fmt"
	"sync"
)

// Kind tags a registered callable as synchronous or asynchronous. The tag is
// explicit at registration; the dispatcher never inspects the callable.
type Kind int

const (
	// Sync callables run inline on the UI goroutine and return a result.
	Sync Kind = iota
	// Async callables receive a completion callback and finish later from
	// any goroutine.
	Async
)

// SyncFunc is a synchronous JS API target. The returned value must be
// JSON-serializable; errors become {error} payloads on the page.
type SyncFunc func(args ...any) (any, error)

// AsyncFunc is an asynchronous JS API target. It must eventually invoke
// complete exactly once, from any goroutine. A non-nil err yields an
// {error} payload instead of a result.
type AsyncFunc func(complete func(result any, err error), args ...any)

// Outcome is the result of resolving one invocation: either an immediate
// value or the async callable to be driven by the message handler.
type Outcome struct {
	Value any
	Async AsyncFunc
}

// Invoker resolves an API name and arguments to an outcome. Any type with
// this one method can back a widget's JS API; Registry is the map-based
// default.
type Invoker interface {
	Invoke(name string, args []any) (Outcome, error)
}

// Registration is one named API entry.
type Registration struct {
	Name    string
	Kind    Kind
	syncFn  SyncFunc
	asyncFn AsyncFunc
}

// Registry maps API names to tagged callables. Entries are never removed.
// Registration may happen before or during widget lifetime; lookups and
// registrations are safe from different goroutines.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Registration
}

// NewRegistry creates an empty registry, optionally seeded with
// synchronous functions.
func NewRegistry(fns map[string]SyncFunc) *Registry {
	r := &Registry{entries: make(map[string]Registration)}
	for name, fn := range fns {
		r.Bind(name, fn)
	}
	return r
}

// Bind registers a synchronous callable under name, replacing any previous
// entry with that name.
func (r *Registry) Bind(name string, fn SyncFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = Registration{Name: name, Kind: Sync, syncFn: fn}
}

// BindAsync registers an asynchronous callable under name.
func (r *Registry) BindAsync(name string, fn AsyncFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = Registration{Name: name, Kind: Async, asyncFn: fn}
}

// Invoke implements Invoker.
func (r *Registry) Invoke(name string, args []any) (Outcome, error) {
	r.mu.RLock()
	reg, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		return Outcome{}, fmt.Errorf("undefined JS API: %s", name)
	}
	if reg.Kind == Async {
		return Outcome{Async: reg.asyncFn}, nil
	}
	value, err := reg.syncFn(args...)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Value: value}, nil
}
