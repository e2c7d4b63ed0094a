package bridge

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hostbridge/hostbridge/internal/boundary"
)

// Watcher observes registry mutations so document-side publication can stay
// in sync with the set of registered objects. The transport adapter is the
// primary implementation.
type Watcher interface {
	// ObjectRegistered fires on insert and on replace; on replace the new
	// object is the one that receives all future calls.
	ObjectRegistered(name string, obj *Object)
	// ObjectUnregistered fires when a name is removed. In-flight calls
	// already dispatched to the object are not affected.
	ObjectUnregistered(name string)
}

// Registry maps channel-local names to bridge objects. A name maps to at
// most one object; re-registering replaces the previous object.
type Registry struct {
	guard *boundary.Guard

	mu       sync.Mutex
	entries  map[string]*Object
	watchers []Watcher
}

// NewRegistry creates an empty registry. The guard is used only to build
// envelopes for calls addressed to unknown objects.
func NewRegistry() *Registry {
	return &Registry{
		guard:   boundary.NewGuard(nil),
		entries: make(map[string]*Object),
	}
}

// Register inserts obj under name, replacing any previous object. Replacement
// is an accepted operation, not an error; the replaced object no longer
// receives calls routed through this registry.
func (r *Registry) Register(name string, obj *Object) {
	r.mu.Lock()
	r.entries[name] = obj
	watchers := append([]Watcher(nil), r.watchers...)
	r.mu.Unlock()

	for _, w := range watchers {
		w.ObjectRegistered(name, obj)
	}
}

// Get looks up an object by name. Absence is a normal outcome, reported via
// the boolean rather than an error.
func (r *Registry) Get(name string) (*Object, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.entries[name]
	return obj, ok
}

// Unregister removes the named object from future publication. Unregistering
// an absent name is a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	_, existed := r.entries[name]
	delete(r.entries, name)
	watchers := append([]Watcher(nil), r.watchers...)
	r.mu.Unlock()

	if !existed {
		return
	}
	for _, w := range watchers {
		w.ObjectUnregistered(name)
	}
}

// Names returns a sorted snapshot of the registered names.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Watch attaches a watcher and immediately replays the current entries to
// it, so a late-attaching transport publishes everything already registered.
func (r *Registry) Watch(w Watcher) {
	r.mu.Lock()
	r.watchers = append(r.watchers, w)
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	entries := make(map[string]*Object, len(r.entries))
	for name, obj := range r.entries {
		entries[name] = obj
	}
	r.mu.Unlock()

	for _, name := range names {
		w.ObjectRegistered(name, entries[name])
	}
}

// Invoke is the document-side invocation protocol entry point:
// invoke(objectName, operationName, argsJSON) -> result envelope. A call
// addressed to an unknown object returns an error envelope rather than an
// error, matching the boundary contract.
func (r *Registry) Invoke(objectName, operationName, argsJSON string) string {
	obj, ok := r.Get(objectName)
	if !ok {
		return r.guard.Encode(map[string]any{
			"status":  "error",
			"message": fmt.Errorf("%w: %s", ErrUnknownObject, objectName).Error(),
		})
	}
	return obj.Invoke(operationName, argsJSON)
}
