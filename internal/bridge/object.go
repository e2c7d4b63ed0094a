// Package bridge implements named bridge objects: host-side units that expose
// callable operations to the document scripting environment and push
// notifications back to it. All values cross the boundary as JSON text via
// the serialization guard; no call path in this package panics or returns an
// error across the boundary.
package bridge

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/hostbridge/hostbridge/internal/boundary"
)

// bridgeVersion is reported by the built-in getBridgeInfo operation.
const bridgeVersion = "1.0.0"

// ErrorNotification is the reserved notification name used as the dedicated
// error side channel. Every object declares it.
const ErrorNotification = "error"

// Handler is a callable operation. Arguments arrive as a decoded JSON object;
// the result must be JSON-representable. A returned error (or a panic) is
// converted into an error envelope by Invoke.
type Handler func(args map[string]any) (any, error)

// Listener receives a JSON-encoded notification payload. Listeners for one
// object observe payloads in the order they were emitted.
type Listener func(payloadJSON string)

// Object is the base bridge object: a channel-local name, a table of callable
// operations, and a set of named outbound notifications with per-name
// subscriber lists.
//
// Objects are safe for use from multiple goroutines, though the intended
// scheduling model is a single event loop; the locks exist so host code can
// mutate state from background work before handing results to Notify.
type Object struct {
	name  string
	guard *boundary.Guard

	mu            sync.Mutex
	operations    map[string]Handler
	notifications map[string]struct{}
	subscribers   map[string][]*subscription
	wildcards     []*wildcardSubscription
	errorCallback func(string)

	// notifyMu serializes emissions so per-object FIFO ordering holds even
	// when Notify is called from more than one goroutine.
	notifyMu sync.Mutex
}

type subscription struct {
	fn       Listener
	canceled bool
}

type wildcardSubscription struct {
	fn       func(name, payloadJSON string)
	canceled bool
}

// NewObject creates a bridge object. The name is fixed for the object's
// lifetime. Crossing failures detected by the serialization guard are routed
// to the object's error side channel.
func NewObject(name string) *Object {
	o := &Object{
		name:          name,
		operations:    make(map[string]Handler),
		notifications: make(map[string]struct{}),
		subscribers:   make(map[string][]*subscription),
	}
	o.guard = boundary.NewGuard(func(err error) {
		o.emitError(err.Error())
	})
	o.notifications[ErrorNotification] = struct{}{}

	// Introspection is available to the document side without invoking any
	// registered behavior.
	o.operations["getBridgeInfo"] = func(map[string]any) (any, error) {
		return map[string]any{
			"name":         o.name,
			"version":      bridgeVersion,
			"capabilities": o.Capabilities(),
		}, nil
	}
	return o
}

// Name returns the channel-local identifier assigned at construction.
func (o *Object) Name() string { return o.name }

// Guard exposes the object's serialization guard for callers that need to
// encode values with the same error side channel (the transport adapter).
func (o *Object) Guard() *boundary.Guard { return o.guard }

// SetErrorCallback installs a host-side tap on the error side channel. The
// callback runs in addition to the "error" notification.
func (o *Object) SetErrorCallback(fn func(string)) {
	o.mu.Lock()
	o.errorCallback = fn
	o.mu.Unlock()
}

// RegisterOperation adds a callable operation. Registering a name that
// already exists fails with ErrDuplicateOperation; operations are never
// silently replaced.
func (o *Object) RegisterOperation(name string, h Handler) error {
	if h == nil {
		return fmt.Errorf("bridge: nil handler for operation %q", name)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.operations[name]; exists {
		return fmt.Errorf("%w: %s.%s", ErrDuplicateOperation, o.name, name)
	}
	o.operations[name] = h
	return nil
}

// DeclareNotification records a named outbound event so it appears in the
// object's capabilities before the first emission.
func (o *Object) DeclareNotification(name string) {
	o.mu.Lock()
	o.notifications[name] = struct{}{}
	o.mu.Unlock()
}

// Capabilities returns a sorted, derived list of what this object supports:
// "op:<name>" for each operation and "notify:<name>" for each notification.
func (o *Object) Capabilities() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	caps := make([]string, 0, len(o.operations)+len(o.notifications))
	for name := range o.operations {
		caps = append(caps, "op:"+name)
	}
	for name := range o.notifications {
		caps = append(caps, "notify:"+name)
	}
	sort.Strings(caps)
	return caps
}

// Invoke decodes argsJSON, dispatches to the named operation, and returns a
// JSON envelope: {"status":"success","value":...} on success, or
// {"status":"error","message":...} for unknown operations, handler errors,
// and handler panics. It never panics and never returns malformed JSON.
func (o *Object) Invoke(name, argsJSON string) string {
	args := o.guard.Decode(argsJSON)

	o.mu.Lock()
	h, ok := o.operations[name]
	o.mu.Unlock()
	if !ok {
		return o.errorResult(fmt.Errorf("%w: %s.%s", ErrUnknownOperation, o.name, name).Error())
	}

	result, err := o.callHandler(h, args)
	if err != nil {
		o.emitError(fmt.Sprintf("operation %s.%s failed: %v", o.name, name, err))
		return o.errorResult(err.Error())
	}
	return o.successResult(result)
}

// callHandler runs h, converting a panic into an error so a misbehaving
// handler cannot unwind across the boundary.
func (o *Object) callHandler(h Handler, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(args)
}

// Subscribe attaches a listener to the named notification. The returned
// cancel function detaches it; canceling twice is a no-op.
func (o *Object) Subscribe(name string, fn Listener) (cancel func()) {
	sub := &subscription{fn: fn}
	o.mu.Lock()
	o.notifications[name] = struct{}{}
	o.subscribers[name] = append(o.subscribers[name], sub)
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if sub.canceled {
			return
		}
		sub.canceled = true
		subs := o.subscribers[name]
		for i, s := range subs {
			if s == sub {
				o.subscribers[name] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
}

// SubscribeAll attaches a listener to every notification this object emits,
// delivered with the notification name. This is how the transport adapter
// relays emissions without knowing notification names in advance.
func (o *Object) SubscribeAll(fn func(name, payloadJSON string)) (cancel func()) {
	sub := &wildcardSubscription{fn: fn}
	o.mu.Lock()
	o.wildcards = append(o.wildcards, sub)
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if sub.canceled {
			return
		}
		sub.canceled = true
		for i, s := range o.wildcards {
			if s == sub {
				o.wildcards = append(o.wildcards[:i:i], o.wildcards[i+1:]...)
				break
			}
		}
	}
}

// Notify encodes payload and delivers it to every current subscriber of the
// (object, name) pair. Delivery is synchronous and FIFO per object: two
// Notify calls on the same object are observed by subscribers in call order.
// Ordering across different objects is not defined.
func (o *Object) Notify(name string, payload any) {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()

	encoded := o.guard.Encode(payload)

	o.mu.Lock()
	o.notifications[name] = struct{}{}
	subs := make([]*subscription, len(o.subscribers[name]))
	copy(subs, o.subscribers[name])
	wild := make([]*wildcardSubscription, len(o.wildcards))
	copy(wild, o.wildcards)
	o.mu.Unlock()

	for _, sub := range subs {
		sub.fn(encoded)
	}
	for _, sub := range wild {
		sub.fn(name, encoded)
	}
}

// emitError pushes a message onto the error side channel: the "error"
// notification plus the host callback, mirroring how crossing failures are
// reported without interrupting the caller.
func (o *Object) emitError(message string) {
	o.mu.Lock()
	cb := o.errorCallback
	subs := make([]*subscription, len(o.subscribers[ErrorNotification]))
	copy(subs, o.subscribers[ErrorNotification])
	wild := make([]*wildcardSubscription, len(o.wildcards))
	copy(wild, o.wildcards)
	o.mu.Unlock()

	// Marshal of map[string]string cannot fail; routing through the guard
	// here could recurse if the payload itself failed to encode.
	encoded, _ := json.Marshal(map[string]string{"message": message})
	for _, sub := range subs {
		sub.fn(string(encoded))
	}
	for _, sub := range wild {
		sub.fn(ErrorNotification, string(encoded))
	}
	if cb != nil {
		cb(message)
	}
}

func (o *Object) successResult(value any) string {
	raw, err := json.Marshal(value)
	if err != nil {
		o.emitError(fmt.Sprintf("operation result not JSON-representable: %v", err))
		return o.errorResult("result not JSON-representable")
	}
	return o.guard.Encode(map[string]any{"status": "success", "value": json.RawMessage(raw)})
}

func (o *Object) errorResult(message string) string {
	return o.guard.Encode(map[string]any{"status": "error", "message": message})
}
