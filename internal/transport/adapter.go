package transport

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"github.com/hostbridge/hostbridge/internal/bridge"
)

// Adapter publishes a bridge registry into the document scripting
// environment and relays traffic in both directions.
//
// Document-side surface, installed as the global `channel`:
//
//	channel.invoke(objectName, operationName, argsJSON) -> resultJSON string
//	channel.objects.<name>.<operation>(args)            -> result envelope
//	channel.objects.<name>.invoke(operation, args)      -> result envelope
//	channel.objects.<name>.connect(notification, fn)    -> disconnect func
//	channel.objects.<name>.capabilities()               -> string list
//
// Notification callbacks receive JSON-encoded payload strings in FIFO order
// per object. A call addressed to an unknown object or operation yields an
// error envelope, never a thrown error.
type Adapter struct {
	rt       *Runtime
	registry *bridge.Registry
	logger   *slog.Logger

	mu        sync.Mutex
	cancels   map[string]func()
	listeners map[string]map[string][]listenerEntry
	nextID    int
}

type listenerEntry struct {
	id int
	fn goja.Callable
}

// NewAdapter installs the channel surface into the runtime and starts
// mirroring the registry: objects already registered are published
// immediately, later registry mutations republish automatically. A nil
// logger uses slog's default.
func NewAdapter(rt *Runtime, registry *bridge.Registry, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Adapter{
		rt:        rt,
		registry:  registry,
		logger:    logger,
		cancels:   make(map[string]func()),
		listeners: make(map[string]map[string][]listenerEntry),
	}

	err := rt.RunOnLoopSync(func(vm *goja.Runtime) error {
		channelObj := vm.NewObject()
		if err := channelObj.Set("objects", vm.NewObject()); err != nil {
			return err
		}
		err := channelObj.Set("invoke", func(call goja.FunctionCall) goja.Value {
			objectName := call.Argument(0).String()
			operation := call.Argument(1).String()
			argsJSON := call.Argument(2).String()
			return vm.ToValue(a.registry.Invoke(objectName, operation, argsJSON))
		})
		if err != nil {
			return err
		}
		return vm.Set("channel", channelObj)
	})
	if err != nil {
		return nil, fmt.Errorf("install channel: %w", err)
	}

	registry.Watch(a)
	return a, nil
}

// ObjectRegistered implements bridge.Watcher: publish (or republish) one
// object into the document environment.
func (a *Adapter) ObjectRegistered(name string, obj *bridge.Object) {
	a.mu.Lock()
	if cancel := a.cancels[name]; cancel != nil {
		// Replacement: the old object stops being relayed.
		cancel()
	}
	a.listeners[name] = make(map[string][]listenerEntry)
	a.mu.Unlock()

	cancel := obj.SubscribeAll(func(notification, payloadJSON string) {
		a.relay(name, notification, payloadJSON)
	})
	a.mu.Lock()
	a.cancels[name] = cancel
	a.mu.Unlock()

	err := a.rt.RunOnLoopSync(func(vm *goja.Runtime) error {
		return a.publish(vm, name, obj)
	})
	if err != nil {
		a.logger.Error("failed to publish bridge object", "object", name, "error", err)
	}
}

// ObjectUnregistered implements bridge.Watcher: withdraw the object from
// publication. In-flight calls already dispatched are unaffected.
func (a *Adapter) ObjectUnregistered(name string) {
	a.mu.Lock()
	if cancel := a.cancels[name]; cancel != nil {
		cancel()
	}
	delete(a.cancels, name)
	delete(a.listeners, name)
	a.mu.Unlock()

	err := a.rt.RunOnLoopSync(func(vm *goja.Runtime) error {
		objects, err := channelObjects(vm)
		if err != nil {
			return err
		}
		return objects.Delete(name)
	})
	if err != nil {
		a.logger.Error("failed to withdraw bridge object", "object", name, "error", err)
	}
}

// Close stops relaying notifications. The runtime itself is owned by the
// caller.
func (a *Adapter) Close() {
	a.mu.Lock()
	cancels := a.cancels
	a.cancels = make(map[string]func())
	a.listeners = make(map[string]map[string][]listenerEntry)
	a.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// LoadDocumentScript executes document-side script source against the
// published channel.
func (a *Adapter) LoadDocumentScript(name, source string) error {
	return a.rt.RunScript(name, source)
}

// publish builds the JS-facing object: one method per operation, plus the
// generic invoke, connect, and capabilities. Runs on the loop.
func (a *Adapter) publish(vm *goja.Runtime, name string, obj *bridge.Object) error {
	objects, err := channelObjects(vm)
	if err != nil {
		return err
	}

	jsObj := vm.NewObject()
	for _, capability := range obj.Capabilities() {
		opName, ok := strings.CutPrefix(capability, "op:")
		if !ok {
			continue
		}
		err := jsObj.Set(opName, func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(a.invokeFromScript(name, obj, opName, call.Argument(0)))
		})
		if err != nil {
			return err
		}
	}

	err = jsObj.Set("invoke", func(call goja.FunctionCall) goja.Value {
		opName := call.Argument(0).String()
		return vm.ToValue(a.invokeFromScript(name, obj, opName, call.Argument(1)))
	})
	if err != nil {
		return err
	}

	err = jsObj.Set("connect", func(call goja.FunctionCall) goja.Value {
		notification := call.Argument(0).String()
		fn, ok := goja.AssertFunction(call.Argument(1))
		if !ok {
			panic(vm.NewTypeError("connect requires a callback function"))
		}
		id := a.addListener(name, notification, fn)
		return vm.ToValue(func(goja.FunctionCall) goja.Value {
			a.removeListener(name, notification, id)
			return goja.Undefined()
		})
	})
	if err != nil {
		return err
	}

	err = jsObj.Set("capabilities", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(obj.Capabilities())
	})
	if err != nil {
		return err
	}

	return objects.Set(name, jsObj)
}

// invokeFromScript relays one document-side call into the bridge object.
// The args value is exported, stamped with a correlation id when the caller
// did not supply one, and re-encoded through the object's guard so every
// crossing failure lands on the object's error side channel.
func (a *Adapter) invokeFromScript(objectName string, obj *bridge.Object, operation string, argsValue goja.Value) map[string]any {
	args := map[string]any{}
	if argsValue != nil && !goja.IsUndefined(argsValue) && !goja.IsNull(argsValue) {
		if exported, ok := argsValue.Export().(map[string]any); ok {
			args = exported
		}
	}
	callID, _ := args["callId"].(string)
	if callID == "" {
		callID = uuid.NewString()
		args["callId"] = callID
	}

	a.logger.Debug("relaying invocation",
		"object", objectName, "operation", operation, "callId", callID)

	envelope := obj.Invoke(operation, obj.Guard().Encode(args))
	return obj.Guard().Decode(envelope)
}

// relay delivers one notification to document-side listeners. Posting to the
// loop preserves per-object FIFO order because SubscribeAll delivery is
// serialized by the object and loop jobs run in post order.
func (a *Adapter) relay(objectName, notification, payloadJSON string) {
	ok := a.rt.RunOnLoop(func(vm *goja.Runtime) {
		a.mu.Lock()
		byName := a.listeners[objectName]
		entries := make([]listenerEntry, len(byName[notification]))
		copy(entries, byName[notification])
		a.mu.Unlock()

		for _, entry := range entries {
			if _, err := entry.fn(goja.Undefined(), vm.ToValue(payloadJSON)); err != nil {
				a.logger.Warn("notification listener failed",
					"object", objectName, "notification", notification, "error", err)
			}
		}
	})
	if !ok {
		a.logger.Debug("dropping notification, runtime stopped",
			"object", objectName, "notification", notification)
	}
}

func (a *Adapter) addListener(objectName, notification string, fn goja.Callable) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	byName := a.listeners[objectName]
	if byName == nil {
		byName = make(map[string][]listenerEntry)
		a.listeners[objectName] = byName
	}
	byName[notification] = append(byName[notification], listenerEntry{id: a.nextID, fn: fn})
	return a.nextID
}

func (a *Adapter) removeListener(objectName, notification string, id int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	byName := a.listeners[objectName]
	entries := byName[notification]
	for i, entry := range entries {
		if entry.id == id {
			byName[notification] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

func channelObjects(vm *goja.Runtime) (*goja.Object, error) {
	channelVal := vm.Get("channel")
	if channelVal == nil || goja.IsUndefined(channelVal) {
		return nil, fmt.Errorf("channel global not installed")
	}
	objectsVal := channelVal.ToObject(vm).Get("objects")
	if objectsVal == nil || goja.IsUndefined(objectsVal) {
		return nil, fmt.Errorf("channel.objects missing")
	}
	return objectsVal.ToObject(vm), nil
}
