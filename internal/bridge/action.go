package bridge

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ActionHandler executes one named action. Params arrive as a decoded JSON
// object; the result must be JSON-representable.
type ActionHandler func(params map[string]any) (any, error)

// ActionBridge is the action-dispatch specialization: a mutable mapping from
// action name to handler. Handlers can be registered and deregistered at any
// time after construction; no object recreation is needed to add actions.
//
// Notifications: "actionRequested" ({action, params, callId}) before
// dispatch, "actionCompleted" ({callId, result}) after. Long-running actions
// can defer completion and report later via CompleteAction.
type ActionBridge struct {
	*Object

	mu       sync.Mutex
	handlers map[string]ActionHandler
}

// NewActionBridge creates an action-dispatch bridge.
func NewActionBridge(name string) *ActionBridge {
	a := &ActionBridge{
		Object:   NewObject(name),
		handlers: make(map[string]ActionHandler),
	}
	a.DeclareNotification("actionRequested")
	a.DeclareNotification("actionCompleted")

	_ = a.RegisterOperation("executeAction", func(args map[string]any) (any, error) {
		action, _ := args["action"].(string)
		params, _ := args["params"].(map[string]any)
		if params == nil {
			params = map[string]any{}
		}
		return a.dispatch(action, params)
	})
	_ = a.RegisterOperation("getAvailableActions", func(map[string]any) (any, error) {
		return a.Actions(), nil
	})
	return a
}

// RegisterAction installs (or replaces) the handler for an action name.
// Unlike operations, action handlers are intentionally replaceable: the
// whole point of this bridge is dynamic dispatch tables.
func (a *ActionBridge) RegisterAction(name string, h ActionHandler) {
	a.mu.Lock()
	a.handlers[name] = h
	a.mu.Unlock()
}

// DeregisterAction removes an action handler; removing an absent name is a
// no-op.
func (a *ActionBridge) DeregisterAction(name string) {
	a.mu.Lock()
	delete(a.handlers, name)
	a.mu.Unlock()
}

// Actions returns the sorted list of registered action names.
func (a *ActionBridge) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.handlers))
	for name := range a.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExecuteAction looks up and invokes the named action, with the same
// envelope contract as Object.Invoke: a missing action or failing handler
// yields {"status":"error",...}, never a raised failure. paramsJSON is
// decoded through the serialization guard.
func (a *ActionBridge) ExecuteAction(name, paramsJSON string) string {
	params := a.Guard().Decode(paramsJSON)
	result, err := a.dispatch(name, params)
	if err != nil {
		a.emitError(fmt.Sprintf("action %s failed: %v", name, err))
		return a.errorResult(err.Error())
	}
	return a.successResult(result)
}

// CompleteAction reports the result of an action that finished outside the
// original dispatch, e.g. after a handler offloaded work to a background
// task. The correlation id ties the result back to its originating request.
func (a *ActionBridge) CompleteAction(callID string, result any) {
	a.Notify("actionCompleted", map[string]any{"callId": callID, "result": result})
}

// dispatch runs the handler for one action. The correlation id is taken from
// params["callId"] when the caller supplied one and generated otherwise.
func (a *ActionBridge) dispatch(action string, params map[string]any) (any, error) {
	a.mu.Lock()
	h, ok := a.handlers[action]
	a.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no handler registered for action: %s", action)
	}

	callID, _ := params["callId"].(string)
	if callID == "" {
		callID = uuid.NewString()
	}

	a.Notify("actionRequested", map[string]any{
		"action": action,
		"params": params,
		"callId": callID,
	})

	result, err := a.callAction(h, params)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = map[string]any{}
	}
	a.CompleteAction(callID, result)
	return result, nil
}

func (a *ActionBridge) callAction(h ActionHandler, params map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action handler panic: %v", r)
		}
	}()
	return h(params)
}
