// Package transport realizes the boundary collaborator contract against an
// embedded JavaScript runtime (goja). It owns the document scripting
// environment, publishes registered bridge objects into it, and relays
// invocations and notifications across the boundary.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
)

// DefaultSyncTimeout bounds how long a synchronous loop operation may take
// before the caller gives up.
const DefaultSyncTimeout = 5 * time.Second

// Runtime wraps a goja VM behind a single event loop. goja.Runtime is not
// goroutine-safe, so every VM access goes through RunOnLoop or
// RunOnLoopSync; the loop goroutine is the only place the VM is ever
// touched. The loop also gives the channel its scheduling model: one
// cooperative thread, document-side deliveries in post order.
type Runtime struct {
	loop     *eventloop.EventLoop
	registry *require.Registry

	mu      sync.RWMutex
	timeout time.Duration
	started bool
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRuntime creates and starts a runtime. The provided context bounds its
// lifetime: cancellation closes the runtime. Call Close when done.
func NewRuntime(ctx context.Context) (*Runtime, error) {
	registry := require.NewRegistry()
	loop := eventloop.NewEventLoop(
		eventloop.WithRegistry(registry),
		eventloop.EnableConsole(true),
	)

	// Lifecycle context independent of the parent so Close is always clean.
	childCtx, cancel := context.WithCancel(context.Background())
	rt := &Runtime{
		loop:     loop,
		registry: registry,
		timeout:  DefaultSyncTimeout,
		ctx:      childCtx,
		cancel:   cancel,
	}

	loop.Start()
	rt.mu.Lock()
	rt.started = true
	rt.mu.Unlock()

	// Prove the loop is serving jobs before handing the runtime out.
	if err := rt.RunOnLoopSync(func(*goja.Runtime) error { return nil }); err != nil {
		cancel()
		loop.Stop()
		return nil, fmt.Errorf("event loop failed to start: %w", err)
	}

	if ctx.Done() != nil {
		context.AfterFunc(ctx, func() { _ = rt.Close() })
	}
	return rt, nil
}

// Registry returns the CommonJS require registry, for hosts that want to
// expose native modules to document scripts alongside the channel.
func (rt *Runtime) Registry() *require.Registry {
	return rt.registry
}

// Close stops the event loop after pending jobs drain. Safe to call more
// than once.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	if rt.stopped {
		rt.mu.Unlock()
		return nil
	}
	rt.stopped = true
	rt.mu.Unlock()

	rt.cancel()
	rt.loop.Stop()
	return nil
}

// Done is closed when the runtime has stopped.
func (rt *Runtime) Done() <-chan struct{} {
	return rt.ctx.Done()
}

// IsRunning reports whether the loop is serving jobs.
func (rt *Runtime) IsRunning() bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.started && !rt.stopped
}

// SetSyncTimeout adjusts the RunOnLoopSync deadline. Zero disables it.
func (rt *Runtime) SetSyncTimeout(d time.Duration) {
	rt.mu.Lock()
	rt.timeout = d
	rt.mu.Unlock()
}

// RunOnLoop schedules fn on the loop goroutine and returns immediately.
// Jobs run in post order, which is what gives notifications their FIFO
// delivery guarantee. Returns false if the loop is not running.
func (rt *Runtime) RunOnLoop(fn func(*goja.Runtime)) bool {
	rt.mu.RLock()
	if !rt.started || rt.stopped {
		rt.mu.RUnlock()
		return false
	}
	rt.mu.RUnlock()
	return rt.loop.RunOnLoop(fn)
}

// RunOnLoopSync schedules fn on the loop goroutine and waits for it to
// finish, up to the configured timeout.
func (rt *Runtime) RunOnLoopSync(fn func(*goja.Runtime) error) error {
	rt.mu.RLock()
	if !rt.started || rt.stopped {
		rt.mu.RUnlock()
		return errors.New("event loop not running")
	}
	timeout := rt.timeout
	rt.mu.RUnlock()

	errCh := make(chan error, 1)
	if !rt.loop.RunOnLoop(func(vm *goja.Runtime) { errCh <- fn(vm) }) {
		return errors.New("event loop not running")
	}

	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case err := <-errCh:
			return err
		case <-rt.Done():
			return errors.New("runtime stopped before completion")
		case <-timer.C:
			return fmt.Errorf("loop operation timed out after %v", timeout)
		}
	}

	select {
	case err := <-errCh:
		return err
	case <-rt.Done():
		return errors.New("runtime stopped before completion")
	}
}

// RunScript compiles and executes source in the document environment. The
// name appears in stack traces.
func (rt *Runtime) RunScript(name, source string) error {
	return rt.RunOnLoopSync(func(vm *goja.Runtime) error {
		prg, err := goja.Compile(name, source, true)
		if err != nil {
			return fmt.Errorf("compile %s: %w", name, err)
		}
		if _, err := vm.RunProgram(prg); err != nil {
			return fmt.Errorf("run %s: %w", name, err)
		}
		return nil
	})
}

// GetGlobal exports a global from the document environment, mainly for
// tests and diagnostics.
func (rt *Runtime) GetGlobal(name string) (any, error) {
	var result any
	err := rt.RunOnLoopSync(func(vm *goja.Runtime) error {
		val := vm.Get(name)
		if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
			result = nil
			return nil
		}
		result = val.Export()
		return nil
	})
	return result, err
}
