// Package actor holds the orchestrator-side state of an agent conversation
// that the browser supervisor coordinates with: the iteration counter used
// as a cancellation token, the operator pause gate, the kill switch and a
// small keyed data store.
package actor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/entrhq/browseragent/pkg/logging"
)

// ErrKilled is returned by HandleIntervention once the operator killed the actor.
var ErrKilled = errors.New("actor was killed by the operator")

var actorLog = logging.MustLogger("actor")

// Context is one orchestrator conversation.
type Context struct {
	id        string
	iteration atomic.Uint64

	mu       sync.Mutex
	paused   bool
	resumeCh chan struct{}
	killed   bool
	killCh   chan struct{}
	data     map[string]any
	closers  []func()
	closed   bool
}

// New creates an actor context with the given id.
func New(id string) *Context {
	return &Context{
		id:     id,
		killCh: make(chan struct{}),
		data:   make(map[string]any),
	}
}

// ID returns the actor id.
func (c *Context) ID() string {
	return c.id
}

// Iteration returns the current reasoning iteration number.
func (c *Context) Iteration() uint64 {
	return c.iteration.Load()
}

// NextIteration advances the iteration number. Work started under an older
// iteration observes the change and stops at its next step boundary.
func (c *Context) NextIteration() uint64 {
	return c.iteration.Add(1)
}

// Pause closes the gate. It returns false if the actor was already paused.
func (c *Context) Pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.paused {
		return false
	}
	c.paused = true
	c.resumeCh = make(chan struct{})
	actorLog.Infof("actor %s paused", c.id)
	return true
}

// Resume opens the gate and releases every waiter.
func (c *Context) Resume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.paused {
		return false
	}
	c.paused = false
	close(c.resumeCh)
	c.resumeCh = nil
	actorLog.Infof("actor %s resumed", c.id)
	return true
}

// IsPaused reports whether the gate is closed.
func (c *Context) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// WaitIfPaused blocks while the actor is paused. It returns ErrKilled if the
// actor is killed while waiting and ctx.Err() if ctx ends first.
func (c *Context) WaitIfPaused(ctx context.Context) error {
	c.mu.Lock()
	resumeCh := c.resumeCh
	c.mu.Unlock()

	if resumeCh == nil {
		return nil
	}

	select {
	case <-resumeCh:
		return nil
	case <-c.killCh:
		return ErrKilled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Kill marks the actor as killed and wakes anything blocked on the pause gate.
func (c *Context) Kill() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.killed {
		return
	}
	c.killed = true
	close(c.killCh)
	actorLog.Warnf("actor %s killed", c.id)
}

// IsKilled reports whether Kill was called.
func (c *Context) IsKilled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.killed
}

// HandleIntervention waits out a pause and reports whether the operator
// killed the actor in the meantime.
func (c *Context) HandleIntervention(ctx context.Context) error {
	if err := c.WaitIfPaused(ctx); err != nil {
		return err
	}
	if c.IsKilled() {
		return ErrKilled
	}
	return nil
}

// GetData returns the value stored under key.
func (c *Context) GetData(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

// SetData stores value under key. A nil value deletes the key.
func (c *Context) SetData(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if value == nil {
		delete(c.data, key)
		return
	}
	c.data[key] = value
}

// OnClose registers fn to run when the actor is closed. Functions run in
// reverse registration order.
func (c *Context) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closers = append(c.closers, fn)
}

// Close runs the registered cleanup functions once.
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	closers := c.closers
	c.closers = nil
	c.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}
