package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/browseragent/pkg/agent/actor"
	"github.com/entrhq/browseragent/pkg/browser"
	"github.com/entrhq/browseragent/pkg/engine"
	"github.com/google/uuid"
)

// DefaultKillGrace bounds how long Kill waits for the worker to exit.
const DefaultKillGrace = 5 * time.Second

var (
	// ErrCancelledByIteration stops a run whose actor moved on to a newer
	// reasoning iteration.
	ErrCancelledByIteration = errors.New("task cancelled by a newer iteration")

	// ErrTaskKilled is reported by a task that was killed before it ran.
	ErrTaskKilled = errors.New("browser agent task was killed")

	errTaskRunning = errors.New("browser agent task is still running")
)

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskIdle      TaskStatus = "idle"
	TaskStarting  TaskStatus = "starting"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskTimedOut  TaskStatus = "timed_out"
	TaskCancelled TaskStatus = "cancelled"
	TaskFailed    TaskStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskTimedOut, TaskCancelled, TaskFailed:
		return true
	}
	return false
}

var _ browser.TaskHandle = (*Task)(nil)

// Task is one cancellable browser run executed by a single worker goroutine.
//
//	Idle -> Starting -> Running -> Completed | Failed
//	any non-terminal -> Cancelled (Kill) | TimedOut (overall timeout)
type Task struct {
	id    string
	grace time.Duration

	mu      sync.Mutex
	status  TaskStatus
	started bool
	runner  engine.Engine
	history *engine.History
	err     error
	cancel  context.CancelFunc

	done     chan struct{}
	doneOnce sync.Once
}

func newTask(grace time.Duration) *Task {
	return &Task{
		id:     uuid.NewString(),
		grace:  grace,
		status: TaskIdle,
		done:   make(chan struct{}),
	}
}

// ID returns the task id.
func (t *Task) ID() string { return t.id }

// Status returns the current lifecycle state.
func (t *Task) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Engine returns the engine once the task is running.
func (t *Task) Engine() engine.Engine {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runner
}

// Wait returns a channel closed when the worker has exited.
func (t *Task) Wait() <-chan struct{} { return t.done }

// Done reports whether the worker has exited.
func (t *Task) Done() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Result returns the history and error of a finished task.
func (t *Task) Result() (*engine.History, error) {
	if !t.Done() {
		return nil, errTaskRunning
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil && t.status == TaskCancelled {
		return t.history, ErrTaskKilled
	}
	return t.history, t.err
}

// Kill cancels the task and waits a bounded time for the worker to exit.
func (t *Task) Kill() {
	t.stop(TaskCancelled)
}

// expire marks the task timed out and stops it.
func (t *Task) expire() {
	t.stop(TaskTimedOut)
}

func (t *Task) stop(final TaskStatus) {
	t.mu.Lock()
	if !t.status.Terminal() {
		t.status = final
	}
	cancel, started := t.cancel, t.started
	t.mu.Unlock()

	if !started {
		t.closeDone()
		return
	}
	if cancel != nil {
		cancel()
	}

	timer := time.NewTimer(t.grace)
	defer timer.Stop()
	select {
	case <-t.done:
	case <-timer.C:
		supervisorLog.Warnf("Task %s did not stop within %s", t.id, t.grace)
	}
}

// start launches the worker. It is a no-op unless the task is idle.
func (t *Task) start(ctx context.Context, run func(ctx context.Context) (*engine.History, error)) {
	t.mu.Lock()
	if t.status != TaskIdle {
		t.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	t.status = TaskStarting
	t.started = true
	t.cancel = cancel
	t.mu.Unlock()

	go func() {
		defer t.closeDone()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				t.finish(nil, fmt.Errorf("browser agent task panicked: %v", r))
			}
		}()
		h, err := run(ctx)
		t.finish(h, err)
	}()
}

// setRunning binds the engine. It fails once the task left Starting.
func (t *Task) setRunning(e engine.Engine) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != TaskStarting {
		return false
	}
	t.status = TaskRunning
	t.runner = e
	return true
}

func (t *Task) finish(h *engine.History, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.history = h
	t.err = err
	if t.status.Terminal() {
		return
	}
	switch {
	case err == nil:
		t.status = TaskCompleted
	case errors.Is(err, ErrCancelledByIteration), errors.Is(err, actor.ErrKilled), errors.Is(err, context.Canceled):
		t.status = TaskCancelled
	default:
		t.status = TaskFailed
	}
}

func (t *Task) closeDone() {
	t.doneOnce.Do(func() { close(t.done) })
}
