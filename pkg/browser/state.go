package browser

import (
	"sync"

	"github.com/entrhq/browseragent/pkg/engine"
)

// TaskHandle is the in-flight task bound to a State.
type TaskHandle interface {
	// Kill cancels the task and waits a bounded time for its worker to exit.
	Kill()
	// Done reports whether the task worker has exited.
	Done() bool
}

// State is the browser state of one actor. It is owned by that actor and
// must be released through Manager.Release when the actor ends.
type State struct {
	actorID         string
	isContainerized bool

	// sessionMu serializes session start and teardown.
	sessionMu sync.Mutex

	mu            sync.Mutex
	display       *Display
	debugEndpoint string
	session       Session
	runner        engine.Engine
	task          TaskHandle
	generation    uint64
}

// NewState creates a state for an actor.
func NewState(actorID string, containerized bool) *State {
	return &State{actorID: actorID, isContainerized: containerized}
}

// ActorID returns the owning actor id.
func (s *State) ActorID() string { return s.actorID }

// IsContainerized reports the environment detected at creation.
func (s *State) IsContainerized() bool { return s.isContainerized }

// Environment is "docker" or "local".
func (s *State) Environment() string {
	if s.isContainerized {
		return "docker"
	}
	return "local"
}

// DisplayPort returns the VNC port, 0 without a virtual display.
func (s *State) DisplayPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.display == nil {
		return 0
	}
	return s.display.Port
}

// ViewingURL returns the VNC URL, empty without a virtual display.
func (s *State) ViewingURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.display == nil {
		return ""
	}
	return s.display.ViewingURL()
}

// DebugEndpoint returns the remote-debugging websocket endpoint.
func (s *State) DebugEndpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debugEndpoint
}

// Session returns the live session or nil.
func (s *State) Session() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Runner returns the engine of the current task or nil.
func (s *State) Runner() engine.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runner
}

// SetRunner binds the engine of the current task.
func (s *State) SetRunner(e engine.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runner = e
}

// Task returns the current task or nil.
func (s *State) Task() TaskHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task
}

// Generation returns the iteration captured by the current task.
func (s *State) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// BindTask replaces the current task and records its generation. The
// previous task is returned so the caller can kill it outside the lock.
func (s *State) BindTask(t TaskHandle, generation uint64) TaskHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.task
	s.task = t
	s.generation = generation
	s.runner = nil
	return prev
}

func (s *State) setDisplay(d *Display) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.display = d
}

func (s *State) currentDisplay() *Display {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.display
}

func (s *State) setSession(sess Session, endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = sess
	s.debugEndpoint = endpoint
}

// detach clears session, runner, task and generation and returns what was
// cleared.
func (s *State) detach() (Session, TaskHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, task := s.session, s.task
	s.session = nil
	s.debugEndpoint = ""
	s.runner = nil
	s.task = nil
	s.generation = 0
	return sess, task
}

func (s *State) takeTask() TaskHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.task
	s.task = nil
	return t
}

func (s *State) takeDisplay() *Display {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.display
	s.display = nil
	return d
}
