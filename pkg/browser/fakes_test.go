package browser

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/entrhq/browseragent/pkg/engine"
)

type fakeSession struct {
	endpoint   string
	profileDir string
	port       int
	closed     atomic.Int32
}

func (s *fakeSession) CurrentPage() (engine.Page, error) { return nil, errors.New("no page") }
func (s *fakeSession) Screenshot(path string) error      { return os.WriteFile(path, []byte("png"), 0o600) }
func (s *fakeSession) ReportedEndpoint() string          { return s.endpoint }
func (s *fakeSession) ProfileDir() string                { return s.profileDir }
func (s *fakeSession) DebugPort() int                    { return s.port }

func (s *fakeSession) Close() error {
	s.closed.Add(1)
	return nil
}

type fakeLauncher struct {
	mu       sync.Mutex
	endpoint string
	err      error
	launches []LaunchOptions
	sessions []*fakeSession
}

func (l *fakeLauncher) Launch(ctx context.Context, opts LaunchOptions) (Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches = append(l.launches, opts)
	if l.err != nil {
		return nil, l.err
	}
	s := &fakeSession{endpoint: l.endpoint, profileDir: opts.ProfileDir, port: opts.DebugPort}
	l.sessions = append(l.sessions, s)
	return s, nil
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.launches)
}

type fakeProvisioner struct {
	mu       sync.Mutex
	err      error
	provided int
	released []*Display
	nextPort int
}

func (p *fakeProvisioner) Provision(ctx context.Context) (*Display, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.provided++
	port := p.nextPort
	if port == 0 {
		port = 5901
	}
	n := port - vncBasePort
	return &Display{Number: n, Port: port, ID: ":" + strconv.Itoa(n)}, nil
}

func (p *fakeProvisioner) Release(d *Display) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = append(p.released, d)
}

type fakeTask struct {
	killed atomic.Int32
	done   atomic.Bool
}

func (t *fakeTask) Kill() {
	t.killed.Add(1)
	t.done.Store(true)
}

func (t *fakeTask) Done() bool { return t.done.Load() }

type fakeProcess struct {
	name    string
	args    []string
	stopped atomic.Int32
}

func (p *fakeProcess) Stop() error {
	p.stopped.Add(1)
	return nil
}

type fakeRunner struct {
	mu      sync.Mutex
	started []*fakeProcess
	failOn  string
}

func (r *fakeRunner) Start(name string, args ...string) (Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == r.failOn {
		return nil, errors.New(name + ": executable file not found")
	}
	p := &fakeProcess{name: name, args: args}
	r.started = append(r.started, p)
	return p, nil
}
