package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/entrhq/browseragent/pkg/agent/actor"
	"github.com/entrhq/browseragent/pkg/browser"
	"github.com/entrhq/browseragent/pkg/config"
	"github.com/entrhq/browseragent/pkg/engine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	shot   func(path string) error
	closed atomic.Int32
}

func (s *fakeSession) CurrentPage() (engine.Page, error) { return nil, errors.New("no page") }
func (s *fakeSession) ReportedEndpoint() string          { return "ws://127.0.0.1:9222/devtools/browser/fake" }
func (s *fakeSession) ProfileDir() string                { return "" }
func (s *fakeSession) DebugPort() int                    { return 9222 }

func (s *fakeSession) Screenshot(path string) error {
	if s.shot != nil {
		return s.shot(path)
	}
	return os.WriteFile(path, []byte("png"), 0o600)
}

func (s *fakeSession) Close() error {
	s.closed.Add(1)
	return nil
}

type fakeLauncher struct {
	mu       sync.Mutex
	err      error
	shot     func(path string) error
	sessions []*fakeSession
}

func (l *fakeLauncher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	s := &fakeSession{shot: l.shot}
	l.sessions = append(l.sessions, s)
	return s, nil
}

func (l *fakeLauncher) launched() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

// fakeEngine plays a scripted list of steps. Steps past the script record a
// non-final result on https://example.com/<n>.
type fakeEngine struct {
	history   *engine.History
	script    []engine.StepRecord
	stepDelay time.Duration
	gate      chan struct{}
	runErr    error
	stopAfter int // ends the run without error after this many steps, like a spent failure budget
	steps     atomic.Int32
}

func newFakeEngine(script ...engine.StepRecord) *fakeEngine {
	return &fakeEngine{history: engine.NewHistory(), script: script}
}

func (e *fakeEngine) History() *engine.History { return e.history }

func (e *fakeEngine) Run(ctx context.Context, maxSteps int, hooks engine.Hooks) (*engine.History, error) {
	for i := 1; i <= maxSteps; i++ {
		if err := callHook(ctx, hooks.OnStepStart, i); err != nil {
			return e.history, err
		}
		if err := e.wait(ctx); err != nil {
			return e.history, err
		}

		rec := engine.StepRecord{
			URL:     fmt.Sprintf("https://example.com/%d", i),
			Results: []engine.ActionResult{{ExtractedContent: fmt.Sprintf("step %d", i)}},
		}
		if i <= len(e.script) {
			rec = e.script[i-1]
		}
		rec.Number = i
		e.history.Add(rec)
		e.steps.Add(1)

		if err := callHook(ctx, hooks.OnStepEnd, i); err != nil {
			return e.history, err
		}
		if e.history.IsDone() || i == e.stopAfter {
			return e.history, nil
		}
	}
	return e.history, e.runErr
}

func (e *fakeEngine) wait(ctx context.Context) error {
	if e.gate != nil {
		select {
		case <-e.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if e.stepDelay > 0 {
		timer := time.NewTimer(e.stepDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func callHook(ctx context.Context, hook engine.StepHook, step int) error {
	if hook == nil {
		return nil
	}
	return hook(ctx, step)
}

type harness struct {
	sup      *Supervisor
	manager  *browser.Manager
	launcher *fakeLauncher
	actor    *actor.Context
	state    *browser.State
	metrics  *Metrics
	registry *prometheus.Registry

	mu      sync.Mutex
	options []engine.Options
	tasks   []string
}

type harnessConfig struct {
	settings   func(*config.BrowserSettings)
	launcher   *fakeLauncher
	factoryErr error
	opts       []Option
}

// newHarness builds a supervisor whose factory hands out engines in order,
// reusing the last one.
func newHarness(t *testing.T, cfg harnessConfig, engines ...engine.Engine) *harness {
	t.Helper()

	settings := config.DefaultBrowserSettings()
	settings.Timeout = 5 * time.Second
	settings.ProgressTimeout = 500 * time.Millisecond
	settings.PollInterval = 5 * time.Millisecond
	settings.ProfilesDir = t.TempDir()
	settings.DownloadsDir = t.TempDir()
	settings.ScreenshotsDir = t.TempDir()
	settings.ExecutablePath = "/usr/bin/chromium"
	if cfg.settings != nil {
		cfg.settings(&settings)
	}

	launcher := cfg.launcher
	if launcher == nil {
		launcher = &fakeLauncher{}
	}
	manager := browser.NewManager(launcher, settings,
		browser.WithProbe(browser.Probe{}),
		browser.WithStrategies(browser.SessionReported{}),
	)

	h := &harness{
		manager:  manager,
		launcher: launcher,
		actor:    actor.New("ctx-1"),
		registry: prometheus.NewRegistry(),
	}
	h.metrics = MustNewMetrics(h.registry)
	h.state = manager.NewState(h.actor.ID())

	factory := func(task string, b engine.Browser, opts engine.Options) (engine.Engine, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.tasks = append(h.tasks, task)
		h.options = append(h.options, opts)
		if cfg.factoryErr != nil {
			return nil, cfg.factoryErr
		}
		n := len(h.options) - 1
		if n >= len(engines) {
			n = len(engines) - 1
		}
		return engines[n], nil
	}

	opts := append([]Option{
		WithEngineFactory(factory),
		WithMetrics(h.metrics),
		WithKillGrace(2 * time.Second),
	}, cfg.opts...)
	h.sup = New(manager, nil, settings, opts...)

	t.Cleanup(func() { manager.Release(h.state) })
	return h
}

func (h *harness) run(ctx context.Context, text string, reporter ProgressReporter) (*Task, Outcome) {
	task := h.sup.StartTask(ctx, h.actor, h.state, text)
	return task, h.sup.Await(ctx, h.actor, h.state, task, reporter)
}

func (h *harness) lastOptions(t *testing.T) engine.Options {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(t, h.options)
	return h.options[len(h.options)-1]
}

// recorder collects progress updates.
type recorder struct {
	mu      sync.Mutex
	updates []Progress
}

func (r *recorder) Update(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, p)
}

func (r *recorder) all() []Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Progress(nil), r.updates...)
}

func doneStep(url, payload string) engine.StepRecord {
	return engine.StepRecord{
		URL:     url,
		Action:  "complete_task",
		Results: []engine.ActionResult{{IsDone: true, Success: true, ExtractedContent: payload}},
	}
}

func navStep(url string) engine.StepRecord {
	return engine.StepRecord{
		URL:     url,
		Action:  "navigate",
		Results: []engine.ActionResult{{ExtractedContent: "🔗 Navigated to " + url}},
	}
}
