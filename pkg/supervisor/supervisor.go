// Package supervisor runs browser tasks on behalf of an orchestrating actor.
//
// StartTask launches the run in a worker goroutine bound to the actor's
// current iteration; Await polls it, publishes progress and turns whatever
// happened into a single masked text Outcome. Only the overall timeout kills
// a task: slow progress updates are tolerated and eventually skipped.
package supervisor

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/entrhq/browseragent/pkg/agent/tools"
	"github.com/entrhq/browseragent/pkg/browser"
	"github.com/entrhq/browseragent/pkg/config"
	"github.com/entrhq/browseragent/pkg/engine"
	"github.com/entrhq/browseragent/pkg/llm"
	"github.com/entrhq/browseragent/pkg/logging"
	"github.com/entrhq/browseragent/pkg/secrets"
	"github.com/entrhq/browseragent/pkg/tracing"
	"github.com/entrhq/browseragent/pkg/types"
	"github.com/google/uuid"
)

const (
	defaultMaxSteps        = 50
	maxProgressFailures    = 3
	defaultTimeout         = 300 * time.Second
	defaultProgressTimeout = 10 * time.Second
	defaultPollInterval    = time.Second
)

var errProgressTimeout = errors.New("progress update timed out")

//go:embed prompts/browser_agent.md
var defaultSystemPrompt string

var supervisorLog = logging.MustLogger("supervisor")

// Actor is the orchestrator side of a task: its iteration number is the
// cancellation token and its pause gate holds the run between steps.
type Actor interface {
	ID() string
	Iteration() uint64
	WaitIfPaused(ctx context.Context) error
	HandleIntervention(ctx context.Context) error
}

// SessionManager starts and tears down the browser session of a State.
type SessionManager interface {
	EnsureSession(ctx context.Context, state *browser.State) error
	ResetSession(state *browser.State)
}

// Supervisor starts and awaits browser tasks.
type Supervisor struct {
	sessions SessionManager
	provider llm.Provider
	settings config.BrowserSettings
	factory  engine.Factory
	secrets  *secrets.Manager
	sink     tracing.Sink
	metrics  *Metrics
	grace    time.Duration
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithEngineFactory replaces the engine factory.
func WithEngineFactory(f engine.Factory) Option {
	return func(s *Supervisor) { s.factory = f }
}

// WithSecrets sets the secrets passed to the engine and masked in output.
func WithSecrets(m *secrets.Manager) Option {
	return func(s *Supervisor) { s.secrets = m }
}

// WithSink sets the tracing sink.
func WithSink(sink tracing.Sink) Option {
	return func(s *Supervisor) { s.sink = tracing.Safe(sink) }
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *Metrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// WithKillGrace bounds how long a killed task is waited for.
func WithKillGrace(d time.Duration) Option {
	return func(s *Supervisor) { s.grace = d }
}

// New creates a supervisor. provider is the browser model handed to every
// engine.
func New(sessions SessionManager, provider llm.Provider, settings config.BrowserSettings, opts ...Option) *Supervisor {
	s := &Supervisor{
		sessions: sessions,
		provider: provider,
		settings: settings,
		factory:  engine.NewFactory(),
		sink:     tracing.Noop{},
		grace:    DefaultKillGrace,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Settings returns the browser settings in use.
func (s *Supervisor) Settings() config.BrowserSettings {
	return s.settings
}

// Sessions returns the session manager.
func (s *Supervisor) Sessions() SessionManager {
	return s.sessions
}

// StartTask kills the live task of state, then starts text as a new task
// bound to the actor's current iteration. The returned task is already
// running in the background.
func (s *Supervisor) StartTask(ctx context.Context, a Actor, state *browser.State, text string) *Task {
	g0 := a.Iteration()
	t := newTask(s.grace)

	if prev := state.BindTask(t, g0); prev != nil {
		supervisorLog.Infof("Killing previous browser task of actor %s", a.ID())
		prev.Kill()
	}

	s.metrics.taskStarted()
	s.sink.LogEvent(ctx, tracing.EventTaskStarted, map[string]any{
		"actor":     a.ID(),
		"task":      t.ID(),
		"iteration": g0,
	})
	supervisorLog.Infof("Starting browser task %s for actor %s (iteration %d)", t.ID(), a.ID(), g0)

	t.start(ctx, func(ctx context.Context) (*engine.History, error) {
		return s.run(ctx, a, state, t, text, g0)
	})
	return t
}

func (s *Supervisor) run(ctx context.Context, a Actor, state *browser.State, t *Task, text string, g0 uint64) (*engine.History, error) {
	if err := s.sessions.EnsureSession(ctx, state); err != nil {
		return nil, err
	}
	sess := state.Session()
	if sess == nil {
		return nil, fmt.Errorf("%w: session closed during startup", browser.ErrInitialization)
	}

	prompt, err := s.systemPrompt()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", browser.ErrInitialization, err)
	}

	eng, err := s.factory(text, sess, engine.Options{
		Provider:           s.provider,
		UseVision:          s.settings.UseVision,
		MaxFailures:        engine.DefaultMaxFailures,
		AllowedDomains:     s.settings.AllowedDomains,
		SensitiveData:      s.secretValues(),
		ExtendSystemPrompt: prompt,
		CustomActions:      []tools.Tool{&completeTaskAction{}},
		Events:             s.engineEvents(a.ID()),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: browser agent initialization failed, this might be due to model compatibility issues: %w", browser.ErrInitialization, err)
	}
	if !t.setRunning(eng) {
		return nil, ErrTaskKilled
	}
	if state.Task() == browser.TaskHandle(t) {
		state.SetRunner(eng)
	}

	hook := cancelHook(a, g0)
	return eng.Run(ctx, s.maxSteps(), engine.Hooks{OnStepStart: hook, OnStepEnd: hook})
}

// cancelHook holds the run while the actor is paused and stops it once the
// actor moved past iteration g0.
func cancelHook(a Actor, g0 uint64) engine.StepHook {
	return func(ctx context.Context, _ int) error {
		if err := a.WaitIfPaused(ctx); err != nil {
			return err
		}
		if a.Iteration() != g0 {
			return ErrCancelledByIteration
		}
		return nil
	}
}

// Await polls t until it finishes or the overall timeout expires, reporting
// progress along the way, and returns the outcome.
func (s *Supervisor) Await(ctx context.Context, a Actor, state *browser.State, t *Task, reporter ProgressReporter) Outcome {
	if reporter == nil {
		reporter = discardReporter{}
	}
	started := time.Now()
	s.metrics.awaitStarted()
	ctx, spanID := s.sink.StartSpan(ctx, tracing.SpanBrowserTask, map[string]any{
		"actor": a.ID(),
		"task":  t.ID(),
	})

	out := s.await(ctx, a, state, t, reporter)

	elapsed := time.Since(started)
	s.metrics.observeOutcome(out.Status, elapsed)
	var spanErr error
	if out.Status != StatusDone {
		spanErr = errors.New(string(out.Status))
	}
	s.sink.EndSpan(spanID, map[string]any{"status": string(out.Status), "elapsed": elapsed}, spanErr)
	supervisorLog.Infof("Browser task %s finished: %s", t.ID(), out.Status)
	return out
}

func (s *Supervisor) await(ctx context.Context, a Actor, state *browser.State, t *Task, reporter ProgressReporter) Outcome {
	timeout := s.timeout()
	shotID := uuid.NewString()
	ticker := time.NewTicker(s.pollInterval())
	defer ticker.Stop()

	var (
		start      = time.Now()
		failures   int
		polling    = true
		screenshot string
	)

	for !t.Done() {
		if time.Since(start) >= timeout {
			supervisorLog.Warnf("%s", s.mask(fmt.Sprintf("Browser agent task timeout after %s, forcing completion", timeout)))
			break
		}

		if err := a.HandleIntervention(ctx); err != nil {
			t.Kill()
			return s.cancelled(err)
		}

		select {
		case <-ctx.Done():
			t.Kill()
			return s.cancelled(ctx.Err())
		case <-t.Wait():
			continue
		case <-ticker.C:
		}
		if t.Done() || !polling {
			continue
		}

		p, err := s.progress(ctx, a, state, t, shotID)
		if err != nil {
			failures++
			s.metrics.progressTimeout()
			s.sink.LogEvent(ctx, tracing.EventProgressTimeout, map[string]any{"failures": failures})
			supervisorLog.Warnf("%s", s.mask(fmt.Sprintf("Browser agent progress update timed out (%d/%d)", failures, maxProgressFailures)))
			if failures >= maxProgressFailures {
				supervisorLog.Warnf("%d consecutive progress timeouts, no further progress updates for task %s", maxProgressFailures, t.ID())
				polling = false
			}
			continue
		}
		failures = 0
		reporter.Update(p)
		if p.Screenshot != "" {
			screenshot = p.Screenshot
		}
	}

	if !t.Done() {
		supervisorLog.Warnf("Browser task %s did not finish in time, killing it", t.ID())
		t.expire()
		return Outcome{Status: StatusTimedOut, Text: s.mask(msgTimedOut), ScreenshotRef: screenshot}
	}

	if t.Engine() != nil {
		screenshot = s.finalProgress(ctx, a, state, t, shotID, screenshot, reporter)
	}

	hist, err := t.Result()
	if err != nil {
		if t.Status() == TaskCancelled {
			return s.cancelled(err)
		}
		msg := "Browser agent task failed to return result: %v"
		if errors.Is(err, browser.ErrInitialization) {
			msg = "Browser agent task could not be started: %v"
		}
		text := s.mask(fmt.Sprintf(msg, err))
		supervisorLog.Errorf("%s", text)
		return Outcome{Status: StatusFailed, Text: text, ScreenshotRef: screenshot}
	}

	var out Outcome
	if hist != nil && hist.IsDone() {
		out = Outcome{Status: StatusDone, Text: renderAnswer(hist.FinalResult())}
	} else {
		lastURL := ""
		if hist != nil {
			lastURL = hist.LastURL()
		}
		out = Outcome{Status: StatusStepLimit, Text: stepLimitText(lastURL)}
	}
	out.Text = s.mask(out.Text)
	out.ScreenshotRef = screenshot
	if path := ScreenshotPath(screenshot); path != "" {
		out.Text += "\n\nScreenshot: " + path
	}
	return out
}

// finalProgress reports the finished activity log with a fresh screenshot
// while the session is still open. It returns the screenshot reference to
// keep, falling back to prev.
func (s *Supervisor) finalProgress(ctx context.Context, a Actor, state *browser.State, t *Task, shotID, prev string, reporter ProgressReporter) string {
	p, err := s.progress(ctx, a, state, t, shotID)
	if err != nil {
		supervisorLog.Warnf("Final progress update for task %s failed: %v", t.ID(), err)
		reporter.Update(newProgress(Summarize(t.Engine().History()), prev, s.mask))
		return prev
	}
	if p.Screenshot == "" {
		p.Screenshot = prev
	}
	reporter.Update(p)
	return p.Screenshot
}

func (s *Supervisor) cancelled(err error) Outcome {
	text := s.mask(fmt.Sprintf("Browser agent task was cancelled: %v", err))
	supervisorLog.Warnf("%s", text)
	return Outcome{Status: StatusCancelled, Text: text}
}

// progress collects one update, bounded by the progress timeout. The
// collecting goroutine is abandoned on timeout; screenshots carry their own
// timeout so it does not outlive the run for long.
func (s *Supervisor) progress(ctx context.Context, a Actor, state *browser.State, t *Task, shotID string) (Progress, error) {
	ctx, cancel := context.WithTimeout(ctx, s.progressTimeout())
	defer cancel()

	ch := make(chan Progress, 1)
	go func() {
		ch <- s.collectProgress(a, state, t, shotID)
	}()

	select {
	case p := <-ch:
		return p, nil
	case <-ctx.Done():
		return Progress{}, fmt.Errorf("%w: %w", errProgressTimeout, ctx.Err())
	}
}

func (s *Supervisor) collectProgress(a Actor, state *browser.State, t *Task, shotID string) Progress {
	eng := t.Engine()
	sess := state.Session()
	if eng == nil || sess == nil {
		return newProgress(Summarize(nil), "", s.mask)
	}
	lines := Summarize(eng.History())

	path, err := s.screenshotPath(a.ID(), shotID)
	if err != nil {
		supervisorLog.Debugf("Screenshot skipped: %v", err)
		return newProgress(lines, "", s.mask)
	}
	if err := sess.Screenshot(path); err != nil {
		supervisorLog.Debugf("Screenshot failed: %v", err)
		return newProgress(lines, "", s.mask)
	}
	return newProgress(lines, fmt.Sprintf("img://%s&t=%d", path, time.Now().Unix()), s.mask)
}

func (s *Supervisor) screenshotPath(actorID, shotID string) (string, error) {
	dir := s.settings.ScreenshotsDir
	if dir == "" {
		return "", errors.New("no screenshots directory configured")
	}
	dir, err := filepath.Abs(filepath.Join(dir, actorID))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, shotID+".png"), nil
}

func (s *Supervisor) engineEvents(actorID string) func(*types.EngineEvent) {
	return func(e *types.EngineEvent) {
		switch e.Type {
		case types.EventTypeAction:
			supervisorLog.Debugf("%s", s.mask(fmt.Sprintf("[%s] step %d: %s %v", actorID, e.Step, e.Action, e.Args)))
		case types.EventTypeError:
			supervisorLog.Warnf("%s", s.mask(fmt.Sprintf("[%s] step %d failed: %v", actorID, e.Step, e.Error)))
		case types.EventTypeDone:
			supervisorLog.Infof("[%s] engine finished at step %d", actorID, e.Step)
		}
	}
}

func (s *Supervisor) systemPrompt() (string, error) {
	path := s.settings.SystemPromptFile
	if path == "" {
		return defaultSystemPrompt, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read system prompt: %w", err)
	}
	return string(data), nil
}

func (s *Supervisor) mask(text string) string {
	return s.secrets.Mask(text)
}

func (s *Supervisor) secretValues() map[string]string {
	if s.secrets == nil {
		return nil
	}
	return s.secrets.Values()
}

func (s *Supervisor) maxSteps() int {
	if s.settings.MaxSteps > 0 {
		return s.settings.MaxSteps
	}
	return defaultMaxSteps
}

func (s *Supervisor) timeout() time.Duration {
	if s.settings.Timeout > 0 {
		return s.settings.Timeout
	}
	return defaultTimeout
}

func (s *Supervisor) progressTimeout() time.Duration {
	if s.settings.ProgressTimeout > 0 {
		return s.settings.ProgressTimeout
	}
	return defaultProgressTimeout
}

func (s *Supervisor) pollInterval() time.Duration {
	if s.settings.PollInterval > 0 {
		return s.settings.PollInterval
	}
	return defaultPollInterval
}
