// Package engine drives a browser through a natural-language task.
//
// An Agent asks the model for one action per step, runs it against the
// current page through a Controller, and records every step in a History.
// The supervisor only sees the Engine interface: it starts a run with a step
// budget and a pair of step hooks, and reads the History while the run is in
// flight.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/entrhq/browseragent/pkg/agent/tools"
	"github.com/entrhq/browseragent/pkg/llm"
	"github.com/entrhq/browseragent/pkg/types"
)

// DefaultMaxFailures is the number of consecutive failed steps after which a
// run gives up and returns its history without an error.
const DefaultMaxFailures = 3

var (
	// ErrNoProvider is returned by NewAgent when no model provider is configured.
	ErrNoProvider = errors.New("engine requires a model provider")
)

// Page is the slice of a browser tab the engine drives.
type Page interface {
	URL() string
	Title() (string, error)
	Content() (string, error)
	Goto(url string) error
	Click(selector string) error
	Fill(selector, value string) error
	GoBack() error
	WaitFor(selector string, timeout time.Duration) error
	Screenshot() ([]byte, error)
}

// Browser hands out the page the engine should act on. Clicks can open new
// tabs, so the page is looked up again at every step.
type Browser interface {
	CurrentPage() (Page, error)
}

// ActionResult is the outcome of one action.
type ActionResult struct {
	IsDone           bool   `json:"is_done"`
	Success          bool   `json:"success"`
	Error            string `json:"error,omitempty"`
	ExtractedContent string `json:"extracted_content,omitempty"`
	IncludeInMemory  bool   `json:"include_in_memory"`
}

// StepHook runs at a step boundary. A non-nil error stops the run and is
// returned from Run unchanged.
type StepHook func(ctx context.Context, step int) error

// Hooks are invoked before and after every step.
type Hooks struct {
	OnStepStart StepHook
	OnStepEnd   StepHook
}

// Engine runs a single task.
type Engine interface {
	// Run executes up to maxSteps steps. It returns the history when the task
	// is done, the step budget is spent or the failure budget ran out, and an
	// error when a hook or the context stopped it.
	Run(ctx context.Context, maxSteps int, hooks Hooks) (*History, error)

	// History returns the live history. Safe to call while Run is in flight.
	History() *History
}

// Options configure an engine instance.
type Options struct {
	Provider           llm.Provider
	UseVision          bool
	MaxFailures        int
	AllowedDomains     []string
	SensitiveData      map[string]string
	ExtendSystemPrompt string
	CustomActions      []tools.Tool
	Events             func(*types.EngineEvent)
}

// Factory builds an engine for a task on a browser.
type Factory func(task string, browser Browser, opts Options) (Engine, error)

// NewFactory returns the Factory producing Agents.
func NewFactory() Factory {
	return func(task string, browser Browser, opts Options) (Engine, error) {
		return NewAgent(task, browser, opts)
	}
}
