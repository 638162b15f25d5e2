package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/entrhq/browseragent/pkg/agent/tools"
	"github.com/entrhq/browseragent/pkg/llm"
	"github.com/entrhq/browseragent/pkg/llm/parser"
	"github.com/entrhq/browseragent/pkg/logging"
	"github.com/entrhq/browseragent/pkg/types"
)

const (
	pageStateTokenLimit = 3000
	memoryTokenLimit    = 60000
)

var engineLog = logging.MustLogger("engine")

// errAlreadyRunning is returned when Run is called on an agent that is running.
var errAlreadyRunning = errors.New("engine is already running")

// Agent is the default Engine. It keeps a short conversation memory with the
// model and sends a fresh page state every step.
type Agent struct {
	task         string
	provider     llm.Provider
	view         *pageView
	controller   *Controller
	history      *History
	opts         Options
	systemPrompt string

	// memory and failures are only touched by the Run goroutine.
	memory   []*types.Message
	failures int
	running  atomic.Bool
}

// NewAgent creates an agent for a task on a browser.
func NewAgent(task string, browser Browser, opts Options) (*Agent, error) {
	if opts.Provider == nil {
		return nil, ErrNoProvider
	}
	if browser == nil {
		return nil, fmt.Errorf("engine requires a browser")
	}
	task = strings.TrimSpace(task)
	if task == "" {
		return nil, fmt.Errorf("task is required")
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = DefaultMaxFailures
	}

	view := &pageView{browser: browser}
	actions, err := defaultActions(view, opts.AllowedDomains, opts.SensitiveData)
	if err != nil {
		return nil, err
	}
	controller := NewController(actions...)
	for _, a := range opts.CustomActions {
		controller.Register(a)
	}

	prompt := NewPromptBuilder(task).
		WithActions(controller.Actions()).
		WithExtension(opts.ExtendSystemPrompt).
		WithVision(opts.UseVision).
		WithSecrets(opts.SensitiveData).
		Build()

	return &Agent{
		task:         task,
		provider:     opts.Provider,
		view:         view,
		controller:   controller,
		history:      NewHistory(),
		opts:         opts,
		systemPrompt: prompt,
		memory:       []*types.Message{types.NewUserMessage("Your task: " + task)},
	}, nil
}

// History returns the live run history.
func (a *Agent) History() *History {
	return a.history
}

// Controller returns the action controller.
func (a *Agent) Controller() *Controller {
	return a.controller
}

// Run executes the task step by step until the model finishes it, the step
// budget runs out, a hook fails, the context ends or MaxFailures consecutive
// steps fail.
func (a *Agent) Run(ctx context.Context, maxSteps int, hooks Hooks) (*History, error) {
	if !a.running.CompareAndSwap(false, true) {
		return a.history, errAlreadyRunning
	}
	defer a.running.Store(false)

	engineLog.Infof("Starting task (max %d steps): %s", maxSteps, a.task)

	for step := 1; step <= maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return a.history, err
		}
		if err := runHook(ctx, hooks.OnStepStart, step); err != nil {
			return a.history, err
		}

		a.step(ctx, step)

		if err := ctx.Err(); err != nil {
			return a.history, err
		}
		if err := runHook(ctx, hooks.OnStepEnd, step); err != nil {
			return a.history, err
		}

		if a.history.IsDone() {
			engineLog.Infof("Task finished at step %d (success=%v)", step, a.history.IsSuccessful())
			a.emit(types.NewDoneEvent(step, a.history.FinalResult()))
			return a.history, nil
		}
		if a.failures >= a.opts.MaxFailures {
			// the history stands as the result, like an exhausted step budget
			engineLog.Warnf("Stopping after %d consecutive failures", a.failures)
			return a.history, nil
		}
	}

	engineLog.Infof("Step budget of %d exhausted without completion", maxSteps)
	return a.history, nil
}

func runHook(ctx context.Context, hook StepHook, step int) error {
	if hook == nil {
		return nil
	}
	return hook(ctx, step)
}

func (a *Agent) step(ctx context.Context, n int) {
	start := time.Now()
	record := StepRecord{Number: n}

	page, err := a.view.page()
	if err != nil {
		a.fail(&record, start, err)
		return
	}
	record.URL = page.URL()
	a.emit(types.NewStepStartEvent(n, record.URL))

	state, err := a.readPage(page)
	if err != nil {
		a.fail(&record, start, err)
		return
	}

	stateMsg := types.NewUserMessage(fmt.Sprintf("Step %d\n\n%s", n, state.Render(pageStateTokenLimit)))
	if a.opts.UseVision {
		png, shotErr := page.Screenshot()
		if shotErr != nil {
			engineLog.Warnf("Step %d: screenshot failed: %v", n, shotErr)
		} else {
			stateMsg = stateMsg.WithImage(png)
		}
	}

	reply, err := a.provider.Complete(ctx, a.messages(stateMsg))
	if err != nil {
		a.fail(&record, start, fmt.Errorf("model call failed: %w", err))
		return
	}
	if u := reply.Usage; u != nil {
		a.emit(types.NewTokenUsageEvent(n, u.PromptTokens, u.CompletionTokens, u.TotalTokens))
	}

	split := parser.SplitThinking(reply.Content)
	record.Thinking = split.Thinking
	if split.Thinking != "" {
		a.emit(types.NewThinkingEvent(n, split.Thinking))
	}
	a.remember(types.NewAssistantMessage(reply.Content))

	call, _, err := tools.ParseToolCall(split.Message)
	if err != nil {
		a.fail(&record, start, fmt.Errorf("could not parse an action from the reply: %w", err))
		return
	}

	args, _ := tools.XMLToMap(call.GetArgumentsXML())
	record.Action = call.ToolName
	record.Args = args
	a.emit(types.NewActionEvent(n, call.ToolName, args))

	result := a.controller.Execute(ctx, call)
	record.Results = []ActionResult{result}
	record.Duration = time.Since(start)
	a.history.Add(record)

	if result.Error != "" {
		a.failures++
		engineLog.Warnf("Step %d: %s", n, result.Error)
		a.emit(types.NewErrorEvent(n, errors.New(result.Error)))
		a.remember(types.NewUserMessage("Action error: " + result.Error))
	} else {
		a.failures = 0
		a.emit(types.NewActionResultEvent(n, call.ToolName, result.ExtractedContent))
		a.remember(types.NewUserMessage("Action result: " + memoryText(result)))
	}
	a.emit(types.NewStepEndEvent(n, page.URL()))
}

// readPage snapshots the page and makes it the view element indices resolve against.
func (a *Agent) readPage(page Page) (*PageState, error) {
	raw, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}
	state, err := BuildPageState(raw)
	if err != nil {
		return nil, err
	}
	state.URL = page.URL()
	if title, titleErr := page.Title(); titleErr == nil && title != "" {
		state.Title = title
	}
	a.view.set(state)
	return state, nil
}

func (a *Agent) fail(record *StepRecord, start time.Time, err error) {
	a.failures++
	engineLog.Warnf("Step %d failed (%d/%d): %v", record.Number, a.failures, a.opts.MaxFailures, err)

	record.Results = []ActionResult{{Error: err.Error(), IncludeInMemory: true}}
	record.Duration = time.Since(start)
	a.history.Add(*record)

	a.emit(types.NewErrorEvent(record.Number, err))
	a.remember(types.NewUserMessage("Step failed: " + err.Error()))
}

func memoryText(r ActionResult) string {
	if r.IncludeInMemory {
		return r.ExtractedContent
	}
	first, _, _ := strings.Cut(r.ExtractedContent, "\n")
	return first
}

// messages builds the request: system prompt, memory, then the ephemeral
// page state which is never stored.
func (a *Agent) messages(state *types.Message) []*types.Message {
	msgs := make([]*types.Message, 0, len(a.memory)+2)
	msgs = append(msgs, types.NewSystemMessage(a.systemPrompt))
	msgs = append(msgs, a.memory...)
	return append(msgs, state)
}

// remember appends to memory and drops the oldest entries, keeping the task
// message, once memory exceeds memoryTokenLimit.
func (a *Agent) remember(msg *types.Message) {
	a.memory = append(a.memory, msg)

	total := 0
	for _, m := range a.memory {
		total += CountTokens(m.Content)
	}
	for total > memoryTokenLimit && len(a.memory) > 2 {
		total -= CountTokens(a.memory[1].Content)
		a.memory = append(a.memory[:1], a.memory[2:]...)
	}
}

func (a *Agent) emit(event *types.EngineEvent) {
	if a.opts.Events != nil {
		a.opts.Events(event)
	}
}
