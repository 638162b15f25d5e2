package supervisor

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/browseragent/pkg/agent/actor"
	"github.com/entrhq/browseragent/pkg/agent/tools"
	"github.com/entrhq/browseragent/pkg/browser"
	"github.com/entrhq/browseragent/pkg/tracing"
)

// StateKey is the actor data key holding the browser State.
const StateKey = "_browser_agent_state"

const closerKey = "_browser_agent_state_closer"

// StateOwner creates and releases actor states.
type StateOwner interface {
	NewState(actorID string) *browser.State
	Release(state *browser.State)
}

// StateOf returns the browser state stored on a, or nil.
func StateOf(a *actor.Context) *browser.State {
	v, ok := a.GetData(StateKey)
	if !ok {
		return nil
	}
	state, _ := v.(*browser.State)
	return state
}

var _ tools.Tool = (*BrowserAgentTool)(nil)

// BrowserAgentTool is the browser_agent tool of one actor.
type BrowserAgentTool struct {
	supervisor *Supervisor
	owner      StateOwner
	actor      *actor.Context
	reporter   ProgressReporter
}

// NewBrowserAgentTool binds the tool to an actor. reporter may be nil.
func NewBrowserAgentTool(s *Supervisor, owner StateOwner, a *actor.Context, reporter ProgressReporter) *BrowserAgentTool {
	return &BrowserAgentTool{supervisor: s, owner: owner, actor: a, reporter: reporter}
}

type browserAgentInput struct {
	XMLName  xml.Name `xml:"arguments"`
	Message  string   `xml:"message"`
	Reset    string   `xml:"reset"`
	Takeover string   `xml:"takeover"`
}

func (b *BrowserAgentTool) Name() string { return "browser_agent" }

func (b *BrowserAgentTool) Description() string {
	return "Delegate a browsing task to an autonomous browser agent. Describe the task and when to finish in message. " +
		"Set reset to true to start from a fresh browser. Set takeover to true to hand the browser to the operator."
}

func (b *BrowserAgentTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{
		"message": tools.StringProperty("Task for the browser agent, including when it is finished"),
		"reset": map[string]interface{}{
			"type":        "boolean",
			"description": "Close the current browser and start a new one",
		},
		"takeover": map[string]interface{}{
			"type":        "boolean",
			"description": "Pause and hand control of the browser to the operator",
		},
	}, []string{"message"})
}

func (b *BrowserAgentTool) IsLoopBreaking() bool { return false }

// Execute runs the task in message and returns the outcome text.
func (b *BrowserAgentTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input browserAgentInput
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}
	reset := parseFlag(input.Reset)
	takeover := parseFlag(input.Takeover)

	sink := b.supervisor.sink
	ctx, spanID := sink.StartSpan(ctx, tracing.SpanToolExecute, map[string]any{
		"tool":     b.Name(),
		"actor":    b.actor.ID(),
		"reset":    reset,
		"takeover": takeover,
	})
	started := time.Now()

	state := b.prepareState(reset)

	if takeover {
		text, meta, err := b.handOver(ctx, state)
		sink.EndSpan(spanID, map[string]any{"elapsed": time.Since(started)}, err)
		return text, meta, nil
	}

	message := strings.TrimSpace(input.Message)
	if message == "" {
		err := errors.New("message is required")
		sink.EndSpan(spanID, nil, err)
		return "", nil, err
	}

	task := b.supervisor.StartTask(ctx, b.actor, state, message)
	out := b.supervisor.Await(ctx, b.actor, state, task, b.reporter)

	var outErr error
	if out.Status != StatusDone {
		outErr = errors.New(string(out.Status))
	}
	sink.EndSpan(spanID, map[string]any{"status": string(out.Status), "elapsed": time.Since(started)}, outErr)

	meta := map[string]interface{}{"status": string(out.Status)}
	if out.ScreenshotRef != "" {
		meta["screenshot"] = out.ScreenshotRef
	}
	return out.Text, meta, nil
}

func (b *BrowserAgentTool) handOver(ctx context.Context, state *browser.State) (string, map[string]interface{}, error) {
	h, err := browser.HandOverControl(state, b.actor)
	if err != nil {
		b.supervisor.metrics.handoff("unavailable")
		return "❌ " + err.Error(), map[string]interface{}{"error": err.Error()}, err
	}
	b.supervisor.metrics.handoff("granted")
	b.supervisor.sink.LogEvent(ctx, tracing.EventHandoff, map[string]any{
		"actor":       b.actor.ID(),
		"environment": h.Environment,
		"kind":        string(h.Primary().Kind),
	})

	meta := map[string]interface{}{
		"control_options": h.Options,
		"environment":     h.Environment,
	}
	switch p := h.Primary(); p.Kind {
	case browser.ControlCDP:
		meta["devtools_link"] = p.Link
		meta["ws_endpoint"] = p.Endpoint
	case browser.ControlVNC:
		meta["vnc_url"] = p.URL
		meta["display_port"] = p.Port
	}
	return h.Message, meta, nil
}

// prepareState returns the actor's state, replacing it on reset.
func (b *BrowserAgentTool) prepareState(reset bool) *browser.State {
	state := StateOf(b.actor)
	if reset && state != nil {
		b.owner.Release(state)
		state = nil
	}
	if state == nil {
		state = b.owner.NewState(b.actor.ID())
		BindState(b.actor, b.owner, state)
	}
	return state
}

// BindState stores state on a. The first bind registers a single close hook
// that releases whatever state a holds when it closes.
func BindState(a *actor.Context, owner StateOwner, state *browser.State) {
	a.SetData(StateKey, state)
	if _, ok := a.GetData(closerKey); ok {
		return
	}
	a.SetData(closerKey, true)
	a.OnClose(func() {
		if st := StateOf(a); st != nil {
			owner.Release(st)
		}
	})
}

func parseFlag(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}
