package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/entrhq/browseragent/pkg/agent/tools"
	"github.com/entrhq/browseragent/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	mu     sync.Mutex
	events []*types.EngineEvent
}

func (l *eventLog) record(e *types.EngineEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) count(typ types.EngineEventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func newTestAgent(t *testing.T, provider *scriptedProvider, page *fakePage, opts Options) *Agent {
	t.Helper()
	opts.Provider = provider
	a, err := NewAgent("go to example.com and report the title", &fakeBrowser{page: page}, opts)
	require.NoError(t, err)
	return a
}

func TestNewAgent_Validation(t *testing.T) {
	browser := &fakeBrowser{page: newFakePage("about:blank")}

	_, err := NewAgent("task", browser, Options{})
	assert.ErrorIs(t, err, ErrNoProvider)

	_, err = NewAgent("  ", browser, Options{Provider: &scriptedProvider{}})
	assert.Error(t, err)

	_, err = NewAgent("task", nil, Options{Provider: &scriptedProvider{}})
	assert.Error(t, err)
}

func TestAgent_DoneAfterTwoSteps(t *testing.T) {
	provider := &scriptedProvider{replies: []string{
		"<thinking>open the site</thinking>\n" + toolCall("navigate", "<url>https://example.com</url>"),
		toolCall("done", "<text>The title is Example Domain</text>"),
	}}
	page := newFakePage("about:blank")
	events := &eventLog{}
	a := newTestAgent(t, provider, page, Options{Events: events.record})

	history, err := a.Run(context.Background(), 50, Hooks{})
	require.NoError(t, err)

	assert.Equal(t, 2, history.Len())
	assert.True(t, history.IsDone())
	assert.True(t, history.IsSuccessful())
	assert.Equal(t, "The title is Example Domain", history.FinalResult())
	assert.Equal(t, "https://example.com", history.LastURL())

	steps := history.Steps()
	assert.Equal(t, "navigate", steps[0].Action)
	assert.Equal(t, "open the site", steps[0].Thinking)
	assert.Equal(t, map[string]string{"url": "https://example.com"}, steps[0].Args)

	assert.Equal(t, 1, events.count(types.EventTypeDone))
	assert.Equal(t, 2, events.count(types.EventTypeTokenUsage))
	assert.Equal(t, 1, events.count(types.EventTypeThinking))
	assert.Zero(t, events.count(types.EventTypeError))
}

func TestAgent_StepLimit(t *testing.T) {
	provider := &scriptedProvider{replies: []string{toolCall("wait", "<seconds>0</seconds>")}}
	page := newFakePage("https://example.com/page")
	a := newTestAgent(t, provider, page, Options{})

	history, err := a.Run(context.Background(), 5, Hooks{})
	require.NoError(t, err)
	assert.Equal(t, 5, history.Len())
	assert.False(t, history.IsDone())
	assert.Equal(t, "https://example.com/page", history.LastURL())
	assert.Equal(t, 5, provider.calls)
}

func TestAgent_HooksRunAroundEverySteps(t *testing.T) {
	provider := &scriptedProvider{replies: []string{toolCall("wait", "<seconds>0</seconds>")}}
	a := newTestAgent(t, provider, newFakePage("about:blank"), Options{})

	var calls []string
	hooks := Hooks{
		OnStepStart: func(ctx context.Context, step int) error {
			calls = append(calls, "start")
			return nil
		},
		OnStepEnd: func(ctx context.Context, step int) error {
			calls = append(calls, "end")
			return nil
		},
	}
	_, err := a.Run(context.Background(), 2, hooks)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "end", "start", "end"}, calls)
}

func TestAgent_HookErrorStopsRun(t *testing.T) {
	stop := errors.New("stale iteration")
	provider := &scriptedProvider{replies: []string{toolCall("wait", "<seconds>0</seconds>")}}
	a := newTestAgent(t, provider, newFakePage("about:blank"), Options{})

	history, err := a.Run(context.Background(), 50, Hooks{
		OnStepStart: func(ctx context.Context, step int) error {
			if step == 2 {
				return stop
			}
			return nil
		},
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, history.Len())
	assert.Equal(t, 1, provider.calls)
}

func TestAgent_ConsecutiveFailures(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("rate limited")}
	a := newTestAgent(t, provider, newFakePage("about:blank"), Options{})

	history, err := a.Run(context.Background(), 50, Hooks{})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxFailures, history.Len())
	assert.False(t, history.IsDone())
	for _, r := range history.ActionResults() {
		assert.Contains(t, r.Error, "rate limited")
	}
}

func TestAgent_SuccessResetsFailures(t *testing.T) {
	provider := &scriptedProvider{replies: []string{
		"no action here",
		"still nothing",
		toolCall("wait", "<seconds>0</seconds>"),
		"nothing again",
		"and again",
		toolCall("done", "<text>finished</text>"),
	}}
	a := newTestAgent(t, provider, newFakePage("about:blank"), Options{})

	history, err := a.Run(context.Background(), 50, Hooks{})
	require.NoError(t, err)
	assert.Equal(t, 6, history.Len())
	assert.True(t, history.IsDone())
}

func TestAgent_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := newTestAgent(t, &scriptedProvider{}, newFakePage("about:blank"), Options{})

	history, err := a.Run(ctx, 50, Hooks{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, history.Len())
}

func TestAgent_VisionAttachesScreenshot(t *testing.T) {
	provider := &scriptedProvider{replies: []string{toolCall("done", "<text>ok</text>")}}
	page := newFakePage("https://example.com")
	page.shot = []byte("png-bytes")
	a := newTestAgent(t, provider, page, Options{UseVision: true})

	_, err := a.Run(context.Background(), 3, Hooks{})
	require.NoError(t, err)

	require.Len(t, provider.requests, 1)
	req := provider.requests[0]
	last := req[len(req)-1]
	require.Len(t, last.Images, 1)
	assert.Equal(t, []byte("png-bytes"), last.Images[0])
}

func TestAgent_MemoryKeepsResultsNotPageState(t *testing.T) {
	provider := &scriptedProvider{replies: []string{
		toolCall("wait", "<seconds>0</seconds>"),
		toolCall("done", "<text>ok</text>"),
	}}
	a := newTestAgent(t, provider, newFakePage("https://example.com"), Options{})

	_, err := a.Run(context.Background(), 5, Hooks{})
	require.NoError(t, err)
	require.Len(t, provider.requests, 2)

	second := provider.requests[1]
	require.Len(t, second, 5)
	assert.Equal(t, types.RoleSystem, second[0].Role)
	assert.Contains(t, second[1].Content, "Your task: go to example.com")
	assert.Equal(t, types.RoleAssistant, second[2].Role)
	assert.Contains(t, second[3].Content, "Action result: 🕒 Waited for 0 seconds")
	assert.Contains(t, second[4].Content, "Step 2")
	assert.Contains(t, second[4].Content, "Current URL: https://example.com")
}

func TestAgent_CustomActions(t *testing.T) {
	custom := &stubAction{name: "complete_task", content: `{"response":"ok"}`, breaking: true}
	provider := &scriptedProvider{replies: []string{toolCall("complete_task", "<response>ok</response>")}}
	a := newTestAgent(t, provider, newFakePage("about:blank"), Options{CustomActions: []tools.Tool{custom}})

	assert.Contains(t, a.systemPrompt, `<tool name="complete_task">`)

	history, err := a.Run(context.Background(), 5, Hooks{})
	require.NoError(t, err)
	assert.True(t, history.IsSuccessful())
	assert.Equal(t, `{"response":"ok"}`, history.FinalResult())
}

func TestAgent_BrowserUnavailable(t *testing.T) {
	provider := &scriptedProvider{replies: []string{toolCall("done", "<text>ok</text>")}}
	a, err := NewAgent("task", &fakeBrowser{err: errors.New("closed")}, Options{Provider: provider})
	require.NoError(t, err)

	history, err := a.Run(context.Background(), 10, Hooks{})
	require.NoError(t, err)
	assert.Equal(t, 3, history.Len())
	assert.Zero(t, provider.calls)
}
