package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEngineEventConstructors(t *testing.T) {
	tests := []struct {
		name     string
		event    *EngineEvent
		wantType EngineEventType
		step     bool
		action   bool
		isError  bool
		terminal bool
	}{
		{"step start", NewStepStartEvent(1, "https://a"), EventTypeStepStart, true, false, false, false},
		{"step end", NewStepEndEvent(1, "https://a"), EventTypeStepEnd, true, false, false, false},
		{"thinking", NewThinkingEvent(1, "hmm"), EventTypeThinking, false, false, false, false},
		{"action", NewActionEvent(2, "click", map[string]string{"index": "3"}), EventTypeAction, false, true, false, false},
		{"action result", NewActionResultEvent(2, "click", "clicked"), EventTypeActionResult, false, true, false, false},
		{"done", NewDoneEvent(3, "result"), EventTypeDone, false, false, false, true},
		{"error", NewErrorEvent(3, errors.New("boom")), EventTypeError, false, false, true, false},
		{"tokens", NewTokenUsageEvent(1, 10, 5, 15), EventTypeTokenUsage, false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.event.Type)
			assert.Equal(t, tt.step, tt.event.IsStepEvent())
			assert.Equal(t, tt.action, tt.event.IsActionEvent())
			assert.Equal(t, tt.isError, tt.event.IsErrorEvent())
			assert.Equal(t, tt.terminal, tt.event.IsTerminal())
		})
	}
}

func TestEngineEvent_WithMetadata(t *testing.T) {
	e := NewActionEvent(1, "navigate", nil).WithMetadata("url", "https://example.com")
	assert.Equal(t, "https://example.com", e.Metadata["url"])

	tokens := NewTokenUsageEvent(1, 10, 5, 15)
	assert.Equal(t, 15, tokens.TokenUsage.TotalTokens)
}

func TestMessage(t *testing.T) {
	m := NewUserMessage("look").WithImage([]byte{0x89, 'P', 'N', 'G'}).WithImage(nil)
	assert.Equal(t, RoleUser, m.Role)
	assert.Len(t, m.Images, 1)

	assert.Equal(t, RoleSystem, NewSystemMessage("s").Role)
	assert.Equal(t, RoleAssistant, NewAssistantMessage("a").Role)
}
