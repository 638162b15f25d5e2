package types

// EngineEventType defines the type of event emitted by the automation engine.
type EngineEventType string

const (
	EventTypeStepStart    EngineEventType = "step_start"    // EventTypeStepStart indicates the engine began a step.
	EventTypeThinking     EngineEventType = "thinking"      // EventTypeThinking carries the model's reasoning for a step.
	EventTypeAction       EngineEventType = "action"        // EventTypeAction indicates the engine is about to run an action.
	EventTypeActionResult EngineEventType = "action_result" // EventTypeActionResult carries the result of an action.
	EventTypeStepEnd      EngineEventType = "step_end"      // EventTypeStepEnd indicates the engine finished a step.
	EventTypeDone         EngineEventType = "done"          // EventTypeDone indicates the engine stopped with a final result.
	EventTypeTokenUsage   EngineEventType = "token_usage"   // EventTypeTokenUsage carries token usage for a model call.
	EventTypeError        EngineEventType = "error"         // EventTypeError indicates a step failed.
)

// EngineEvent is emitted by the engine while it runs a task.
type EngineEvent struct {
	// Metadata holds optional additional information about the event.
	Metadata map[string]interface{}

	// Args are the arguments of the action (for action events).
	Args map[string]string

	// Error contains error information for error events.
	Error error

	// TokenUsage contains token usage information (for token usage events).
	TokenUsage *TokenUsage

	// Type indicates the kind of event.
	Type EngineEventType

	// Action is the name of the action (for action events).
	Action string

	// Content holds text content: thinking, extracted content or the final result.
	Content string

	// URL is the page URL when the event was emitted.
	URL string

	// Step is the 1-based step number.
	Step int
}

// NewStepStartEvent creates a step start event.
func NewStepStartEvent(step int, url string) *EngineEvent {
	return &EngineEvent{Type: EventTypeStepStart, Step: step, URL: url}
}

// NewThinkingEvent creates a thinking event.
func NewThinkingEvent(step int, content string) *EngineEvent {
	return &EngineEvent{Type: EventTypeThinking, Step: step, Content: content}
}

// NewActionEvent creates an action event.
func NewActionEvent(step int, action string, args map[string]string) *EngineEvent {
	return &EngineEvent{Type: EventTypeAction, Step: step, Action: action, Args: args}
}

// NewActionResultEvent creates an action result event.
func NewActionResultEvent(step int, action, content string) *EngineEvent {
	return &EngineEvent{Type: EventTypeActionResult, Step: step, Action: action, Content: content}
}

// NewStepEndEvent creates a step end event.
func NewStepEndEvent(step int, url string) *EngineEvent {
	return &EngineEvent{Type: EventTypeStepEnd, Step: step, URL: url}
}

// NewDoneEvent creates a done event carrying the final result.
func NewDoneEvent(step int, content string) *EngineEvent {
	return &EngineEvent{Type: EventTypeDone, Step: step, Content: content}
}

// NewTokenUsageEvent creates a token usage event.
func NewTokenUsageEvent(step, promptTokens, completionTokens, totalTokens int) *EngineEvent {
	return &EngineEvent{
		Type: EventTypeTokenUsage,
		Step: step,
		TokenUsage: &TokenUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      totalTokens,
		},
	}
}

// NewErrorEvent creates an error event.
func NewErrorEvent(step int, err error) *EngineEvent {
	return &EngineEvent{Type: EventTypeError, Step: step, Error: err}
}

// WithMetadata adds metadata to the event and returns the event for chaining.
func (e *EngineEvent) WithMetadata(key string, value interface{}) *EngineEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// IsStepEvent returns true for step boundary events.
func (e *EngineEvent) IsStepEvent() bool {
	return e.Type == EventTypeStepStart || e.Type == EventTypeStepEnd
}

// IsActionEvent returns true for action and action result events.
func (e *EngineEvent) IsActionEvent() bool {
	return e.Type == EventTypeAction || e.Type == EventTypeActionResult
}

// IsErrorEvent returns true if this is an error event.
func (e *EngineEvent) IsErrorEvent() bool {
	return e.Type == EventTypeError
}

// IsTerminal returns true when the event ends a run.
func (e *EngineEvent) IsTerminal() bool {
	return e.Type == EventTypeDone
}
