package types

// MessageRole identifies who authored a conversation message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"    // RoleSystem is the system prompt.
	RoleUser      MessageRole = "user"      // RoleUser is input given to the model.
	RoleAssistant MessageRole = "assistant" // RoleAssistant is the model's reply.
)

// Message is one entry of a model conversation.
type Message struct {
	Role    MessageRole
	Content string

	// Images are PNG screenshots attached to a user message when vision is on.
	Images [][]byte

	// Usage is set on assistant replies when the provider reports it.
	Usage *TokenUsage
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) *Message {
	return &Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) *Message {
	return &Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) *Message {
	return &Message{Role: RoleAssistant, Content: content}
}

// WithImage attaches a PNG image and returns the message for chaining.
func (m *Message) WithImage(png []byte) *Message {
	if len(png) > 0 {
		m.Images = append(m.Images, png)
	}
	return m
}

// ModelInfo describes the model behind a provider.
type ModelInfo struct {
	Metadata       map[string]interface{}
	Provider       string
	Name           string
	SupportsVision bool
	MaxTokens      int
}

// TokenUsage contains token usage statistics from an LLM API call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
