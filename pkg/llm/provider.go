// Package llm provides abstractions for the model that drives the browser
// automation engine.
//
// Example usage:
//
//	provider, err := openai.NewProvider(
//	    os.Getenv("OPENAI_API_KEY"),
//	    openai.WithModel("gpt-4o"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	reply, err := provider.Complete(ctx, []*types.Message{
//	    types.NewUserMessage("Hello!"),
//	})
package llm

import (
	"context"

	"github.com/entrhq/browseragent/pkg/types"
)

// Provider defines the interface for LLM integrations.
//
// Providers only handle API communication. Conversation state, prompting and
// tool-call parsing belong to the engine.
type Provider interface {
	// Complete sends messages to the LLM and returns the full response.
	// Images attached to messages are sent when the provider supports vision.
	// The returned message carries token usage when the API reports it.
	Complete(ctx context.Context, messages []*types.Message) (*types.Message, error)

	// GetModelInfo returns information about the LLM model being used.
	GetModelInfo() *types.ModelInfo

	// GetModel returns the model name being used.
	GetModel() string
}
