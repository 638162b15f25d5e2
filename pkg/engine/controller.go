package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/entrhq/browseragent/pkg/agent/tools"
)

// Controller dispatches parsed tool calls to registered actions.
type Controller struct {
	mu      sync.RWMutex
	actions map[string]tools.Tool
	order   []string
}

// NewController creates a controller with the given actions.
func NewController(actions ...tools.Tool) *Controller {
	c := &Controller{actions: make(map[string]tools.Tool)}
	for _, a := range actions {
		c.Register(a)
	}
	return c
}

// Register adds an action, replacing any action with the same name.
func (c *Controller) Register(action tools.Tool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := action.Name()
	if _, exists := c.actions[name]; !exists {
		c.order = append(c.order, name)
	}
	c.actions[name] = action
}

// Get returns the action registered under name.
func (c *Controller) Get(name string) (tools.Tool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.actions[name]
	return a, ok
}

// Actions returns the registered actions in registration order.
func (c *Controller) Actions() []tools.Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]tools.Tool, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.actions[name])
	}
	return out
}

// Execute runs a tool call and converts the outcome into an ActionResult.
// Action failures are reported in the result, never returned.
func (c *Controller) Execute(ctx context.Context, call *tools.ToolCall) ActionResult {
	action, ok := c.Get(call.ToolName)
	if !ok {
		return ActionResult{Error: fmt.Sprintf("unknown action %q", call.ToolName), IncludeInMemory: true}
	}

	content, meta, err := action.Execute(ctx, call.GetArgumentsXML())
	if err != nil {
		return ActionResult{Error: fmt.Sprintf("%s failed: %v", call.ToolName, err), IncludeInMemory: true}
	}

	result := ActionResult{ExtractedContent: content}
	if include, ok := meta[metaIncludeInMemory].(bool); ok {
		result.IncludeInMemory = include
	}
	if action.IsLoopBreaking() {
		result.IsDone = true
		result.Success = true
		if success, ok := meta[metaSuccess].(bool); ok {
			result.Success = success
		}
	}
	return result
}
