package supervisor

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/entrhq/browseragent/pkg/agent/tools"
)

// completionResult is the payload of complete_task.
type completionResult struct {
	Title       string `json:"title"`
	Response    string `json:"response"`
	PageSummary string `json:"page_summary"`
}

// completeTaskAction lets the engine finish with a structured answer.
type completeTaskAction struct{}

type completeTaskInput struct {
	XMLName     xml.Name `xml:"arguments"`
	Title       string   `xml:"title"`
	Response    string   `xml:"response"`
	PageSummary string   `xml:"page_summary"`
}

func (a *completeTaskAction) Name() string { return "complete_task" }

func (a *completeTaskAction) Description() string {
	return "Complete task. Use when the task is finished: give a short title, the full response for the user and a summary of the current page."
}

func (a *completeTaskAction) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{
		"title":        tools.StringProperty("Short title of the result"),
		"response":     tools.StringProperty("Complete answer to the task"),
		"page_summary": tools.StringProperty("Summary of the page the browser is on"),
	}, []string{"title", "response", "page_summary"})
}

func (a *completeTaskAction) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input completeTaskInput
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}
	payload, err := json.Marshal(completionResult{
		Title:       strings.TrimSpace(input.Title),
		Response:    strings.TrimSpace(input.Response),
		PageSummary: strings.TrimSpace(input.PageSummary),
	})
	if err != nil {
		return "", nil, err
	}
	return string(payload), nil, nil
}

func (a *completeTaskAction) IsLoopBreaking() bool { return true }
