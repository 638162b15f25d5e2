package supervisor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Status classifies how a browser task ended.
type Status string

const (
	StatusDone      Status = "done"
	StatusStepLimit Status = "step_limit_reached"
	StatusTimedOut  Status = "timed_out"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

const (
	msgTimedOut  = "Browser agent task timed out, no output provided."
	msgCompleted = "Task completed successfully"
)

// Outcome is the final, secret-masked result of a browser task.
type Outcome struct {
	Status        Status `json:"status"`
	Text          string `json:"text"`
	ScreenshotRef string `json:"screenshot,omitempty"`
}

func stepLimitText(lastURL string) string {
	if lastURL == "" {
		lastURL = "unknown"
	}
	return fmt.Sprintf("Task reached step limit without completion. Last page: %s. "+
		"The browser agent may need clearer instructions on when to finish.", lastURL)
}

// renderAnswer turns the final payload of a run into readable text. JSON
// objects, as produced by complete_task, are repaired and rendered field by
// field in their original order.
func renderAnswer(payload string) string {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return msgCompleted
	}
	if !strings.HasPrefix(trimmed, "{") {
		return payload
	}

	repaired, err := jsonrepair.JSONRepair(trimmed)
	if err != nil {
		return fmt.Sprintf("%s\n\n(result could not be parsed: %v)", payload, err)
	}
	fields, err := objectFields([]byte(repaired))
	if err != nil {
		return fmt.Sprintf("%s\n\n(result could not be parsed: %v)", payload, err)
	}
	return fieldsToText(fields)
}

type field struct {
	key   string
	value string
}

// objectFields decodes a JSON object keeping key order. Non-string values
// are kept as compact JSON.
func objectFields(data []byte) ([]field, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected a JSON object")
	}

	var fields []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		fields = append(fields, field{key: key, value: rawText(raw)})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return fields, nil
}

func rawText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// fieldsToText renders "key:\nvalue\n" blocks.
func fieldsToText(fields []field) string {
	parts := make([]string, 0, 3*len(fields))
	for _, f := range fields {
		parts = append(parts, f.key+":", f.value, "")
	}
	return strings.Join(parts, "\n")
}
