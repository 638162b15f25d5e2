package engine

import (
	"sync"
	"time"
)

// StepRecord is one completed engine step.
type StepRecord struct {
	Number   int
	URL      string
	Thinking string
	Action   string
	Args     map[string]string
	Results  []ActionResult
	Duration time.Duration
}

// History is the ordered record of a run. It is written by the engine and
// read concurrently by progress reporting.
type History struct {
	mu    sync.RWMutex
	steps []StepRecord
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{}
}

// Add appends a step.
func (h *History) Add(step StepRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.steps = append(h.steps, step)
}

// Len returns the number of recorded steps.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.steps)
}

// Steps returns a copy of the recorded steps.
func (h *History) Steps() []StepRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]StepRecord(nil), h.steps...)
}

// ActionResults returns every action result in step order.
func (h *History) ActionResults() []ActionResult {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []ActionResult
	for _, s := range h.steps {
		out = append(out, s.Results...)
	}
	return out
}

func (h *History) last() (ActionResult, bool) {
	for i := len(h.steps) - 1; i >= 0; i-- {
		if n := len(h.steps[i].Results); n > 0 {
			return h.steps[i].Results[n-1], true
		}
	}
	return ActionResult{}, false
}

// IsDone reports whether the last action ended the task.
func (h *History) IsDone() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.last()
	return ok && r.IsDone
}

// IsSuccessful reports whether the task ended and the engine marked it successful.
func (h *History) IsSuccessful() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.last()
	return ok && r.IsDone && r.Success
}

// FinalResult returns the extracted content of the last action.
func (h *History) FinalResult() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, _ := h.last()
	return r.ExtractedContent
}

// URLs returns the page URL of every step.
func (h *History) URLs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.steps))
	for _, s := range h.steps {
		out = append(out, s.URL)
	}
	return out
}

// LastURL returns the most recent non-empty page URL.
func (h *History) LastURL() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for i := len(h.steps) - 1; i >= 0; i-- {
		if h.steps[i].URL != "" {
			return h.steps[i].URL
		}
	}
	return ""
}
