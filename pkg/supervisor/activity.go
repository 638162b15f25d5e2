package supervisor

import (
	"strings"

	"github.com/entrhq/browseragent/pkg/engine"
)

const (
	logStarting     = "🚦 Starting task"
	logDone         = "✅ Done"
	maxActivityLine = 200
)

// Summarize renders the short activity log of a run: a start line, then one
// line per action result. A nil history yields the start line only.
func Summarize(h *engine.History) []string {
	lines := []string{logStarting}
	if h == nil {
		return lines
	}
	for _, r := range h.ActionResults() {
		if r.IsDone {
			if r.Success {
				lines = append(lines, logDone)
				continue
			}
			lines = append(lines, "❌ Error: "+firstNonEmpty(r.Error, r.ExtractedContent, "Unknown error"))
			continue
		}
		if r.ExtractedContent == "" {
			continue
		}
		first, _, _ := strings.Cut(r.ExtractedContent, "\n")
		lines = append(lines, truncateRunes(first, maxActivityLine))
	}
	return lines
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
