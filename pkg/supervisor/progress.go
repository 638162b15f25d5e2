package supervisor

import (
	"strings"
)

const maxShortProgress = 50

// Progress is one update of a running task.
type Progress struct {
	// Log is the masked activity log, one entry per line.
	Log string
	// Short is the one-line status, "Browser: <last line>".
	Short string
	// Screenshot references the latest screenshot as img://<path>&t=<unix>.
	Screenshot string
}

// ProgressReporter receives progress updates.
type ProgressReporter interface {
	Update(p Progress)
}

// ReporterFunc adapts a function to ProgressReporter.
type ReporterFunc func(p Progress)

// Update calls f.
func (f ReporterFunc) Update(p Progress) { f(p) }

type discardReporter struct{}

func (discardReporter) Update(Progress) {}

func newProgress(lines []string, screenshot string, mask func(string) string) Progress {
	text := mask(strings.Join(lines, "\n"))
	return Progress{Log: text, Short: shortProgress(text), Screenshot: screenshot}
}

func shortProgress(text string) string {
	short := text
	if i := strings.LastIndex(text, "\n"); i >= 0 {
		short = text[i+1:]
	}
	if r := []rune(short); len(r) > maxShortProgress {
		short = string(r[:maxShortProgress]) + "..."
	}
	return "Browser: " + short
}

// ScreenshotPath extracts the file path from an img:// reference.
func ScreenshotPath(ref string) string {
	if ref == "" {
		return ""
	}
	if _, rest, ok := strings.Cut(ref, "//"); ok {
		ref = rest
	}
	path, _, _ := strings.Cut(ref, "&")
	return path
}
