package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/entrhq/browseragent/pkg/supervisor"
)

var (
	salmonPink = lipgloss.Color("#FFB3BA") // Accent for the outcome box
	mintGreen  = lipgloss.Color("#A8E6CF") // Successful outcomes
	errorRed   = lipgloss.Color("203")     // Failed outcomes
	mutedGray  = lipgloss.Color("#6B7280") // Progress lines

	progressStyle = lipgloss.NewStyle().Foreground(mutedGray)
	noticeStyle   = lipgloss.NewStyle().Foreground(salmonPink).Bold(true)
)

// renderer prints progress and outcomes of the browser_agent tool.
type renderer struct {
	mu   sync.Mutex
	w    io.Writer
	last string
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w}
}

// Update prints every new activity line once.
func (r *renderer) Update(p supervisor.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.Short == r.last {
		return
	}
	r.last = p.Short
	fmt.Fprintln(r.w, progressStyle.Render(p.Short))
}

// Outcome prints the final text in a box colored by status.
func (r *renderer) Outcome(text string, meta map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	status, _ := meta["status"].(string)
	border := salmonPink
	switch {
	case meta["error"] != nil, status != "" && status != string(supervisor.StatusDone):
		border = errorRed
	case status == string(supervisor.StatusDone):
		border = mintGreen
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1)

	var content strings.Builder
	if status != "" {
		fmt.Fprintf(&content, "Status: %s\n\n", status)
	}
	content.WriteString(strings.TrimRight(text, "\n"))

	fmt.Fprintln(r.w, "\n"+box.Render(content.String()))
}

// Notice prints a highlighted one-line message.
func (r *renderer) Notice(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, noticeStyle.Render(msg))
}
