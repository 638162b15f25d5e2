package engine

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/browseragent/pkg/agent/tools"
	"github.com/gobwas/glob"
)

const (
	defaultWaitSeconds = 3
	maxWaitSeconds     = 10
	extractTokenLimit  = 2000

	metaSuccess         = "success"
	metaIncludeInMemory = "include_in_memory"
)

var secretPlaceholder = regexp.MustCompile(`<secret>\s*([A-Za-z0-9_.\-]+)\s*</secret>`)

// pageView tracks the page state the model last saw, so element indices in
// its reply resolve against the same snapshot.
type pageView struct {
	browser Browser

	mu    sync.RWMutex
	state *PageState
}

func (v *pageView) page() (Page, error) {
	p, err := v.browser.CurrentPage()
	if err != nil {
		return nil, fmt.Errorf("no active page: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("no active page")
	}
	return p, nil
}

func (v *pageView) set(state *PageState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state = state
}

func (v *pageView) element(index int) (Element, string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	sel, err := v.state.Selector(index)
	if err != nil {
		return Element{}, "", err
	}
	el, _ := v.state.Element(index)
	return el, sel, nil
}

// defaultActions returns the built-in browser actions bound to a browser.
// Navigation is restricted to hosts matching allowedDomains when it is not
// empty; secrets resolve <secret>KEY</secret> placeholders in fill values.
func defaultActions(view *pageView, allowedDomains []string, secrets map[string]string) ([]tools.Tool, error) {
	allow, err := compileDomains(allowedDomains)
	if err != nil {
		return nil, err
	}
	return []tools.Tool{
		&navigateAction{view: view, allowed: allow},
		&clickAction{view: view},
		&fillAction{view: view, secrets: secrets},
		&extractContentAction{view: view},
		&goBackAction{view: view},
		&waitAction{},
		&doneAction{},
	}, nil
}

func compileDomains(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(strings.ToLower(strings.TrimSpace(p)))
		if err != nil {
			return nil, fmt.Errorf("invalid allowed domain '%s': %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// navigateAction opens a URL in the current tab.
type navigateAction struct {
	view    *pageView
	allowed []glob.Glob
}

type navigateInput struct {
	XMLName xml.Name `xml:"arguments"`
	URL     string   `xml:"url"`
}

func (a *navigateAction) Name() string { return "navigate" }

func (a *navigateAction) Description() string {
	return "Open a URL in the current tab. The URL must include the protocol (https://...)."
}

func (a *navigateAction) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{
		"url": tools.StringProperty("Absolute URL to open"),
	}, []string{"url"})
}

func (a *navigateAction) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input navigateInput
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}
	target := strings.TrimSpace(input.URL)
	if target == "" {
		return "", nil, fmt.Errorf("URL is required")
	}
	if !strings.Contains(target, "://") {
		target = "https://" + target
	}
	if !a.isAllowed(target) {
		return "", nil, fmt.Errorf("navigation to %s is not allowed", target)
	}

	page, err := a.view.page()
	if err != nil {
		return "", nil, err
	}
	if err := page.Goto(target); err != nil {
		return "", nil, fmt.Errorf("navigation failed: %w", err)
	}
	return fmt.Sprintf("🔗 Navigated to %s", page.URL()), nil, nil
}

func (a *navigateAction) isAllowed(target string) bool {
	if len(a.allowed) == 0 {
		return true
	}
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, g := range a.allowed {
		if g.Match(host) {
			return true
		}
	}
	return false
}

func (a *navigateAction) IsLoopBreaking() bool { return false }

// clickAction clicks an element by index.
type clickAction struct {
	view *pageView
}

type indexInput struct {
	XMLName xml.Name `xml:"arguments"`
	Index   *int     `xml:"index"`
}

func (a *clickAction) Name() string { return "click_element" }

func (a *clickAction) Description() string {
	return "Click the interactive element with the given index."
}

func (a *clickAction) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{
		"index": map[string]interface{}{
			"type":        "integer",
			"description": "Index of the element from the interactive elements list",
		},
	}, []string{"index"})
}

func (a *clickAction) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input indexInput
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if input.Index == nil {
		return "", nil, fmt.Errorf("index is required")
	}

	el, sel, err := a.view.element(*input.Index)
	if err != nil {
		return "", nil, err
	}
	page, err := a.view.page()
	if err != nil {
		return "", nil, err
	}
	if err := page.Click(sel); err != nil {
		return "", nil, fmt.Errorf("click failed: %w", err)
	}
	return fmt.Sprintf("🖱️ Clicked element [%d] %s", el.Index, el.Text), nil, nil
}

func (a *clickAction) IsLoopBreaking() bool { return false }

// fillAction types text into an input.
type fillAction struct {
	view    *pageView
	secrets map[string]string
}

type fillInput struct {
	XMLName xml.Name `xml:"arguments"`
	Index   *int     `xml:"index"`
	Text    rawText  `xml:"text"`
}

// rawText keeps nested markup such as <secret>KEY</secret> intact.
type rawText struct {
	Inner string `xml:",innerxml"`
}

func (a *fillAction) Name() string { return "input_text" }

func (a *fillAction) Description() string {
	return "Type text into the input element with the given index. Use <secret>NAME</secret> to enter a stored secret without seeing its value."
}

func (a *fillAction) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{
		"index": map[string]interface{}{
			"type":        "integer",
			"description": "Index of the input element",
		},
		"text": tools.StringProperty("Text to enter"),
	}, []string{"index", "text"})
}

func (a *fillAction) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input fillInput
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if input.Index == nil {
		return "", nil, fmt.Errorf("index is required")
	}

	shown := strings.TrimSpace(input.Text.Inner)
	value, err := a.resolve(shown)
	if err != nil {
		return "", nil, err
	}

	el, sel, err := a.view.element(*input.Index)
	if err != nil {
		return "", nil, err
	}
	page, err := a.view.page()
	if err != nil {
		return "", nil, err
	}
	if err := page.Fill(sel, value); err != nil {
		return "", nil, fmt.Errorf("fill failed: %w", err)
	}
	return fmt.Sprintf("⌨️ Input %s into element [%d]", html.UnescapeString(shown), el.Index), nil, nil
}

// resolve replaces secret placeholders with their values and unescapes XML
// entities in the rest of the text.
func (a *fillAction) resolve(text string) (string, error) {
	var missing []string
	resolved := secretPlaceholder.ReplaceAllStringFunc(text, func(m string) string {
		key := secretPlaceholder.FindStringSubmatch(m)[1]
		if v, ok := a.secrets[key]; ok {
			return v
		}
		missing = append(missing, key)
		return m
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unknown secret(s): %s", strings.Join(missing, ", "))
	}
	return html.UnescapeString(resolved), nil
}

func (a *fillAction) IsLoopBreaking() bool { return false }

// extractContentAction returns the readable text of the page so it lands in
// the model's memory.
type extractContentAction struct {
	view *pageView
}

type extractInput struct {
	XMLName xml.Name `xml:"arguments"`
	Goal    string   `xml:"goal"`
}

func (a *extractContentAction) Name() string { return "extract_content" }

func (a *extractContentAction) Description() string {
	return "Extract the readable text of the current page and keep it in memory. Use it to read information before reporting."
}

func (a *extractContentAction) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{
		"goal": tools.StringProperty("What information you are looking for"),
	}, nil)
}

func (a *extractContentAction) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input extractInput
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}

	page, err := a.view.page()
	if err != nil {
		return "", nil, err
	}
	raw, err := page.Content()
	if err != nil {
		return "", nil, fmt.Errorf("failed to read page content: %w", err)
	}
	state, err := BuildPageState(raw)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("📄 Extracted from page")
	if goal := strings.TrimSpace(input.Goal); goal != "" {
		fmt.Fprintf(&b, " (%s)", goal)
	}
	b.WriteString("\n")
	if state.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", state.Title)
	}
	b.WriteString(TruncateTokens(state.Text, extractTokenLimit))

	return b.String(), map[string]interface{}{metaIncludeInMemory: true}, nil
}

func (a *extractContentAction) IsLoopBreaking() bool { return false }

// goBackAction navigates back in history.
type goBackAction struct {
	view *pageView
}

func (a *goBackAction) Name() string { return "go_back" }

func (a *goBackAction) Description() string { return "Go back to the previous page." }

func (a *goBackAction) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{}, nil)
}

func (a *goBackAction) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	page, err := a.view.page()
	if err != nil {
		return "", nil, err
	}
	if err := page.GoBack(); err != nil {
		return "", nil, fmt.Errorf("go back failed: %w", err)
	}
	return "🔙 Navigated back", nil, nil
}

func (a *goBackAction) IsLoopBreaking() bool { return false }

// waitAction pauses for a few seconds to let a page settle.
type waitAction struct{}

type waitInput struct {
	XMLName xml.Name `xml:"arguments"`
	Seconds *int     `xml:"seconds"`
}

func (a *waitAction) Name() string { return "wait" }

func (a *waitAction) Description() string {
	return fmt.Sprintf("Wait for the page to settle. Default %d seconds, at most %d.", defaultWaitSeconds, maxWaitSeconds)
}

func (a *waitAction) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{
		"seconds": map[string]interface{}{
			"type":        "integer",
			"description": "Seconds to wait",
		},
	}, nil)
}

func (a *waitAction) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input waitInput
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}
	seconds := defaultWaitSeconds
	if input.Seconds != nil {
		seconds = *input.Seconds
	}
	if seconds < 0 {
		seconds = 0
	}
	if seconds > maxWaitSeconds {
		seconds = maxWaitSeconds
	}

	timer := time.NewTimer(time.Duration(seconds) * time.Second)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", nil, ctx.Err()
	case <-timer.C:
	}
	return fmt.Sprintf("🕒 Waited for %d seconds", seconds), nil, nil
}

func (a *waitAction) IsLoopBreaking() bool { return false }

// doneAction ends the task with a final answer.
type doneAction struct{}

type doneInput struct {
	XMLName xml.Name `xml:"arguments"`
	Text    string   `xml:"text"`
	Success *bool    `xml:"success"`
}

func (a *doneAction) Name() string { return "done" }

func (a *doneAction) Description() string {
	return "Finish the task. Put the complete answer in text. Set success to false when the task could not be completed."
}

func (a *doneAction) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{
		"text": tools.StringProperty("Final answer for the user"),
		"success": map[string]interface{}{
			"type":        "boolean",
			"description": "Whether the task was completed",
		},
	}, []string{"text"})
}

func (a *doneAction) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input doneInput
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}
	success := true
	if input.Success != nil {
		success = *input.Success
	}
	return strings.TrimSpace(input.Text), map[string]interface{}{metaSuccess: success}, nil
}

func (a *doneAction) IsLoopBreaking() bool { return true }
