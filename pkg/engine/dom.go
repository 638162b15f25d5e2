package engine

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

const maxElementText = 100

// Element is an interactive element the model can target by index.
type Element struct {
	Index int
	Tag   string
	XPath string
	Attrs map[string]string
	Text  string
}

// PageState is the model-facing view of a page.
type PageState struct {
	URL         string
	Title       string
	Description string
	Elements    []Element
	Text        string
}

// BuildPageState parses raw HTML and collects the interactive elements and
// the readable text. Scripts, styles and embedded documents are skipped.
func BuildPageState(rawHTML string) (*PageState, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	state := &PageState{
		Title:       extractTitle(doc),
		Description: extractMetaDescription(doc),
	}

	var text strings.Builder
	walkNode(doc, "", state, &text)
	state.Text = collapseBlankLines(text.String())
	return state, nil
}

// Element returns the element with the given index.
func (s *PageState) Element(index int) (Element, bool) {
	if s == nil || index < 0 || index >= len(s.Elements) {
		return Element{}, false
	}
	return s.Elements[index], true
}

// Selector returns the playwright selector for an element index.
func (s *PageState) Selector(index int) (string, error) {
	el, ok := s.Element(index)
	if !ok {
		return "", fmt.Errorf("element with index %d does not exist", index)
	}
	return "xpath=" + el.XPath, nil
}

// Render formats the state for the model, keeping the page text within
// maxTokens. Elements are never truncated.
func (s *PageState) Render(maxTokens int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current URL: %s\n", s.URL)
	if s.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", s.Title)
	}
	if s.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", s.Description)
	}

	b.WriteString("\nInteractive elements:\n")
	if len(s.Elements) == 0 {
		b.WriteString("(none)\n")
	}
	for _, el := range s.Elements {
		b.WriteString(el.String())
		b.WriteString("\n")
	}

	if s.Text != "" {
		b.WriteString("\nPage text:\n")
		b.WriteString(TruncateTokens(s.Text, maxTokens))
		b.WriteString("\n")
	}
	return b.String()
}

// String renders the element as [index]<tag attrs>text.
func (e Element) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d]<%s", e.Index, e.Tag)
	for _, key := range renderedAttrs {
		if v, ok := e.Attrs[key]; ok && v != "" {
			fmt.Fprintf(&b, ` %s="%s"`, key, v)
		}
	}
	b.WriteString(">")
	b.WriteString(e.Text)
	return b.String()
}

var renderedAttrs = []string{"type", "name", "placeholder", "aria-label", "role", "href", "value", "title"}

func walkNode(n *html.Node, parentPath string, state *PageState, text *strings.Builder) {
	switch n.Type {
	case html.CommentNode:
		return
	case html.TextNode:
		if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
			text.WriteString(t)
			text.WriteString(" ")
		}
		return
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if isSkippedElement(tag) {
			return
		}
		path := parentPath + "/" + tag + fmt.Sprintf("[%d]", siblingPosition(n))

		if isInteractive(n, tag) {
			state.Elements = append(state.Elements, Element{
				Index: len(state.Elements),
				Tag:   tag,
				XPath: path,
				Attrs: elementAttrs(n),
				Text:  truncateRunes(nodeText(n), maxElementText),
			})
		}

		block := isBlockElement(tag)
		if block {
			text.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walkNode(c, path, state, text)
		}
		if block {
			text.WriteString("\n")
		}
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkNode(c, parentPath, state, text)
	}
}

// siblingPosition is the 1-based XPath position of n among same-tag siblings.
func siblingPosition(n *html.Node) int {
	pos := 1
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode && s.Data == n.Data {
			pos++
		}
	}
	return pos
}

func isInteractive(n *html.Node, tag string) bool {
	switch tag {
	case "button", "select", "textarea", "summary":
		return true
	case "a":
		return hasAttr(n, "href")
	case "input":
		return !strings.EqualFold(attr(n, "type"), "hidden")
	}
	switch strings.ToLower(attr(n, "role")) {
	case "button", "link", "checkbox", "radio", "tab", "menuitem", "option", "switch", "textbox", "combobox":
		return true
	}
	return hasAttr(n, "onclick") || attr(n, "contenteditable") == "true"
}

func elementAttrs(n *html.Node) map[string]string {
	out := make(map[string]string)
	for _, a := range n.Attr {
		key := strings.ToLower(a.Key)
		for _, keep := range renderedAttrs {
			if key == keep {
				out[key] = truncateRunes(strings.TrimSpace(a.Val), maxElementText)
			}
		}
	}
	return out
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteString(" ")
			return
		}
		if c.Type == html.ElementNode && isSkippedElement(strings.ToLower(c.Data)) {
			return
		}
		for cc := c.FirstChild; cc != nil; cc = cc.NextSibling {
			walk(cc)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func isSkippedElement(tag string) bool {
	switch tag {
	case "script", "style", "noscript", "iframe", "embed", "object", "svg", "template", "head":
		return true
	}
	return false
}

func isBlockElement(tag string) bool {
	switch tag {
	case "div", "p", "section", "article", "header", "footer", "nav", "main", "aside",
		"h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "li", "table", "tr",
		"form", "fieldset", "blockquote", "pre", "br":
		return true
	}
	return false
}

func extractTitle(doc *html.Node) string {
	var title string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		}
		for c := n.FirstChild; c != nil && title == ""; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return title
}

func extractMetaDescription(doc *html.Node) string {
	var description string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "meta" && attr(n, "name") == "description" {
			description = strings.TrimSpace(attr(n, "content"))
			return
		}
		for c := n.FirstChild; c != nil && description == ""; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return description
}
