// Package parser separates model reasoning from the actionable part of a reply.
package parser

import (
	"strings"
)

const (
	thinkingOpen  = "<thinking>"
	thinkingClose = "</thinking>"
)

// Reply is a model response split into reasoning and message content.
type Reply struct {
	Thinking string
	Message  string
}

// SplitThinking removes every <thinking>...</thinking> block from content and
// returns the reasoning and the remaining message separately. An unterminated
// block runs to the end of the content. Angle brackets inside a block do not
// end it; only the exact closing tag does.
func SplitThinking(content string) Reply {
	var thinking, message strings.Builder

	rest := content
	for {
		start := strings.Index(rest, thinkingOpen)
		if start < 0 {
			message.WriteString(rest)
			break
		}
		message.WriteString(rest[:start])
		rest = rest[start+len(thinkingOpen):]

		end := strings.Index(rest, thinkingClose)
		if end < 0 {
			appendBlock(&thinking, rest)
			break
		}
		appendBlock(&thinking, rest[:end])
		rest = rest[end+len(thinkingClose):]
	}

	return Reply{
		Thinking: strings.TrimSpace(thinking.String()),
		Message:  strings.TrimSpace(message.String()),
	}
}

func appendBlock(b *strings.Builder, block string) {
	block = strings.TrimSpace(block)
	if block == "" {
		return
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(block)
}
