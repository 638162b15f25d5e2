package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/entrhq/browseragent/pkg/agent/tools"
)

const systemPrompt = `You are a browser automation agent. You complete the user's task by driving a real web browser one action at a time.

Every step you receive the current URL, the page title, the list of interactive elements and the visible page text. Elements are listed as [index]<tag attributes>text. Refer to elements only by their index, and only to indices from the latest list: indices change whenever the page changes.

Rules:
- Think inside <thinking></thinking> tags before acting.
- Call exactly one tool per reply. Anything after the first tool call is ignored.
- If an action fails, try a different approach instead of repeating it.
- When the task is complete, or cannot be completed, call the finishing tool with the complete answer.
- Never invent information that is not on the page.`

const toolCallingPrompt = `Call a tool with this XML format:

<tool>
<server_name>local</server_name>
<tool_name>TOOL_NAME</tool_name>
<arguments>
  <param>value</param>
</arguments>
</tool>

Escape &, < and > inside values as &amp;, &lt; and &gt;.`

// PromptBuilder assembles the engine's system prompt.
type PromptBuilder struct {
	task        string
	actions     []tools.Tool
	extension   string
	useVision   bool
	secretNames []string
}

// NewPromptBuilder creates a builder for a task.
func NewPromptBuilder(task string) *PromptBuilder {
	return &PromptBuilder{task: task}
}

// WithActions sets the actions the model may call.
func (pb *PromptBuilder) WithActions(actions []tools.Tool) *PromptBuilder {
	pb.actions = actions
	return pb
}

// WithExtension appends operator-provided instructions.
func (pb *PromptBuilder) WithExtension(text string) *PromptBuilder {
	pb.extension = strings.TrimSpace(text)
	return pb
}

// WithVision tells the model a screenshot accompanies the page state.
func (pb *PromptBuilder) WithVision(enabled bool) *PromptBuilder {
	pb.useVision = enabled
	return pb
}

// WithSecrets lists the placeholder names available to fill actions.
// Only the names are ever shown to the model.
func (pb *PromptBuilder) WithSecrets(secrets map[string]string) *PromptBuilder {
	pb.secretNames = pb.secretNames[:0]
	for k := range secrets {
		pb.secretNames = append(pb.secretNames, k)
	}
	sort.Strings(pb.secretNames)
	return pb
}

// Build returns the system prompt.
func (pb *PromptBuilder) Build() string {
	var b strings.Builder

	b.WriteString(systemPrompt)
	b.WriteString("\n\n")
	if pb.useVision {
		b.WriteString("A screenshot of the visible viewport is attached to every step.\n\n")
	}
	b.WriteString(toolCallingPrompt)
	b.WriteString("\n\n")

	if len(pb.actions) > 0 {
		b.WriteString("<available_tools>\n")
		b.WriteString(FormatToolSchemas(pb.actions))
		b.WriteString("</available_tools>\n\n")
	}

	if len(pb.secretNames) > 0 {
		b.WriteString("<secrets>\nThese secrets can be entered with <secret>NAME</secret> placeholders: ")
		b.WriteString(strings.Join(pb.secretNames, ", "))
		b.WriteString("\n</secrets>\n\n")
	}

	if pb.extension != "" {
		b.WriteString("<custom_instructions>\n")
		b.WriteString(pb.extension)
		b.WriteString("\n</custom_instructions>\n\n")
	}

	b.WriteString("<task>\n")
	b.WriteString(pb.task)
	b.WriteString("\n</task>")
	return b.String()
}

// FormatToolSchemas renders each tool with its description, parameters and
// an XML example.
func FormatToolSchemas(actions []tools.Tool) string {
	var b strings.Builder
	for _, t := range actions {
		fmt.Fprintf(&b, "<tool name=%q>\n", t.Name())
		fmt.Fprintf(&b, "Description: %s\n", t.Description())

		schema := t.Schema()
		props, _ := schema["properties"].(map[string]interface{})
		required := requiredSet(schema)
		if len(props) > 0 {
			b.WriteString("Parameters:\n")
			names := make([]string, 0, len(props))
			for name := range props {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				prop, _ := props[name].(map[string]interface{})
				typ, _ := prop["type"].(string)
				desc, _ := prop["description"].(string)
				req := "optional"
				if required[name] {
					req = "required"
				}
				fmt.Fprintf(&b, "- %s (%s, %s): %s\n", name, typ, req, desc)
			}
		}
		b.WriteString("Example:\n")
		b.WriteString(GenerateXMLExample(schema, t.Name()))
		b.WriteString("\n</tool>\n")
	}
	return b.String()
}

// GenerateXMLExample creates an XML call example from a JSON schema, listing
// the required parameters in name order.
func GenerateXMLExample(schema map[string]interface{}, toolName string) string {
	var b strings.Builder
	b.WriteString("<tool>\n<server_name>local</server_name>\n")
	fmt.Fprintf(&b, "<tool_name>%s</tool_name>\n<arguments>\n", toolName)

	props, _ := schema["properties"].(map[string]interface{})
	required := requiredSet(schema)
	names := make([]string, 0, len(required))
	for name := range required {
		if _, ok := props[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		prop, _ := props[name].(map[string]interface{})
		typ, _ := prop["type"].(string)
		fmt.Fprintf(&b, "  <%s>%s</%s>\n", name, exampleValue(typ), name)
	}

	b.WriteString("</arguments>\n</tool>")
	return b.String()
}

func exampleValue(typ string) string {
	switch typ {
	case "integer":
		return "1"
	case "number":
		return "1.5"
	case "boolean":
		return "true"
	default:
		return "value"
	}
}

func requiredSet(schema map[string]interface{}) map[string]bool {
	out := make(map[string]bool)
	if req, ok := schema["required"].([]string); ok {
		for _, r := range req {
			out[r] = true
		}
	}
	return out
}
