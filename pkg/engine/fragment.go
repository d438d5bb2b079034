package engine

import "encoding/json"

// FallbackToolResult is displayed when a tool succeeds without output.
const FallbackToolResult = "Tool executed successfully"

// Kind classifies a Fragment.
type Kind int

const (
	KindContent Kind = iota
	KindToolInvocation
	KindToolResult
	KindError
)

// String returns the label used in metrics.
func (k Kind) String() string {
	switch k {
	case KindContent:
		return "content"
	case KindToolInvocation:
		return "tool_invocation"
	case KindToolResult:
		return "tool_result"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Fragment is one unit of a turn's output, in the order it was produced.
type Fragment struct {
	Kind Kind

	// Text is the generated text (KindContent), the tool's display text
	// (KindToolResult) or the error message (KindError).
	Text string

	// CallID links a tool invocation to its result. It is also set on the
	// error fragment that reports a failed tool.
	CallID string

	// ToolName and Arguments describe a KindToolInvocation.
	ToolName  string
	Arguments json.RawMessage
}

// Display returns the text the fragment contributes to the message
// content. Invocations contribute nothing; they travel as tool_calls.
func (f Fragment) Display() string {
	switch f.Kind {
	case KindContent:
		return f.Text
	case KindToolResult:
		return "\n[Tool Result: " + f.Text + "]\n"
	case KindError:
		return "\n[Error: " + f.Text + "]\n"
	default:
		return ""
	}
}

// argumentsString returns the arguments as the JSON string sent on the wire.
func (f Fragment) argumentsString() string {
	if len(f.Arguments) == 0 {
		return "{}"
	}
	return string(f.Arguments)
}
