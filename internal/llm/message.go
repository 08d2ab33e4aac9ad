// Package llm defines the provider-agnostic request/response types and the
// Engine interface the session runtime's nodes call into, plus three
// concrete provider adapters (Anthropic, OpenAI, Bedrock) in their own
// subpackages. Streaming is deliberately not modeled: every node in the
// staged graph issues one bounded completion per LLM call and consumes the
// full response before proceeding (SSE delivery to a UI is a transport
// concern layered on top of internal/events, not an LLM-call concern).
package llm

// Role identifies the speaker for a message in a transcript.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type (
	// Part is a marker interface implemented by every message content block.
	Part interface{ isPart() }

	// TextPart is plain assistant- or user-visible text.
	TextPart struct {
		Text string
	}

	// ThinkingPart carries provider-issued reasoning content. Callers treat
	// it as opaque and surface it according to UI policy; it never drives
	// graph routing.
	ThinkingPart struct {
		Text      string
		Signature string
	}

	// ToolUsePart declares a tool invocation requested by the assistant.
	ToolUsePart struct {
		ID    string
		Name  string
		Input map[string]any
	}

	// ToolResultPart carries a tool result attached to a user message so the
	// model can read it on the next turn.
	ToolResultPart struct {
		ToolUseID string
		Content   any
		IsError   bool
	}
)

func (TextPart) isPart()       {}
func (ThinkingPart) isPart()   {}
func (ToolUsePart) isPart()    {}
func (ToolResultPart) isPart() {}

// Message is a single ordered transcript entry.
type Message struct {
	Role  Role
	Parts []Part
}

// Text returns the concatenation of every TextPart in the message, for
// callers that only care about plain assistant text.
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if t, ok := p.(TextPart); ok {
			out += t.Text
		}
	}
	return out
}

// ToolUses returns every ToolUsePart in the message, in order.
func (m Message) ToolUses() []ToolUsePart {
	var out []ToolUsePart
	for _, p := range m.Parts {
		if t, ok := p.(ToolUsePart); ok {
			out = append(out, t)
		}
	}
	return out
}
