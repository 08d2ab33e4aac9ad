package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageTextConcatenatesTextParts(t *testing.T) {
	m := Message{Parts: []Part{
		TextPart{Text: "hello "},
		ToolUsePart{Name: "search"},
		TextPart{Text: "world"},
	}}
	assert.Equal(t, "hello world", m.Text())
}

func TestMessageToolUsesFiltersNonToolParts(t *testing.T) {
	m := Message{Parts: []Part{
		TextPart{Text: "thinking..."},
		ToolUsePart{ID: "1", Name: "a"},
		ToolUsePart{ID: "2", Name: "b"},
	}}
	uses := m.ToolUses()
	assert.Len(t, uses, 2)
	assert.Equal(t, "a", uses[0].Name)
	assert.Equal(t, "b", uses[1].Name)
}
