package nodes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowcraft/chatagent/internal/llm"
	"github.com/flowcraft/chatagent/internal/state"
	"github.com/flowcraft/chatagent/internal/toolregistry"
)

// structuredCall issues one bounded completion that must answer by calling
// the single tool named responseTool (spec §4.5 nodes whose "sole output"
// is a typed structure: classify_intent, plan, compile_patch_ir, evaluate
// in LLM-driven mode). It records token usage against phase's budget,
// appends a compact tool-visible transcript entry, and decodes the
// model's tool-call input into dest. modelClass selects which model tier
// answers the call — llm.ModelClassSmall for spec §4.5's "LLM-lite" nodes
// (define_patch_scope), llm.ModelClassDefault for the rest.
func structuredCall(ctx context.Context, run *Run, phase toolregistry.Phase, modelClass llm.ModelClass, systemPrompt, userContent, responseTool, toolDescription string, schema json.RawMessage, dest any) error {
	g := run.Graph
	model := g.deps.Models.Model(modelClass)

	req := llm.Request{
		Model: model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Parts: []llm.Part{llm.TextPart{Text: systemPrompt}}},
			{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart{Text: userContent}}},
		},
		Tools: []llm.ToolDefinition{
			{Name: responseTool, Description: toolDescription, InputSchema: schemaToAny(schema)},
		},
		ToolChoice: &llm.ToolChoice{Mode: llm.ToolChoiceAny},
	}

	resp, err := g.deps.LLM.Complete(ctx, req)
	if err != nil {
		return fmt.Errorf("nodes: %s completion failed: %w", responseTool, err)
	}

	run.Budget.RecordPhaseTokens(phase, resp.Usage.InputTokens, resp.Usage.OutputTokens)

	for _, tu := range resp.Message.ToolUses() {
		if tu.Name != responseTool {
			continue
		}
		b, err := json.Marshal(tu.Input)
		if err != nil {
			return fmt.Errorf("nodes: re-encoding %s args: %w", responseTool, err)
		}
		if err := json.Unmarshal(b, dest); err != nil {
			return fmt.Errorf("nodes: decoding %s args: %w", responseTool, err)
		}
		run.Session.AppendMessage(state.RoleAssistant, truncateForTranscript(resp.Message.Text(), responseTool))
		return nil
	}
	return fmt.Errorf("nodes: model did not call %s", responseTool)
}

// maxToolTurns bounds agenticStructuredCall's tool-use loop (spec §4.2:
// tools are offered per phase, but a node must still terminate in bounded
// turns rather than let the model loop indefinitely).
const maxToolTurns = 6

// agenticStructuredCall is structuredCall's multi-turn sibling: it offers
// the model every tool the registry exposes for phase alongside the node's
// forced final-answer tool, with ToolChoiceAuto rather than ToolChoiceAny,
// so the model may call zero or more registry tools (plan's template/
// pattern lookups, compile_patch_ir's credential/node-schema lookups)
// across several turns before it must call responseTool to report its
// result. Each registry tool call is executed and wrapped through
// envelope.Wrap exactly as recordTool does for direct platform/capability
// calls, so the model sees the same normalized envelope either way.
func agenticStructuredCall(ctx context.Context, run *Run, phase toolregistry.Phase, systemPrompt, userContent, responseTool, toolDescription string, schema json.RawMessage, dest any) error {
	g := run.Graph
	model := g.deps.Models.Model(llm.ModelClassDefault)

	tools := registryToolDefs(g.deps.Tools, phase)
	tools = append(tools, llm.ToolDefinition{Name: responseTool, Description: toolDescription, InputSchema: schemaToAny(schema)})

	messages := []llm.Message{
		{Role: llm.RoleSystem, Parts: []llm.Part{llm.TextPart{Text: systemPrompt}}},
		{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart{Text: userContent}}},
	}

	for turn := 0; turn < maxToolTurns; turn++ {
		req := llm.Request{
			Model:      model,
			Messages:   messages,
			Tools:      tools,
			ToolChoice: &llm.ToolChoice{Mode: llm.ToolChoiceAuto},
		}

		resp, err := g.deps.LLM.Complete(ctx, req)
		if err != nil {
			return fmt.Errorf("nodes: %s completion failed: %w", responseTool, err)
		}
		run.Budget.RecordPhaseTokens(phase, resp.Usage.InputTokens, resp.Usage.OutputTokens)
		messages = append(messages, resp.Message)

		uses := resp.Message.ToolUses()
		if len(uses) == 0 {
			messages = append(messages, llm.Message{Role: llm.RoleUser, Parts: []llm.Part{
				llm.TextPart{Text: fmt.Sprintf("Call %s to report your result.", responseTool)},
			}})
			continue
		}

		var resultParts []llm.Part
		for _, tu := range uses {
			if tu.Name == responseTool {
				b, err := json.Marshal(tu.Input)
				if err != nil {
					return fmt.Errorf("nodes: re-encoding %s args: %w", responseTool, err)
				}
				if err := json.Unmarshal(b, dest); err != nil {
					return fmt.Errorf("nodes: decoding %s args: %w", responseTool, err)
				}
				run.Session.AppendMessage(state.RoleAssistant, truncateForTranscript(resp.Message.Text(), responseTool))
				return nil
			}

			result := g.deps.Tools.Call(ctx, tu.Name, tu.Input)
			run.Session.AppendMessage(state.RoleTool, result.Summary)
			run.Session.RecordDebug(tu.Name, "last_result", result)
			resultParts = append(resultParts, llm.ToolResultPart{ToolUseID: tu.ID, Content: result.Summary, IsError: !result.OK})
		}
		messages = append(messages, llm.Message{Role: llm.RoleUser, Parts: resultParts})
	}
	return fmt.Errorf("nodes: %s: exceeded %d tool-use turns without a final answer", responseTool, maxToolTurns)
}

// registryToolDefs adapts the registry's phase-scoped ToolDefs into the
// llm package's provider-facing ToolDefinition shape.
func registryToolDefs(reg *toolregistry.Registry, phase toolregistry.Phase) []llm.ToolDefinition {
	if reg == nil {
		return nil
	}
	defs := reg.ToolDefs(phase)
	out := make([]llm.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, llm.ToolDefinition{Name: d.Name, Description: d.Description, InputSchema: schemaToAny(d.ParamsSchema)})
	}
	return out
}

func truncateForTranscript(text, fallback string) string {
	if text == "" {
		return fmt.Sprintf("[%s]", fallback)
	}
	if len(text) > state.MaxMessageChars {
		return text[:state.MaxMessageChars]
	}
	return text
}

func schemaToAny(schema json.RawMessage) any {
	if len(schema) == 0 {
		return nil
	}
	var v any
	_ = json.Unmarshal(schema, &v)
	return v
}
