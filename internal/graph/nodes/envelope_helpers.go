package nodes

import (
	"context"

	"github.com/flowcraft/chatagent/internal/envelope"
	"github.com/flowcraft/chatagent/internal/state"
	"github.com/flowcraft/chatagent/internal/taxonomy"
)

// recordTool wraps raw/err through envelope.Wrap (spec §4.1's single
// transformation point) and appends only the bounded Summary to the
// session transcript; Data/Artifacts never reach messages. It returns the
// wrapped result so callers can still branch on ToolResult.OK, plus a
// taxonomy-classified error when the call failed.
func recordTool(_ context.Context, run *Run, toolName string, raw any, err error) (envelope.ToolResult, error) {
	result := envelope.Wrap(toolName, raw, err)
	run.Session.AppendMessage(state.RoleTool, result.Summary)
	run.Session.RecordDebug(toolName, "last_result", result)
	if !result.OK {
		if err != nil {
			return result, taxonomy.FromError(toolName, err)
		}
		detail := result.Summary
		if result.Error != nil {
			detail = result.Error.Message
		}
		return result, &taxonomy.ValidationError{NodeID: toolName, Detail: detail}
	}
	return result, nil
}
