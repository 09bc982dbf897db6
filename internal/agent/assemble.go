package agent

import (
	"encoding/json"

	"github.com/parleyhq/parley/internal/llm"
	"github.com/parleyhq/parley/internal/store"
)

// ToModelMessages reconstructs the role-tagged message sequence the
// completion service consumes from stored chat rows. It is pure: the
// same rows always produce the same sequence.
//
// Tool rows carry their correlation id and tool name. Assistant rows
// with parseable, non-empty tool_calls carry them as structured calls;
// when the stored text is absent or unparseable the row degrades to a
// content-only message. Degrading silently is deliberate: a corrupt
// tool_calls column must never make the whole conversation unreadable.
func ToModelMessages(rows []store.Message) []llm.Message {
	out := make([]llm.Message, 0, len(rows))
	for _, row := range rows {
		switch row.Role {
		case store.RoleTool:
			out = append(out, llm.Message{
				Role:       store.RoleTool,
				ToolCallID: row.ToolCallID,
				Name:       row.ToolName,
				Content:    row.Content,
			})
		case store.RoleAssistant:
			m := llm.Message{Role: store.RoleAssistant, Content: row.Content}
			if calls, ok := parseToolCalls(row.ToolCalls); ok {
				m.ToolCalls = calls
			}
			out = append(out, m)
		default:
			out = append(out, llm.Message{Role: row.Role, Content: row.Content})
		}
	}
	return out
}

// parseToolCalls decodes a stored tool_calls column. The boolean result
// makes the degrade path explicit: false means the text was empty,
// malformed, or decoded to nothing usable.
func parseToolCalls(text string) ([]llm.ToolCall, bool) {
	if text == "" {
		return nil, false
	}

	var calls []llm.ToolCall
	if err := json.Unmarshal([]byte(text), &calls); err != nil {
		return nil, false
	}
	if len(calls) == 0 {
		return nil, false
	}
	return calls, true
}
