package agent

import "github.com/torusbreakdown/marvin/pkg/models"

// repairTranscript restores the provider's tool-call/tool-result pairing
// invariant after compaction or history replay may have orphaned either
// side: every tool-role message must reference a tool-call identifier
// that appears in a preceding assistant message, and every assistant
// tool-call identifier must be answered by exactly one following
// tool-role message. Most providers reject the request with a 400 if
// this is not exact, so the loop runs this before every round.
func repairTranscript(messages []CompletionMessage) []CompletionMessage {
	if len(messages) == 0 {
		return messages
	}

	toolCallIDs := make(map[string]bool)
	for _, m := range messages {
		for _, tc := range m.ToolCalls {
			if tc.ID != "" {
				toolCallIDs[tc.ID] = true
			}
		}
	}
	toolResultIDs := make(map[string]bool)
	for _, m := range messages {
		for _, tr := range m.ToolResults {
			if tr.ToolCallID != "" {
				toolResultIDs[tr.ToolCallID] = true
			}
		}
	}

	repaired := make([]CompletionMessage, 0, len(messages))
	for _, m := range messages {
		switch {
		case len(m.ToolCalls) > 0:
			matched := make([]models.ToolCall, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				if tc.ID != "" && toolResultIDs[tc.ID] {
					matched = append(matched, tc)
				}
			}
			next := m
			next.ToolCalls = matched
			repaired = append(repaired, next)
		case len(m.ToolResults) > 0:
			matched := make([]models.ToolResult, 0, len(m.ToolResults))
			for _, tr := range m.ToolResults {
				if tr.ToolCallID != "" && toolCallIDs[tr.ToolCallID] {
					matched = append(matched, tr)
				}
			}
			if len(matched) == 0 {
				continue
			}
			next := m
			next.ToolResults = matched
			repaired = append(repaired, next)
		default:
			repaired = append(repaired, m)
		}
	}

	return repaired
}
