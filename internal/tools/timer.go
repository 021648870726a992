package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/torusbreakdown/marvin/internal/agent"
	"github.com/torusbreakdown/marvin/internal/timers"
)

// TimerTool exposes the timer registry's create/list/cancel actions to
// the model: one tool, dispatched on an "action" field, the same shape
// the teacher uses for its cron tool.
type TimerTool struct {
	registry *timers.Registry
}

// NewTimerTool returns a timer tool backed by registry.
func NewTimerTool(registry *timers.Registry) *TimerTool {
	return &TimerTool{registry: registry}
}

func (t *TimerTool) Name() string { return "timer" }
func (t *TimerTool) Description() string {
	return "Create, list, or cancel one-shot and recurring timers (list/create/cancel)."
}

func (t *TimerTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "description": "One of: list, create, cancel."},
			"label": {"type": "string", "description": "Human-readable label for create."},
			"after": {"type": "string", "description": "Duration string (e.g. \"10m\") for a one-shot timer."},
			"cron": {"type": "string", "description": "Cron expression for a recurring timer."},
			"id": {"type": "string", "description": "Timer id for cancel."}
		},
		"required": ["action"]
	}`)
}

func (t *TimerTool) Category() agent.ToolCategory { return agent.CategoryAlways }

func (t *TimerTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.registry == nil {
		return &agent.ToolResult{Content: "timer registry unavailable", IsError: true}, nil
	}
	var in struct {
		Action string `json:"action"`
		Label  string `json:"label"`
		After  string `json:"after"`
		Cron   string `json:"cron"`
		ID     string `json:"id"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return agent.ToolArgsError("timer", err.Error()), nil
	}

	action := strings.ToLower(strings.TrimSpace(in.Action))
	switch action {
	case "list":
		return jsonToolResult(map[string]any{"timers": t.registry.List()})
	case "create":
		if strings.TrimSpace(in.After) != "" {
			d, err := time.ParseDuration(in.After)
			if err != nil {
				return agent.ToolArgsError("timer", "invalid after duration: "+err.Error()), nil
			}
			tm, err := t.registry.ScheduleOnce(in.Label, d)
			if err != nil {
				return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
			}
			return jsonToolResult(map[string]any{"status": "created", "timer": tm})
		}
		if strings.TrimSpace(in.Cron) != "" {
			tm, err := t.registry.ScheduleRecurring(in.Label, in.Cron)
			if err != nil {
				return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
			}
			return jsonToolResult(map[string]any{"status": "created", "timer": tm})
		}
		return agent.ToolArgsError("timer", "either after or cron is required"), nil
	case "cancel":
		id := strings.TrimSpace(in.ID)
		if id == "" {
			return agent.ToolArgsError("timer", "id is required"), nil
		}
		if !t.registry.Cancel(id) {
			return &agent.ToolResult{Content: fmt.Sprintf("timer %q not found", id), IsError: true}, nil
		}
		return jsonToolResult(map[string]any{"status": "cancelled", "id": id})
	default:
		return agent.ToolArgsError("timer", fmt.Sprintf("unsupported action %q", in.Action)), nil
	}
}

func jsonToolResult(payload any) (*agent.ToolResult, error) {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("encode result: %s", err), IsError: true}, nil
	}
	return &agent.ToolResult{Content: string(encoded)}, nil
}
