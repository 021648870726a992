package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRole_Constants(t *testing.T) {
	tests := []struct {
		constant Role
		expected string
	}{
		{RoleUser, "user"},
		{RoleAssistant, "assistant"},
		{RoleSystem, "system"},
		{RoleTool, "tool"},
	}
	for _, tt := range tests {
		if string(tt.constant) != tt.expected {
			t.Errorf("constant = %q, want %q", tt.constant, tt.expected)
		}
	}
}

func TestMessage_JSONRoundTrip(t *testing.T) {
	msg := Message{
		ID:        "m1",
		SessionID: "s1",
		Role:      RoleAssistant,
		Content:   "hello",
		ToolCalls: []ToolCall{
			{ID: "tc1", Name: "echo_tool", Input: json.RawMessage(`{"text":"x"}`)},
		},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out Message
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ID != msg.ID || out.Role != msg.Role || out.Content != msg.Content {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, msg)
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0].Name != "echo_tool" {
		t.Errorf("tool calls not preserved: %+v", out.ToolCalls)
	}
}

func TestToolResult_OmitsIsErrorWhenFalse(t *testing.T) {
	r := ToolResult{ToolCallID: "tc1", Content: "ok"}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["is_error"]; ok {
		t.Errorf("is_error should be omitted when false, got %v", raw)
	}
}
