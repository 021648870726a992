package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestDeserializeToolArgs_PlainObject(t *testing.T) {
	out, err := DeserializeToolArgs(json.RawMessage(`{"a":1}`))
	if err != nil {
		t.Fatalf("DeserializeToolArgs: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(out, &m); err != nil || m["a"].(float64) != 1 {
		t.Errorf("got %s, want object with a=1", out)
	}
}

func TestDeserializeToolArgs_DoubleStringified(t *testing.T) {
	inner := `{"a":1}`
	stringified, _ := json.Marshal(inner)
	out, err := DeserializeToolArgs(stringified)
	if err != nil {
		t.Fatalf("DeserializeToolArgs: %v", err)
	}
	if string(out) != inner {
		t.Errorf("got %s, want %s", out, inner)
	}
}

func TestDeserializeToolArgs_PatchConvention(t *testing.T) {
	patch := "*** Begin Patch\n*** Update File: foo.go\n..."
	quoted, _ := json.Marshal(patch)
	out, err := DeserializeToolArgs(quoted)
	if err != nil {
		t.Fatalf("DeserializeToolArgs: %v", err)
	}
	var m map[string]string
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["patch"] != patch {
		t.Errorf("patch = %q, want %q", m["patch"], patch)
	}
}

func TestDeserializeToolArgs_InvalidJSON(t *testing.T) {
	_, err := DeserializeToolArgs(json.RawMessage(`not json`))
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestDeserializeToolArgs_ArrayRejected(t *testing.T) {
	_, err := DeserializeToolArgs(json.RawMessage(`[1,2,3]`))
	if err == nil {
		t.Fatal("expected error for non-object top-level value")
	}
}

func TestToolRegistry_ExecuteGatesOnModeAndReturnsToolResultNotError(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(codingOnlyTool{})

	result, err := registry.Execute(context.Background(), ModePolicy{CodingMode: false}, "coding_tool", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute should never return a Go error for gating, got %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "not available") {
		t.Errorf("expected gating error result, got %+v", result)
	}

	result, err = registry.Execute(context.Background(), ModePolicy{CodingMode: true}, "coding_tool", json.RawMessage(`{}`))
	if err != nil || result.IsError {
		t.Errorf("expected success when coding mode enabled, got result=%+v err=%v", result, err)
	}
}

func TestToolRegistry_ExecuteUnknownTool(t *testing.T) {
	registry := NewToolRegistry()
	result, err := registry.Execute(context.Background(), ModePolicy{}, "nope", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Errorf("expected error result for unknown tool, got %+v", result)
	}
}
