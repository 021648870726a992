package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/torusbreakdown/marvin/pkg/models"
)

type slowTool struct{ delay time.Duration }

func (s slowTool) Name() string            { return "slow_tool" }
func (s slowTool) Description() string     { return "sleeps before returning" }
func (s slowTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (s slowTool) Category() ToolCategory  { return CategoryAlways }
func (s slowTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	select {
	case <-time.After(s.delay):
		return &ToolResult{Content: "done"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestToolExecutor_PreservesCallOrderNotCompletionOrder(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(slowTool{delay: 30 * time.Millisecond})
	registry.Register(echoTool{})

	exec := NewToolExecutor(registry, DefaultToolExecConfig())
	calls := []models.ToolCall{
		{ID: "slow", Name: "slow_tool", Input: json.RawMessage(`{}`)},
		{ID: "fast", Name: "echo_tool", Input: json.RawMessage(`{"text":"hi"}`)},
	}

	results := exec.ExecuteConcurrently(context.Background(), ModePolicy{}, calls)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ToolCallID != "slow" || results[1].ToolCallID != "fast" {
		t.Errorf("results out of order: %+v", results)
	}
	if results[1].Content != "Echo: hi" {
		t.Errorf("fast result = %+v", results[1])
	}
}

func TestToolExecutor_TimesOutSlowTool(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(slowTool{delay: 50 * time.Millisecond})

	exec := NewToolExecutor(registry, ToolExecConfig{Concurrency: 2, PerToolTimeout: 10 * time.Millisecond})
	results := exec.ExecuteConcurrently(context.Background(), ModePolicy{}, []models.ToolCall{
		{ID: "t1", Name: "slow_tool", Input: json.RawMessage(`{}`)},
	})
	if !results[0].IsError {
		t.Errorf("expected timeout to produce an error result, got %+v", results[0])
	}
}
