package providers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/torusbreakdown/marvin/internal/agent"
	"github.com/torusbreakdown/marvin/pkg/models"
)

func TestConvertToOpenAIMessages(t *testing.T) {
	tests := []struct {
		name     string
		messages []agent.CompletionMessage
		system   string
		wantLen  int
	}{
		{
			name: "basic text messages",
			messages: []agent.CompletionMessage{
				{Role: "user", Content: "Hello"},
				{Role: "assistant", Content: "Hi there!"},
			},
			system:  "You are a helpful assistant",
			wantLen: 3,
		},
		{
			name: "message with tool calls",
			messages: []agent.CompletionMessage{
				{Role: "user", Content: "What's the weather?"},
				{
					Role: "assistant",
					ToolCalls: []models.ToolCall{
						{ID: "call_123", Name: "get_weather", Input: json.RawMessage(`{"location":"NYC"}`)},
					},
				},
			},
			wantLen: 2,
		},
		{
			name: "message with tool results",
			messages: []agent.CompletionMessage{
				{
					Role: "tool",
					ToolResults: []models.ToolResult{
						{ToolCallID: "call_123", Content: "Sunny, 72F"},
					},
				},
			},
			wantLen: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convertToOpenAIMessages(tt.messages, tt.system)
			if err != nil {
				t.Fatalf("convertToOpenAIMessages() error = %v", err)
			}
			if len(got) != tt.wantLen {
				t.Errorf("convertToOpenAIMessages() got %d messages, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestConvertToOpenAITools(t *testing.T) {
	tools := []agent.ToolDefinition{
		{
			Name:        "test_tool",
			Description: "A test tool",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"arg":{"type":"string"}}}`),
		},
	}

	got := convertToOpenAITools(tools)
	if len(got) != 1 {
		t.Fatalf("convertToOpenAITools() got %d tools, want 1", len(got))
	}
	if got[0].Function.Name != "test_tool" {
		t.Errorf("convertToOpenAITools() name = %v, want test_tool", got[0].Function.Name)
	}
}

func TestOpenAIProvider_Identity(t *testing.T) {
	provider := NewOpenAIProvider("")
	if got := provider.Name(); got != "openai" {
		t.Errorf("Name() = %v, want openai", got)
	}
	if !provider.SupportsTools() {
		t.Error("SupportsTools() = false, want true")
	}
}

func TestOpenAIProvider_ModelsHaveValidContextSizes(t *testing.T) {
	provider := NewOpenAIProvider("")
	for _, m := range provider.Models() {
		if m.ContextSize <= 0 {
			t.Errorf("model %s has invalid context size: %d", m.ID, m.ContextSize)
		}
	}
}

func TestOpenAIProvider_CompleteWithoutAPIKeyFails(t *testing.T) {
	provider := NewOpenAIProvider("")
	req := &agent.CompletionRequest{
		Model:    "gpt-4o-mini",
		Messages: []agent.CompletionMessage{{Role: "user", Content: "Hello"}},
	}
	_, err := provider.Complete(context.Background(), req)
	if err != agent.ErrNoProvider {
		t.Errorf("Complete() error = %v, want ErrNoProvider", err)
	}
}
