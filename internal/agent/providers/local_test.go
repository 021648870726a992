package providers

import (
	"context"
	"testing"
	"time"

	"github.com/torusbreakdown/marvin/internal/agent"
)

func TestNewOllamaProvider_DefaultsBaseURLAndContextHint(t *testing.T) {
	p := NewOllamaProvider(LocalServerConfig{})
	if p.baseURL != defaultOllamaBaseURL {
		t.Errorf("baseURL = %q, want %q", p.baseURL, defaultOllamaBaseURL)
	}
	opts, ok := p.extraBody["options"].(map[string]any)
	if !ok {
		t.Fatalf("expected options extra body, got %+v", p.extraBody)
	}
	if opts["num_ctx"] != ollamaDefaultContextSize {
		t.Errorf("num_ctx = %v, want %d", opts["num_ctx"], ollamaDefaultContextSize)
	}
}

func TestNewLlamaServerProvider_DefaultsBaseURL(t *testing.T) {
	p := NewLlamaServerProvider(LocalServerConfig{})
	if p.baseURL != defaultLlamaServerBaseURL {
		t.Errorf("baseURL = %q, want %q", p.baseURL, defaultLlamaServerBaseURL)
	}
	if len(p.extraBody) != 0 {
		t.Errorf("expected no extra body for llama-server, got %+v", p.extraBody)
	}
}

func TestLocalServerProvider_ConnectionRefusedYieldsStartHint(t *testing.T) {
	p := NewLlamaServerProvider(LocalServerConfig{
		BaseURL: "http://127.0.0.1:1",
		Timeout: 500 * time.Millisecond,
	})
	req := &agent.CompletionRequest{
		Model:    "local-model",
		Messages: []agent.CompletionMessage{{Role: "user", Content: "hi"}},
	}
	_, err := p.Complete(context.Background(), req)
	if err == nil {
		t.Fatal("expected an error dialing a closed port")
	}
	connErr, ok := err.(*agent.ErrProviderConnect)
	if !ok {
		t.Fatalf("expected *agent.ErrProviderConnect, got %T: %v", err, err)
	}
	if connErr.Hint == "" {
		t.Error("expected a non-empty start hint")
	}
}

func TestLocalServerProvider_RequiresModel(t *testing.T) {
	p := NewLlamaServerProvider(LocalServerConfig{})
	_, err := p.Complete(context.Background(), &agent.CompletionRequest{
		Messages: []agent.CompletionMessage{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected an error when no model is configured or requested")
	}
}
