package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/torusbreakdown/marvin/internal/agent"
)

// scriptedProvider is a minimal LLMProvider test double returning one
// canned text response per call, optionally sleeping first so tests can
// exercise the busy-flag guard.
type scriptedProvider struct {
	mu    sync.Mutex
	text  string
	sleep time.Duration
	calls int
}

func (p *scriptedProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	if p.sleep > 0 {
		select {
		case <-time.After(p.sleep):
		case <-ctx.Done():
			ch := make(chan *agent.CompletionChunk, 1)
			ch <- &agent.CompletionChunk{Error: ctx.Err(), Done: true}
			close(ch)
			return ch, nil
		}
	}

	ch := make(chan *agent.CompletionChunk, 2)
	ch <- &agent.CompletionChunk{Text: p.text}
	ch <- &agent.CompletionChunk{Done: true, InputTokens: 10, OutputTokens: 5}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) Name() string          { return "fake" }
func (p *scriptedProvider) Models() []agent.Model { return nil }
func (p *scriptedProvider) SupportsTools() bool   { return true }
func (p *scriptedProvider) Destroy()              {}

func TestManager_Submit_SingleTurn(t *testing.T) {
	provider := &scriptedProvider{text: "Hi there"}
	m := NewManager(Config{Provider: provider})

	result, err := m.Submit(context.Background(), "Hello", agent.LoopCallbacks{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Message.Content != "Hi there" {
		t.Errorf("content = %q, want %q", result.Message.Content, "Hi there")
	}
	if len(m.History()) != 2 {
		t.Errorf("history length = %d, want 2", len(m.History()))
	}
}

func TestManager_Submit_ConcurrentSubmitRejectedWithBusy(t *testing.T) {
	provider := &scriptedProvider{text: "ok", sleep: 100 * time.Millisecond}
	m := NewManager(Config{Provider: provider})

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := m.Submit(context.Background(), "first", agent.LoopCallbacks{})
		done <- err
	}()
	<-started
	time.Sleep(10 * time.Millisecond)

	_, err := m.Submit(context.Background(), "second", agent.LoopCallbacks{})
	if err != agent.ErrBusy {
		t.Errorf("expected ErrBusy on concurrent submit, got %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
}

func TestManager_Submit_SucceedsAgainAfterPriorCompletes(t *testing.T) {
	provider := &scriptedProvider{text: "ok"}
	m := NewManager(Config{Provider: provider})

	if _, err := m.Submit(context.Background(), "first", agent.LoopCallbacks{}); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if _, err := m.Submit(context.Background(), "second", agent.LoopCallbacks{}); err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if len(m.History()) != 4 {
		t.Errorf("history length = %d, want 4", len(m.History()))
	}
}

func TestManager_SwitchProvider_RetainsHistory(t *testing.T) {
	first := &scriptedProvider{text: "first reply"}
	m := NewManager(Config{Provider: first})
	if _, err := m.Submit(context.Background(), "hello", agent.LoopCallbacks{}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	second := &scriptedProvider{text: "second reply"}
	m.SwitchProvider(second)

	if _, err := m.Submit(context.Background(), "again", agent.LoopCallbacks{}); err != nil {
		t.Fatalf("Submit after switch: %v", err)
	}
	if len(m.History()) != 4 {
		t.Errorf("history length = %d, want 4 across the provider switch", len(m.History()))
	}
	if second.calls != 1 {
		t.Errorf("new provider calls = %d, want 1", second.calls)
	}
}
