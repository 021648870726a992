package agent

import (
	"strings"
	"testing"
)

func TestContextBudget_ClassifiesByThreshold(t *testing.T) {
	budget := NewContextBudget(BudgetThresholds{Warn: 10, Compact: 20, Hard: 30})

	long := strings.Repeat("a", 200) // (4 role + 200 content chars) / 4 = 51 tokens > hard
	status, est := budget.Check([]CompletionMessage{{Role: "user", Content: long}})
	if status != StatusHard {
		t.Errorf("status = %v, want StatusHard (est=%d)", status, est)
	}

	short := []CompletionMessage{{Role: "user", Content: "hi"}}
	status, _ = budget.Check(short)
	if status != StatusOK {
		t.Errorf("status = %v, want StatusOK", status)
	}
}

func TestContextBudget_RecordActualOverridesEstimate(t *testing.T) {
	budget := NewContextBudget(BudgetThresholds{})
	budget.RecordActual(12345)
	if budget.Actual() != 12345 {
		t.Errorf("Actual() = %d, want 12345", budget.Actual())
	}
}

func TestCompact_PreservesSystemAndRecentMessages(t *testing.T) {
	msgs := []CompletionMessage{{Role: "system", Content: "sys"}}
	for i := 0; i < 30; i++ {
		msgs = append(msgs, CompletionMessage{Role: "user", Content: "old message"})
	}
	msgs = append(msgs, CompletionMessage{Role: "user", Content: "recent 1"})
	msgs = append(msgs, CompletionMessage{Role: "user", Content: "recent 2"})

	out := Compact(msgs)

	if out[0].Role != "system" {
		t.Errorf("expected system message preserved first, got %+v", out[0])
	}
	if out[1].Role != "assistant" {
		t.Errorf("expected synthesized summary message second, got %+v", out[1])
	}
	last := out[len(out)-1]
	if last.Content != "recent 2" {
		t.Errorf("last message = %+v, want recent 2 preserved verbatim", last)
	}
}

func TestCompact_NoOpWhenUnderLimit(t *testing.T) {
	msgs := []CompletionMessage{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "hi"},
	}
	out := Compact(msgs)
	if len(out) != len(msgs) {
		t.Errorf("Compact should be a no-op under KeepRecent, got %d messages", len(out))
	}
}
