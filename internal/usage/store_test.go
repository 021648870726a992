package usage

import (
	"testing"
	"time"
)

func TestStore_LoadMissingFileYieldsZeroLifetime(t *testing.T) {
	s := NewStore(t.TempDir())
	lifetime := s.Load()
	if lifetime.Turns != 0 || lifetime.TotalCostUSD != 0 {
		t.Errorf("expected zero lifetime, got %+v", lifetime)
	}
}

func TestStore_RecordTurn_UpdatesLifetimeAndAppendsCostLog(t *testing.T) {
	s := NewStore(t.TempDir())

	rec := Record{
		Provider: "openai",
		Model:    "gpt-4o",
		Usage:    Usage{InputTokens: 1000, OutputTokens: 500},
		Cost:     0.0075,
	}
	if err := s.RecordTurn(rec, []string{"read_file", "read_file"}); err != nil {
		t.Fatalf("RecordTurn: %v", err)
	}

	lifetime := s.Load()
	if lifetime.Turns != 1 {
		t.Errorf("Turns = %d, want 1", lifetime.Turns)
	}
	if lifetime.TotalCostUSD != 0.0075 {
		t.Errorf("TotalCostUSD = %v, want 0.0075", lifetime.TotalCostUSD)
	}
	if lifetime.ToolCalls["read_file"] != 2 {
		t.Errorf("ToolCalls[read_file] = %d, want 2", lifetime.ToolCalls["read_file"])
	}
	usage := lifetime.ByModel["openai:gpt-4o"]
	if usage.InputTokens != 1000 {
		t.Errorf("ByModel usage = %+v", usage)
	}
}

func TestStore_RecordTurn_AccumulatesAcrossCalls(t *testing.T) {
	s := NewStore(t.TempDir())
	for i := 0; i < 3; i++ {
		if err := s.RecordTurn(Record{Provider: "openai", Model: "gpt-4o", Usage: Usage{InputTokens: 10}, Cost: 0.01}, nil); err != nil {
			t.Fatalf("RecordTurn: %v", err)
		}
	}
	lifetime := s.Load()
	if lifetime.Turns != 3 {
		t.Errorf("Turns = %d, want 3", lifetime.Turns)
	}
	if diff := lifetime.TotalCostUSD - 0.03; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("TotalCostUSD = %v, want 0.03", lifetime.TotalCostUSD)
	}
}

func TestStore_Range_FiltersByTimestampAndAggregates(t *testing.T) {
	s := NewStore(t.TempDir())
	now := time.Now()

	old := Record{Provider: "openai", Model: "gpt-4o", Usage: Usage{InputTokens: 100}, Cost: 0.01, Timestamp: now.Add(-48 * time.Hour)}
	recent := Record{Provider: "openai", Model: "gpt-4o", Usage: Usage{InputTokens: 200}, Cost: 0.02, Timestamp: now}
	if err := s.appendCostLog(old); err != nil {
		t.Fatalf("appendCostLog: %v", err)
	}
	if err := s.appendCostLog(recent); err != nil {
		t.Fatalf("appendCostLog: %v", err)
	}

	summary, err := s.Range(now.Add(-time.Hour), time.Time{})
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if summary.Turns != 1 {
		t.Errorf("Turns = %d, want 1 (only the recent record)", summary.Turns)
	}
	if diff := summary.TotalCost - 0.02; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("TotalCost = %v, want 0.02", summary.TotalCost)
	}
}

func TestStore_Range_MissingFileYieldsEmptySummary(t *testing.T) {
	s := NewStore(t.TempDir())
	summary, err := s.Range(time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if summary.Turns != 0 {
		t.Errorf("expected empty summary, got %+v", summary)
	}
}
