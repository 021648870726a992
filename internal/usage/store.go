package usage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	lifetimeFile = "usage.json"
	costLogFile  = "cost-log.jsonl"
)

// Lifetime is the persisted shape of usage.json: running totals since
// the profile was created.
type Lifetime struct {
	Turns          int64              `json:"turns"`
	ToolCalls      map[string]int64   `json:"tool_calls"`
	TotalCostUSD   float64            `json:"total_cost_usd"`
	ByModel        map[string]Usage   `json:"by_model"`
	ByModelCostUSD map[string]float64 `json:"by_model_cost_usd"`
}

func newLifetime() *Lifetime {
	return &Lifetime{
		ToolCalls:      map[string]int64{},
		ByModel:        map[string]Usage{},
		ByModelCostUSD: map[string]float64{},
	}
}

// Store persists lifetime usage and a per-turn cost log under a profile
// directory. Loads are tolerant of a missing or corrupt file — lifetime
// usage is then treated as zero, per §4.8.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir (typically a profile directory).
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) lifetimePath() string { return filepath.Join(s.dir, lifetimeFile) }
func (s *Store) costLogPath() string  { return filepath.Join(s.dir, costLogFile) }

// Load reads usage.json. A missing or corrupt file yields a zeroed
// Lifetime rather than an error.
func (s *Store) Load() *Lifetime {
	data, err := os.ReadFile(s.lifetimePath())
	if err != nil {
		return newLifetime()
	}
	lifetime := newLifetime()
	if err := json.Unmarshal(data, lifetime); err != nil {
		return newLifetime()
	}
	if lifetime.ToolCalls == nil {
		lifetime.ToolCalls = map[string]int64{}
	}
	if lifetime.ByModel == nil {
		lifetime.ByModel = map[string]Usage{}
	}
	if lifetime.ByModelCostUSD == nil {
		lifetime.ByModelCostUSD = map[string]float64{}
	}
	return lifetime
}

// Save writes usage.json with full-file-replace semantics.
func (s *Store) Save(lifetime *Lifetime) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(lifetime, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.lifetimePath(), data, 0o644)
}

// RecordTurn updates the lifetime snapshot for one completed turn
// (turn counter, per-model usage and cost) and appends the turn to the
// cost log, then persists both. toolCalls names tools invoked during the
// turn, for the per-tool-call counters.
func (s *Store) RecordTurn(rec Record, toolCalls []string) error {
	lifetime := s.Load()

	lifetime.Turns++
	key := rec.Provider + ":" + rec.Model
	existing := lifetime.ByModel[key]
	existing.Add(&rec.Usage)
	lifetime.ByModel[key] = existing
	lifetime.ByModelCostUSD[key] += rec.Cost
	lifetime.TotalCostUSD += rec.Cost
	for _, name := range toolCalls {
		lifetime.ToolCalls[name]++
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	if err := s.appendCostLog(rec); err != nil {
		return err
	}
	return s.Save(lifetime)
}

func (s *Store) appendCostLog(rec Record) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(s.costLogPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

// RangeSummary is the result of a cost-log range query: an aggregate
// total plus a per-"provider:model" breakdown.
type RangeSummary struct {
	Turns      int64              `json:"turns"`
	TotalCost  float64            `json:"total_cost_usd"`
	ByModel    map[string]Usage   `json:"by_model"`
	ByModelUSD map[string]float64 `json:"by_model_cost_usd"`
}

// Range scans cost-log.jsonl and aggregates every record with a
// timestamp in [since, until]. A zero since/until leaves that bound
// open. Corrupt lines are skipped rather than aborting the scan.
func (s *Store) Range(since, until time.Time) (*RangeSummary, error) {
	f, err := os.Open(s.costLogPath())
	if err != nil {
		if os.IsNotExist(err) {
			return &RangeSummary{ByModel: map[string]Usage{}, ByModelUSD: map[string]float64{}}, nil
		}
		return nil, err
	}
	defer f.Close()

	summary := &RangeSummary{ByModel: map[string]Usage{}, ByModelUSD: map[string]float64{}}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if !since.IsZero() && rec.Timestamp.Before(since) {
			continue
		}
		if !until.IsZero() && rec.Timestamp.After(until) {
			continue
		}
		summary.Turns++
		summary.TotalCost += rec.Cost
		key := rec.Provider + ":" + rec.Model
		u := summary.ByModel[key]
		u.Add(&rec.Usage)
		summary.ByModel[key] = u
		summary.ByModelUSD[key] += rec.Cost
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return summary, nil
}
