// Package session owns the single driver task per conversation: the
// busy-flag single-flight guard around Submit, provider switching,
// system-prompt assembly, chat-log and usage-tracker recording. It is
// the orchestration layer sitting above internal/agent's stateless tool
// loop.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/torusbreakdown/marvin/internal/agent"
	"github.com/torusbreakdown/marvin/internal/observability"
	"github.com/torusbreakdown/marvin/internal/profile"
	"github.com/torusbreakdown/marvin/internal/usage"
	"github.com/torusbreakdown/marvin/pkg/models"
)

// Config wires a Manager to its provider, tool registry, and
// persistence. Registry and Thresholds fall back to agent defaults when
// left zero.
type Config struct {
	Provider     agent.LLMProvider
	Registry     *agent.ToolRegistry
	Thresholds   agent.BudgetThresholds
	LoopConfig   *agent.LoopConfig
	ProfileStore *profile.Store
	UsageStore   *usage.Store
	Tracker      *usage.Tracker
	Model        string
	CodingMode   bool
	DesignFirst  bool

	// Logger receives structured submit-lifecycle events. Defaults to
	// slog.Default() when nil.
	Logger *slog.Logger

	// Metrics, when set, is recorded into the agentic loop and its tool
	// executor so Submit calls show up as Prometheus observations.
	Metrics *observability.Metrics
}

// Manager is the single driver of one conversation. All state mutation
// happens from within Submit; the busy flag enforces that only one
// submit is in flight at a time, per §5 — a second submit rejects
// immediately rather than queuing behind the first.
type Manager struct {
	mu       sync.Mutex
	busy     bool
	cancel   context.CancelFunc
	provider agent.LLMProvider
	registry *agent.ToolRegistry
	loop     *agent.AgenticLoop
	budget   *agent.ContextBudget
	mode        agent.ModePolicy
	designFirst bool
	model       string

	profileStore *profile.Store
	usageStore   *usage.Store
	tracker      *usage.Tracker
	logger       *slog.Logger
	metrics      *observability.Metrics

	messages []agent.CompletionMessage
	turns    int
}

// NewManager builds a Manager ready to accept Submit calls.
func NewManager(cfg Config) *Manager {
	registry := cfg.Registry
	if registry == nil {
		registry = agent.NewToolRegistry()
	}
	thresholds := cfg.Thresholds
	if thresholds == (agent.BudgetThresholds{}) {
		thresholds = agent.DefaultBudgetThresholds()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	loopConfig := cfg.LoopConfig
	if cfg.Metrics != nil {
		if loopConfig == nil {
			loopConfig = agent.DefaultLoopConfig()
		}
		lc := *loopConfig
		lc.Metrics = cfg.Metrics
		lc.ExecConfig.Metrics = cfg.Metrics
		loopConfig = &lc
	}

	return &Manager{
		provider:     cfg.Provider,
		registry:     registry,
		loop:         agent.NewAgenticLoop(cfg.Provider, registry, loopConfig),
		budget:       agent.NewContextBudget(thresholds),
		mode:         agent.ModePolicy{CodingMode: cfg.CodingMode},
		designFirst:  cfg.DesignFirst,
		model:        cfg.Model,
		profileStore: cfg.ProfileStore,
		usageStore:   cfg.UsageStore,
		tracker:      cfg.Tracker,
		logger:       logger,
		metrics:      cfg.Metrics,
	}
}

// SubmitResult is what Submit returns on success.
type SubmitResult struct {
	Message      agent.CompletionMessage
	InputTokens  int
	OutputTokens int
	Rounds       int
}

// Submit runs one turn: builds the system prompt from the profile, sends
// the prompt through the tool loop, and on success records usage and
// appends two chat-log entries (user, assistant). It returns ErrBusy
// immediately — without touching any session state — if a submit is
// already in flight.
//
// Structural errors (ErrBusy, ErrCancelled, ErrNoProvider,
// ErrContextExceeded, provider failures) propagate to the caller per
// §7's policy; tool-level errors never reach here; the loop already
// folded them into tool-result messages.
func (m *Manager) Submit(ctx context.Context, prompt string, cb agent.LoopCallbacks) (*SubmitResult, error) {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		m.logger.Warn("submit rejected: busy")
		return nil, agent.ErrBusy
	}
	m.busy = true
	turnCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SessionStarted()
	}
	start := time.Now()

	defer func() {
		m.mu.Lock()
		m.busy = false
		m.cancel = nil
		m.mu.Unlock()
		cancel()
		if m.metrics != nil {
			m.metrics.SessionEnded(time.Since(start).Seconds())
		}
	}()

	system := m.buildSystemPrompt()

	m.mu.Lock()
	history := append([]agent.CompletionMessage(nil), m.messages...)
	model := m.model
	m.mu.Unlock()

	msgs := agent.BuildInitialMessages(system, history, prompt)

	result, err := m.loop.Run(turnCtx, msgs, m.mode, m.budget, model, cb)
	if err != nil {
		m.logger.Error("submit failed", "error", err, "model", model)
		return nil, err
	}
	m.logger.Info("submit completed", "model", model, "rounds", result.Rounds, "input_tokens", result.InputTokens, "output_tokens", result.OutputTokens)

	m.mu.Lock()
	m.messages = result.Messages
	m.turns++
	m.budget.RecordActual(result.InputTokens)
	m.mu.Unlock()

	m.recordTurn(prompt, result)

	return &SubmitResult{
		Message:      result.Message,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
		Rounds:       result.Rounds,
	}, nil
}

// Cancel aborts an in-flight Submit, if any. A no-op otherwise.
func (m *Manager) Cancel() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// SwitchProvider destroys the current provider and installs a new one.
// Message history and usage accounting are retained; the new provider's
// identifiers are used for subsequent cost lookups.
func (m *Manager) SwitchProvider(p agent.LLMProvider) {
	m.mu.Lock()
	old := m.provider
	m.provider = p
	m.loop = agent.NewAgenticLoop(p, m.registry, nil)
	m.mu.Unlock()
	if old != nil {
		old.Destroy()
	}
}

// SetModel changes the model identifier used for subsequent submits.
func (m *Manager) SetModel(model string) {
	m.mu.Lock()
	m.model = model
	m.mu.Unlock()
}

// History returns a copy of the conversation so far.
func (m *Manager) History() []agent.CompletionMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]agent.CompletionMessage(nil), m.messages...)
}

func (m *Manager) buildSystemPrompt() string {
	if m.profileStore == nil {
		return agent.BuildSystemPrompt(agent.SystemPromptArgs{CodingMode: m.mode.CodingMode, DesignFirst: m.designFirst})
	}
	return agent.BuildSystemPrompt(agent.SystemPromptArgs{
		ProfileName:   m.profileStore.Name,
		Preferences:   m.profileStore.LoadPreferences(),
		SavedPlaces:   m.profileStore.LoadSavedPlaces(),
		CodingMode:    m.mode.CodingMode,
		DesignFirst:   m.designFirst,
		RecentChatLog: m.profileStore.RecentChatLog(20),
	})
}

func (m *Manager) recordTurn(prompt string, result *agent.LoopResult) {
	if m.profileStore != nil {
		now := time.Now()
		_ = m.profileStore.AppendChatLog(profile.ChatLogEntry{Role: models.RoleUser, Content: prompt, Timestamp: now})
		_ = m.profileStore.AppendChatLog(profile.ChatLogEntry{Role: models.RoleAssistant, Content: result.Message.Content, Timestamp: now})
	}

	providerName := ""
	if m.provider != nil {
		providerName = m.provider.Name()
	}
	rate := usage.ResolveModelCost(providerName, m.model)
	turnUsage := usage.Usage{InputTokens: int64(result.InputTokens), OutputTokens: int64(result.OutputTokens)}
	rec := usage.Record{
		Provider: providerName,
		Model:    m.model,
		Usage:    turnUsage,
		Cost:     rate.Estimate(&turnUsage),
	}
	if m.tracker != nil {
		m.tracker.Record(rec)
	}
	if m.usageStore != nil {
		_ = m.usageStore.RecordTurn(rec, nil)
	}
}
