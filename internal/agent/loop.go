package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/torusbreakdown/marvin/internal/observability"
	"github.com/torusbreakdown/marvin/pkg/models"
)

// LoopConfig configures the tool loop's round bound, default model
// parameters, and the executor used to dispatch tool calls.
type LoopConfig struct {
	// MaxRounds bounds the number of provider-call-plus-tool-execution
	// rounds before the loop forces a final, tools-disabled streaming
	// call. Default: 10.
	MaxRounds int

	// MaxTokens is the default max-tokens passed to the provider when
	// the caller doesn't specify one.
	MaxTokens int

	ExecConfig ToolExecConfig

	// Metrics, when set, records one observation per provider call.
	// Leave nil to disable.
	Metrics *observability.Metrics

	// Tracer, when set, opens a span around every provider call. Leave
	// nil to disable.
	Tracer *observability.Tracer
}

// DefaultLoopConfig returns the loop's default configuration.
func DefaultLoopConfig() *LoopConfig {
	return &LoopConfig{
		MaxRounds:  10,
		MaxTokens:  4096,
		ExecConfig: DefaultToolExecConfig(),
	}
}

func sanitizeLoopConfig(config *LoopConfig) *LoopConfig {
	if config == nil {
		return DefaultLoopConfig()
	}
	cfg := *config
	defaults := DefaultLoopConfig()
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = defaults.MaxRounds
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.ExecConfig.Concurrency <= 0 {
		cfg.ExecConfig = defaults.ExecConfig
	}
	return &cfg
}

// LoopCallbacks are the optional, non-blocking hooks the loop invokes as
// it runs. All are safe to leave nil.
type LoopCallbacks struct {
	// OnDelta is invoked with streamed text. For the no-tools final
	// call the loop also invokes it once with the full content so a UI
	// sees a result even when nothing was streamed incrementally.
	OnDelta func(text string)

	// OnToolStart is invoked once per round with the names of the tool
	// calls about to execute concurrently.
	OnToolStart func(names []string)
}

// LoopResult is what Run returns on completion.
type LoopResult struct {
	Message      CompletionMessage
	Messages     []CompletionMessage // full transcript including the new turn
	InputTokens  int
	OutputTokens int
	Rounds       int
}

// AgenticLoop implements the bounded-round tool-dispatch loop: call the
// provider with tools enabled and streaming disabled, execute any
// resulting tool calls concurrently, append results, and repeat until
// the assistant responds with no tool calls or the round bound is
// reached.
type AgenticLoop struct {
	provider LLMProvider
	registry *ToolRegistry
	executor *ToolExecutor
	config   *LoopConfig
}

// NewAgenticLoop creates a loop bound to provider and registry. If
// config is nil, DefaultLoopConfig is used.
func NewAgenticLoop(provider LLMProvider, registry *ToolRegistry, config *LoopConfig) *AgenticLoop {
	config = sanitizeLoopConfig(config)
	if registry == nil {
		registry = NewToolRegistry()
	}
	return &AgenticLoop{
		provider: provider,
		registry: registry,
		executor: NewToolExecutor(registry, config.ExecConfig),
		config:   config,
	}
}

// Run executes the tool loop against an initial message sequence of
// [system, ...history, user(prompt)] (callers build this sequence via
// BuildInitialMessages) and a compaction budget. It blocks until the
// loop completes, is cancelled, or the round bound forces a final
// textual call.
func (l *AgenticLoop) Run(ctx context.Context, messages []CompletionMessage, mode ModePolicy, budget *ContextBudget, model string, cb LoopCallbacks) (*LoopResult, error) {
	if l.provider == nil {
		return nil, ErrNoProvider
	}

	msgs := append([]CompletionMessage(nil), messages...)
	var totalIn, totalOut int
	var system string
	if len(msgs) > 0 && msgs[0].Role == "system" {
		system = msgs[0].Content
	}

	round := 0
	for round < l.config.MaxRounds {
		select {
		case <-ctx.Done():
			return nil, ErrCancelled
		default:
		}

		if budget != nil {
			if status, est := budget.Check(msgs); status == StatusHard {
				return nil, &ErrContextExceeded{Estimated: est, Hard: budget.thresholds.Hard}
			} else if status == StatusCompact {
				msgs = Compact(msgs)
			}
		}

		msgs = repairTranscript(msgs)

		tools := l.registry.WireSchemas(mode)
		req := &CompletionRequest{
			Model:     model,
			System:    system,
			Messages:  msgs,
			Tools:     tools,
			Stream:    false,
			MaxTokens: l.config.MaxTokens,
		}

		assistant, toolCalls, in, out, err := l.call(ctx, model, req)
		if err != nil {
			return nil, err
		}
		totalIn += in
		totalOut += out

		if len(toolCalls) == 0 {
			if cb.OnDelta != nil {
				cb.OnDelta(assistant.Content)
			}
			msgs = append(msgs, assistant)
			return &LoopResult{
				Message:      assistant,
				Messages:     msgs,
				InputTokens:  totalIn,
				OutputTokens: totalOut,
				Rounds:       round + 1,
			}, nil
		}

		if cb.OnToolStart != nil {
			names := make([]string, len(toolCalls))
			for i, tc := range toolCalls {
				names[i] = tc.Name
			}
			cb.OnToolStart(names)
		}

		results := l.executor.ExecuteConcurrently(ctx, mode, toolCalls)

		msgs = append(msgs, assistant)
		msgs = append(msgs, CompletionMessage{Role: "tool", ToolResults: results})

		round++
	}

	// Round bound reached with pending tool calls: force a final call
	// with tools disabled and streaming enabled so the model must
	// produce a textual conclusion.
	msgs = repairTranscript(msgs)
	finalReq := &CompletionRequest{
		Model:     model,
		System:    system,
		Messages:  msgs,
		Stream:    true,
		MaxTokens: l.config.MaxTokens,
		OnDelta:   cb.OnDelta,
	}
	assistant, _, in, out, err := l.call(ctx, model, finalReq)
	if err != nil {
		return nil, fmt.Errorf("forced final call after max rounds: %w", err)
	}
	totalIn += in
	totalOut += out
	msgs = append(msgs, assistant)

	// Reaching the round bound is not itself an error — the forced final
	// call still produced a textual conclusion, per §4.5's "return its
	// result". ErrMaxRounds exists for callers (e.g. tests) that want to
	// assert the bound was hit; it is not returned here.
	return &LoopResult{
		Message:      assistant,
		Messages:     msgs,
		InputTokens:  totalIn,
		OutputTokens: totalOut,
		Rounds:       round,
	}, nil
}

// call issues one provider completion and materializes the streamed
// chunks into a single assistant message plus its tool calls, in
// stream-index order.
func (l *AgenticLoop) call(ctx context.Context, model string, req *CompletionRequest) (CompletionMessage, []models.ToolCall, int, int, error) {
	providerName := l.provider.Name()

	var end func()
	if l.config.Tracer != nil {
		ctx, end = l.config.Tracer.StartClosable(ctx, "llm."+providerName)
		defer end()
	}
	start := time.Now()

	stream, err := l.provider.Complete(ctx, req)
	if err != nil {
		l.recordCompletion(providerName, model, "error", start)
		return CompletionMessage{}, nil, 0, 0, err
	}

	var content string
	var toolCalls []models.ToolCall
	var inTokens, outTokens int

	for chunk := range stream {
		if chunk.Error != nil {
			l.recordCompletion(providerName, model, "error", start)
			return CompletionMessage{}, nil, 0, 0, chunk.Error
		}
		if chunk.Text != "" {
			content += chunk.Text
		}
		if chunk.ToolCall != nil {
			toolCalls = append(toolCalls, *chunk.ToolCall)
		}
		if chunk.Done {
			inTokens = chunk.InputTokens
			outTokens = chunk.OutputTokens
		}
	}

	if l.config.Metrics != nil {
		l.config.Metrics.RecordLLMRequest(providerName, model, "success", time.Since(start).Seconds(), inTokens, outTokens)
		l.config.Metrics.RecordContextWindow(providerName, model, inTokens)
	}

	msg := CompletionMessage{
		Role:      "assistant",
		Content:   content,
		ToolCalls: toolCalls,
	}
	return msg, toolCalls, inTokens, outTokens, nil
}

func (l *AgenticLoop) recordCompletion(provider, model, status string, start time.Time) {
	if l.config.Metrics == nil {
		return
	}
	l.config.Metrics.RecordLLMRequest(provider, model, status, time.Since(start).Seconds(), 0, 0)
}

// BuildInitialMessages assembles [system, ...history, user(prompt)].
func BuildInitialMessages(system string, history []CompletionMessage, prompt string) []CompletionMessage {
	msgs := make([]CompletionMessage, 0, len(history)+2)
	if system != "" {
		msgs = append(msgs, CompletionMessage{Role: "system", Content: system})
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, CompletionMessage{Role: "user", Content: prompt})
	return msgs
}
