package agent

import (
	"context"
	"time"

	"github.com/torusbreakdown/marvin/internal/observability"
	"github.com/torusbreakdown/marvin/pkg/models"
)

// ToolExecConfig configures the bounded-concurrency tool executor.
type ToolExecConfig struct {
	// Concurrency is the maximum number of tool calls executed at once
	// within a single round. Default: 4.
	Concurrency int

	// PerToolTimeout bounds a single tool call's execution. Default: 30s.
	PerToolTimeout time.Duration

	// Metrics, when set, records duration/status for every tool call.
	// Leave nil to disable.
	Metrics *observability.Metrics

	// Tracer, when set, opens a span around every tool call. Leave nil
	// to disable.
	Tracer *observability.Tracer
}

// DefaultToolExecConfig returns the executor defaults.
func DefaultToolExecConfig() ToolExecConfig {
	return ToolExecConfig{
		Concurrency:    4,
		PerToolTimeout: 30 * time.Second,
	}
}

// ToolExecutor runs the tool calls produced by one assistant message as a
// bounded-concurrency group, in the round-7 sense of §4.5: all calls
// dispatch together and are awaited as a group before the round
// continues.
type ToolExecutor struct {
	registry *ToolRegistry
	config   ToolExecConfig
}

// NewToolExecutor creates an executor bound to registry with config
// (zero fields replaced by DefaultToolExecConfig's values).
func NewToolExecutor(registry *ToolRegistry, config ToolExecConfig) *ToolExecutor {
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.PerToolTimeout <= 0 {
		config.PerToolTimeout = 30 * time.Second
	}
	return &ToolExecutor{registry: registry, config: config}
}

// ExecuteConcurrently dispatches every call in toolCalls under the
// executor's concurrency cap and returns a tool-result message per call,
// in the SAME order as toolCalls — not completion order — so the
// caller's message-list ordering matches the provider's pairing
// invariant regardless of which tool happens to finish first.
func (e *ToolExecutor) ExecuteConcurrently(ctx context.Context, mode ModePolicy, toolCalls []models.ToolCall) []models.ToolResult {
	results := make([]models.ToolResult, len(toolCalls))
	sem := make(chan struct{}, e.config.Concurrency)
	done := make(chan int, len(toolCalls))

	for i, tc := range toolCalls {
		go func(idx int, call models.ToolCall) {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = models.ToolResult{
					ToolCallID: call.ID,
					Content:    "context canceled",
					IsError:    true,
				}
				done <- idx
				return
			}

			toolCtx, cancel := context.WithTimeout(ctx, e.config.PerToolTimeout)
			defer cancel()

			if e.config.Tracer != nil {
				var end func()
				toolCtx, end = e.config.Tracer.StartClosable(toolCtx, "tool."+call.Name)
				defer end()
			}

			start := time.Now()
			res, err := e.registry.Execute(toolCtx, mode, call.Name, call.Input)
			elapsed := time.Since(start).Seconds()

			status := "success"
			switch {
			case err != nil:
				status = "error"
				results[idx] = models.ToolResult{ToolCallID: call.ID, Content: err.Error(), IsError: true}
			case toolCtx.Err() != nil:
				status = "error"
				results[idx] = models.ToolResult{
					ToolCallID: call.ID,
					Content:    "tool execution timed out after " + e.config.PerToolTimeout.String(),
					IsError:    true,
				}
			default:
				if res.IsError {
					status = "error"
				}
				results[idx] = models.ToolResult{ToolCallID: call.ID, Content: res.Content, IsError: res.IsError}
			}
			if e.config.Metrics != nil {
				e.config.Metrics.RecordToolExecution(call.Name, status, elapsed)
			}
			done <- idx
		}(i, tc)
	}

	for range toolCalls {
		<-done
	}
	return results
}
