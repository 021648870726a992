package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/torusbreakdown/marvin/internal/agent"
	"github.com/torusbreakdown/marvin/pkg/models"
)

const (
	defaultOllamaBaseURL      = "http://localhost:11434/v1"
	defaultLlamaServerBaseURL = "http://localhost:8080/v1"
	ollamaDefaultContextSize  = 32768
)

// LocalServerConfig configures a self-hosted OpenAI-compatible chat server.
type LocalServerConfig struct {
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
}

// LocalServerProvider adapts the OpenAI-compatible wire format for
// self-hosted inference servers (Ollama, llama-server) that run on the same
// machine and need no API key. It differs from the hosted OpenAI provider
// in two ways: a connection-refused dial error is translated into a "start
// the server" hint instead of a raw network error, and an extra-body
// passthrough lets a variant inject server-specific options into every
// request (Ollama needs a larger context window than its default).
type LocalServerProvider struct {
	name         string
	baseURL      string
	startHint    string
	defaultModel string
	extraBody    map[string]any
	httpClient   *http.Client
}

var _ agent.LLMProvider = (*LocalServerProvider)(nil)

func newLocalServerProvider(name, defaultBaseURL, startHint string, cfg LocalServerConfig, extraBody map[string]any) *LocalServerProvider {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &LocalServerProvider{
		name:         name,
		baseURL:      base,
		startHint:    startHint,
		defaultModel: strings.TrimSpace(cfg.DefaultModel),
		extraBody:    extraBody,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// NewOllamaProvider builds a provider against a local Ollama server.
// Ollama's default context window is too small for multi-turn tool
// sessions, so a larger one is requested via extra body fields on every
// call.
func NewOllamaProvider(cfg LocalServerConfig) *LocalServerProvider {
	return newLocalServerProvider("ollama", defaultOllamaBaseURL, "run `ollama serve`", cfg,
		map[string]any{"options": map[string]any{"num_ctx": ollamaDefaultContextSize}})
}

// NewLlamaServerProvider builds a provider against a local llama.cpp
// llama-server instance.
func NewLlamaServerProvider(cfg LocalServerConfig) *LocalServerProvider {
	return newLocalServerProvider("llama-server", defaultLlamaServerBaseURL, "run `llama-server -m <model>.gguf`", cfg, nil)
}

func (p *LocalServerProvider) Name() string { return p.name }

// Models returns the single configured default model, if any — local
// servers don't expose a fixed catalog the way a hosted vendor does.
func (p *LocalServerProvider) Models() []agent.Model {
	if p.defaultModel == "" {
		return nil
	}
	return []agent.Model{{ID: p.defaultModel, Name: p.defaultModel}}
}

func (p *LocalServerProvider) SupportsTools() bool { return true }

func (p *LocalServerProvider) Destroy() {}

// Complete posts an OpenAI-shaped chat completion request and parses the
// SSE response by hand (rather than through the go-openai client) so the
// extra-body passthrough fields can be merged into the JSON payload.
// It always requests a streamed response ("stream": true), whatever
// req.Stream and req.Tools say; tool calls are accumulated from the
// stream. Non-streaming mode is not forced when tools are present.
func (p *LocalServerProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = p.defaultModel
	}
	if model == "" {
		return nil, fmt.Errorf("%s: model is required", p.name)
	}

	messages, err := convertToOpenAIMessages(req.Messages, req.System)
	if err != nil {
		return nil, fmt.Errorf("convert messages: %w", err)
	}

	payload := map[string]any{
		"model":    model,
		"messages": messages,
		"stream":   true,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		payload["tools"] = convertToOpenAITools(req.Tools)
	}
	for k, v := range p.extraBody {
		payload[k] = v
	}
	for k, v := range req.ExtraBody {
		payload[k] = v
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", p.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if isConnectionRefused(err) {
			return nil, &agent.ErrProviderConnect{URL: p.baseURL, Hint: p.startHint, Cause: err}
		}
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, &agent.ErrProviderHTTP{Status: resp.StatusCode, BodyPrefix: strings.TrimSpace(string(errBody))}
	}

	chunks := make(chan *agent.CompletionChunk)
	go p.streamSSE(ctx, resp.Body, chunks, req.OnDelta)
	return chunks, nil
}

func isConnectionRefused(err error) bool {
	return strings.Contains(err.Error(), "connection refused") || strings.Contains(err.Error(), "connect: connection refused")
}

type sseChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    *int   `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// streamSSE implements the §4.4 streaming parse: each line after the
// "data: " prefix is a JSON chunk or the sentinel "[DONE]"; tool call
// fragments accumulate by stream index until a finish reason or [DONE]
// flushes them in index order. Ollama and llama-server don't always assign
// a call ID up front, so one is synthesized when missing.
func (p *LocalServerProvider) streamSSE(ctx context.Context, body io.ReadCloser, out chan<- *agent.CompletionChunk, onDelta func(string)) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	toolCalls := make(map[int]*models.ToolCall)
	var inTokens, outTokens int

	emit := func() {
		for i := 0; i < len(toolCalls); i++ {
			tc := toolCalls[i]
			if tc == nil || tc.Name == "" {
				continue
			}
			if tc.ID == "" {
				tc.ID = uuid.NewString()
			}
			out <- &agent.CompletionChunk{ToolCall: tc}
		}
	}

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			out <- &agent.CompletionChunk{Error: ctx.Err(), Done: true}
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			emit()
			out <- &agent.CompletionChunk{Done: true, InputTokens: inTokens, OutputTokens: outTokens}
			return
		}

		var chunk sseChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			out <- &agent.CompletionChunk{Error: fmt.Errorf("%s: decode chunk: %w", p.name, err), Done: true}
			return
		}
		if chunk.Usage != nil {
			inTokens = chunk.Usage.PromptTokens
			outTokens = chunk.Usage.CompletionTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			if onDelta != nil {
				onDelta(delta.Content)
			}
			out <- &agent.CompletionChunk{Text: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if toolCalls[index] == nil {
				toolCalls[index] = &models.ToolCall{}
			}
			if tc.ID != "" {
				toolCalls[index].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[index].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolCalls[index].Input = append(toolCalls[index].Input, []byte(tc.Function.Arguments)...)
			}
		}

		if chunk.Choices[0].FinishReason == "tool_calls" {
			emit()
			toolCalls = make(map[int]*models.ToolCall)
		}
	}

	if err := scanner.Err(); err != nil {
		out <- &agent.CompletionChunk{Error: err, Done: true}
	}
}
