package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/torusbreakdown/marvin/internal/agent"
	"github.com/torusbreakdown/marvin/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements LLMProvider against any OpenAI-compatible chat
// completions endpoint (OpenAI itself, Azure OpenAI, or a self-hosted proxy
// that speaks the same wire format).
type OpenAIProvider struct {
	BaseProvider
	client *openai.Client
	models []agent.Model
}

// NewOpenAIProvider builds a provider against api.openai.com.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	p := &OpenAIProvider{BaseProvider: NewBaseProvider("openai", 3, time.Second)}
	if apiKey != "" {
		p.client = openai.NewClient(apiKey)
	}
	return p
}

// NewOpenAICompatibleProvider builds a provider against a custom base URL
// (Azure OpenAI, a self-hosted gateway, etc.) while keeping the OpenAI wire
// format.
func NewOpenAICompatibleProvider(name, apiKey, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		BaseProvider: NewBaseProvider(name, 3, time.Second),
		client:       openai.NewClientWithConfig(cfg),
	}
}

func (p *OpenAIProvider) Name() string { return p.name }

// Models returns the catalog this provider was configured to serve.
func (p *OpenAIProvider) Models() []agent.Model {
	if len(p.models) > 0 {
		return p.models
	}
	return []agent.Model{
		{ID: "gpt-4o", Name: "GPT-4o", ContextSize: 128000},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", ContextSize: 128000},
		{ID: "gpt-4o-mini", Name: "GPT-4o Mini", ContextSize: 128000},
	}
}

func (p *OpenAIProvider) SupportsTools() bool { return true }

// Destroy releases provider resources. The underlying HTTP client needs no
// explicit teardown; this exists to satisfy LLMProvider for symmetry with
// providers that hold a token-refresh goroutine or file handle.
func (p *OpenAIProvider) Destroy() {}

// Complete sends a chat completion request and streams the response back as
// CompletionChunks. Tool calls arrive fully assembled (OpenAI streams their
// arguments incrementally; this provider buffers until a call is complete).
func (p *OpenAIProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	if p.client == nil {
		return nil, agent.ErrNoProvider
	}

	messages, err := convertToOpenAIMessages(req.Messages, req.System)
	if err != nil {
		return nil, fmt.Errorf("convert messages: %w", err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertToOpenAITools(req.Tools)
	}

	if !req.Stream || len(req.Tools) > 0 {
		resp, err := p.completeNonStreaming(ctx, chatReq)
		if err != nil {
			return nil, err
		}
		chunks := make(chan *agent.CompletionChunk, len(resp))
		for _, c := range resp {
			chunks <- c
		}
		close(chunks)
		return chunks, nil
	}

	chatReq.Stream = true
	var stream *openai.ChatCompletionStream
	err = p.Retry(ctx, func(e error) bool { return IsRetryable(e) }, func() error {
		s, e := p.client.CreateChatCompletionStream(ctx, chatReq)
		if e != nil {
			return classifyOpenAIErr(e)
		}
		stream = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	chunks := make(chan *agent.CompletionChunk)
	go processOpenAIStream(ctx, stream, chunks, req.OnDelta)
	return chunks, nil
}

func (p *OpenAIProvider) completeNonStreaming(ctx context.Context, chatReq openai.ChatCompletionRequest) ([]*agent.CompletionChunk, error) {
	var resp openai.ChatCompletionResponse
	err := p.Retry(ctx, func(e error) bool { return IsRetryable(e) }, func() error {
		r, e := p.client.CreateChatCompletion(ctx, chatReq)
		if e != nil {
			return classifyOpenAIErr(e)
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: empty choices in response")
	}
	choice := resp.Choices[0]
	out := make([]*agent.CompletionChunk, 0, len(choice.Message.ToolCalls)+2)
	if choice.Message.Content != "" {
		out = append(out, &agent.CompletionChunk{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		out = append(out, &agent.CompletionChunk{ToolCall: &models.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		}})
	}
	out = append(out, &agent.CompletionChunk{
		Done:         true,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	})
	return out, nil
}

// processOpenAIStream converts SSE deltas into CompletionChunks. Tool call
// arguments stream in fragments keyed by index; each call is only emitted
// once its ID and name have both arrived and the stream signals completion.
func processOpenAIStream(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- *agent.CompletionChunk, onDelta func(string)) {
	defer close(chunks)
	defer stream.Close()

	toolCalls := make(map[int]*models.ToolCall)
	var inTokens, outTokens int

	emitToolCalls := func() {
		for i := 0; i < len(toolCalls); i++ {
			tc := toolCalls[i]
			if tc != nil && tc.ID != "" && tc.Name != "" {
				chunks <- &agent.CompletionChunk{ToolCall: tc}
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			chunks <- &agent.CompletionChunk{Error: ctx.Err(), Done: true}
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				emitToolCalls()
				chunks <- &agent.CompletionChunk{Done: true, InputTokens: inTokens, OutputTokens: outTokens}
				return
			}
			chunks <- &agent.CompletionChunk{Error: classifyOpenAIErr(err), Done: true}
			return
		}

		if resp.Usage != nil {
			inTokens = resp.Usage.PromptTokens
			outTokens = resp.Usage.CompletionTokens
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			if onDelta != nil {
				onDelta(delta.Content)
			}
			chunks <- &agent.CompletionChunk{Text: delta.Content}
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

		if resp.Choices[0].FinishReason == openai.FinishReasonToolCalls {
			emitToolCalls()
			toolCalls = make(map[int]*models.ToolCall)
		}
	}
}

func convertToOpenAIMessages(messages []agent.CompletionMessage, system string) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		if len(msg.ToolResults) > 0 {
			for _, tr := range msg.ToolResults {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
			continue
		}

		oaiMsg := openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content}
		if len(msg.ToolCalls) > 0 {
			oaiMsg.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls[i] = openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Input),
					},
				}
			}
		}
		result = append(result, oaiMsg)
	}

	return result, nil
}

func convertToOpenAITools(tools []agent.ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(tool.Parameters, &schemaMap); err != nil {
			schemaMap = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schemaMap,
			},
		}
	}
	return result
}

// classifyOpenAIErr wraps a raw client error as a ProviderError so callers
// can use IsRetryable/ShouldFailover uniformly across provider variants.
func classifyOpenAIErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewProviderError("openai", "", err).WithStatus(apiErr.HTTPStatusCode).WithCode(fmt.Sprint(apiErr.Code))
	}
	return NewProviderError("openai", "", err)
}
