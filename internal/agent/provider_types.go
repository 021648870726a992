package agent

import (
	"context"
	"encoding/json"

	"github.com/torusbreakdown/marvin/pkg/models"
)

// LLMProvider is the uniform interface every chat backend satisfies,
// whether it exchanges an OAuth token for a vendor API key, speaks the
// OpenAI-compatible HTTP wire format directly, or talks to a local
// server process.
//
// Implementations must be safe for concurrent use; the session manager
// serializes calls per session but a provider instance may be shared
// across sessions.
type LLMProvider interface {
	// Complete sends a prompt and returns a streaming response. When
	// req.Tools is non-empty the OpenAI-compatible and Copilot providers
	// force stream=false internally regardless of req.Stream; the
	// local-server provider always streams.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns the provider's identifier, e.g. "openai", "copilot", "ollama".
	Name() string

	// Models returns the models this provider currently knows about.
	Models() []Model

	// SupportsTools reports whether the provider can accept a tools
	// wire schema at all.
	SupportsTools() bool

	// Destroy releases any held resources. Called on provider switch
	// and session close.
	Destroy()
}

// CompletionRequest is a single call to a provider.
type CompletionRequest struct {
	// Model selects the backend model id. Empty uses the provider default.
	Model string `json:"model"`

	// System is the system prompt.
	System string `json:"system,omitempty"`

	// Messages is the conversation history, oldest first.
	Messages []CompletionMessage `json:"messages"`

	// Tools lists the wire-format tool schemas available this call. A
	// non-empty Tools forces non-streaming regardless of Stream, except
	// in the local-server provider, which always streams.
	Tools []ToolDefinition `json:"tools,omitempty"`

	// Stream requests a token-delta stream. Ignored (forced false) when
	// Tools is non-empty, except by the local-server provider.
	Stream bool `json:"stream,omitempty"`

	// MaxTokens bounds the response length. Zero uses the provider default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// OnDelta, if set, is invoked once per streamed text fragment in
	// addition to the fragment being sent on the returned channel — a
	// callback-style escape hatch for callers that don't want to read
	// a channel directly.
	OnDelta func(text string) `json:"-"`

	// ExtraBody carries vendor-specific fields merged verbatim into the
	// outgoing JSON payload (e.g. a reasoning/thinking-budget option on a
	// long-reasoning model). Honored by providers that build the request
	// body by hand; silently ignored by providers that build it through a
	// typed client struct with no such escape hatch.
	ExtraBody map[string]any `json:"-"`
}

// CompletionMessage is one entry in a conversation passed to a provider.
type CompletionMessage struct {
	Role        string              `json:"role"`
	Content     string              `json:"content,omitempty"`
	ToolCalls   []models.ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []models.ToolResult `json:"tool_results,omitempty"`
}

// CompletionChunk is a unit of a streamed or materialized response.
//
// A non-streaming call still delivers its result as a short sequence of
// chunks terminated by Done: a content chunk (if any), any tool calls,
// then a final chunk with Done=true carrying usage counts.
type CompletionChunk struct {
	Text         string           `json:"text,omitempty"`
	ToolCall     *models.ToolCall `json:"tool_call,omitempty"`
	Done         bool             `json:"done,omitempty"`
	Error        error            `json:"-"`
	InputTokens  int              `json:"input_tokens,omitempty"`
	OutputTokens int              `json:"output_tokens,omitempty"`
}

// Model describes a model a provider can serve.
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContextSize int    `json:"context_size"`
}

// ToolDefinition is the wire-format shape of a tool as sent to a
// provider: name, description, and JSON Schema parameters. Distinct from
// the Tool interface below, which is the local, executable side.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCategory gates a tool behind the session's current mode.
type ToolCategory string

const (
	// CategoryAlways is available in every mode.
	CategoryAlways ToolCategory = "always"
	// CategoryCoding requires the session's coding sub-flag.
	CategoryCoding ToolCategory = "coding"
	// CategoryReadOnly is available whenever coding tools are, but
	// never mutates the filesystem or a subprocess's external state.
	CategoryReadOnly ToolCategory = "readonly"
)

// Tool is the interface every entry in the tool registry satisfies.
type Tool interface {
	// Name is the identifier the provider references in a tool call.
	// Must match ^[a-zA-Z_][a-zA-Z0-9_]*$.
	Name() string

	// Description is shown to the model to help it decide when to call
	// the tool.
	Description() string

	// Schema is the JSON Schema describing the tool's parameters.
	Schema() json.RawMessage

	// Category gates which session modes may invoke the tool.
	Category() ToolCategory

	// Execute runs the tool against already-deserialized parameters.
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolResult is what a Tool.Execute call returns. Errors are also
// communicated this way, with IsError=true, so the loop can turn them
// into a tool-result message and let the model react instead of aborting
// the turn.
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}
