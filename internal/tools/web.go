package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/torusbreakdown/marvin/internal/agent"
	"github.com/torusbreakdown/marvin/internal/sandbox"
)

const (
	webMaxFetchBytes = 200_000
	webDefaultTimeout = 20 * time.Second
)

// WebConfig controls the browse_web tool's fetch limits.
type WebConfig struct {
	MaxBytes int
	Timeout  time.Duration
}

// WebTool fetches a URL's body through a guarded HTTP client, rejecting
// private, loopback, and metadata-service targets before issuing any
// request and re-validating every redirect hop the same way.
type WebTool struct {
	client   *http.Client
	maxBytes int
}

// NewWebTool returns a browse_web tool.
func NewWebTool(cfg WebConfig) *WebTool {
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = webMaxFetchBytes
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = webDefaultTimeout
	}
	return &WebTool{client: sandbox.NewGuardedClient(timeout), maxBytes: maxBytes}
}

func (t *WebTool) Name() string { return "browse_web" }
func (t *WebTool) Description() string {
	return "Fetch a web page's text content. Blocks requests to private, loopback, and link-local addresses."
}

func (t *WebTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {"type": "string", "description": "The http(s) URL to fetch."}
		},
		"required": ["url"]
	}`)
}

func (t *WebTool) Category() agent.ToolCategory { return agent.CategoryReadOnly }

func (t *WebTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return agent.ToolArgsError("browse_web", err.Error()), nil
	}
	url := strings.TrimSpace(in.URL)
	if url == "" {
		return agent.ToolArgsError("browse_web", "url is required"), nil
	}

	verdict := sandbox.Classify(url)
	if !verdict.Allowed {
		return &agent.ToolResult{Content: fmt.Sprintf("Error: request blocked: %s", verdict.Reason), IsError: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("Error: invalid url: %s", err), IsError: true}, nil
	}
	req.Header.Set("User-Agent", "marvin-agent/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("Error: request failed: %s", err), IsError: true}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(t.maxBytes)+1))
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("Error: could not read response: %s", err), IsError: true}, nil
	}
	truncated := len(body) > t.maxBytes
	if truncated {
		body = body[:t.maxBytes]
	}

	content := fmt.Sprintf("status: %d\n\n%s", resp.StatusCode, string(body))
	if truncated {
		content += "\n... (truncated)"
	}
	return &agent.ToolResult{Content: content, IsError: resp.StatusCode >= 400}, nil
}
