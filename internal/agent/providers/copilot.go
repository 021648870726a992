package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/torusbreakdown/marvin/internal/agent"
	"github.com/torusbreakdown/marvin/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

const (
	copilotTokenExchangeURL = "https://api.github.com/copilot_internal/v2/token"
	copilotAPIBaseURL       = "https://api.githubcopilot.com"
	copilotRefreshWindow    = 60 * time.Second
)

// copilotEditorHeaders are sent on every request so the Copilot backend
// attributes usage to a recognized editor integration.
var copilotEditorHeaders = map[string]string{
	"Editor-Version":         "marvin/1.0.0",
	"Editor-Plugin-Version":  "marvin-agent/1.0.0",
	"Copilot-Integration-Id": "vscode-chat",
}

// CopilotProvider implements LLMProvider against GitHub Copilot's chat
// completions endpoint. The wire format is OpenAI-compatible; what differs
// is authentication: a long-lived OAuth token is exchanged for a shortlived
// capability token, cached until it is close to expiry.
type CopilotProvider struct {
	BaseProvider

	httpClient *http.Client
	tokens     *capabilityTokenCache
	models     []agent.Model
}

// NewCopilotProvider builds a Copilot provider. If oauthToken is empty, it
// is fetched from the environment's GitHub CLI sidecar (`gh auth token`) —
// mirroring how an editor extension would obtain it without ever storing a
// long-lived secret itself.
func NewCopilotProvider(oauthToken string) (*CopilotProvider, error) {
	if oauthToken == "" {
		token, err := fetchOAuthTokenFromSidecar()
		if err != nil {
			return nil, fmt.Errorf("copilot: no OAuth token available: %w", err)
		}
		oauthToken = token
	}
	if expired, checkable := oauthTokenExpired(oauthToken); checkable && expired {
		return nil, errors.New("copilot: cached OAuth token has expired, run `gh auth login` again")
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	source := &copilotTokenSource{oauthToken: oauthToken, httpClient: httpClient}

	return &CopilotProvider{
		BaseProvider: NewBaseProvider("copilot", 3, time.Second),
		httpClient:   httpClient,
		tokens:       newCapabilityTokenCache(source, copilotRefreshWindow),
	}, nil
}

func (p *CopilotProvider) Name() string { return "copilot" }

// Models lists the chat models Copilot subscriptions commonly expose.
func (p *CopilotProvider) Models() []agent.Model {
	if len(p.models) > 0 {
		return p.models
	}
	return []agent.Model{
		{ID: "gpt-4o", Name: "GPT-4o (Copilot)", ContextSize: 128000},
		{ID: "o1-preview", Name: "o1-preview (Copilot)", ContextSize: 128000},
		{ID: "claude-3.5-sonnet", Name: "Claude 3.5 Sonnet (Copilot)", ContextSize: 200000},
	}
}

func (p *CopilotProvider) SupportsTools() bool { return true }

func (p *CopilotProvider) Destroy() {}

// Complete exchanges (or reuses) the current capability token and then
// proxies to the same streaming/non-streaming wire logic the OpenAI
// provider uses — Copilot's chat endpoint is OpenAI-shaped.
func (p *CopilotProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	tok, err := p.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("copilot: capability token exchange failed: %w", err)
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

	client := p.clientFor(tok.AccessToken)

	if !req.Stream || len(req.Tools) > 0 {
		resp, err := client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return nil, p.handleRequestErr(err)
		}
		if len(resp.Choices) == 0 {
			return nil, errors.New("copilot: empty choices in response")
		}
		return nonStreamingChunks(resp), nil
	}

	chatReq.Stream = true
	stream, err := client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, p.handleRequestErr(err)
	}

	chunks := make(chan *agent.CompletionChunk)
	go processOpenAIStream(ctx, stream, chunks, req.OnDelta)
	return chunks, nil
}

// clientFor builds an OpenAI-compatible client against the Copilot endpoint
// for a single capability token. Built fresh per call since the token can
// rotate; the go-openai client itself is a thin, stateless wrapper.
func (p *CopilotProvider) clientFor(capabilityToken string) *openai.Client {
	cfg := openai.DefaultConfig(capabilityToken)
	cfg.BaseURL = copilotAPIBaseURL
	cfg.HTTPClient = &http.Client{
		Timeout:   p.httpClient.Timeout,
		Transport: &editorHeaderTransport{base: p.httpClient.Transport},
	}
	return openai.NewClientWithConfig(cfg)
}

// handleRequestErr invalidates the cached capability token on a 401 (per
// spec: "A 401 response invalidates the cache and propagates as an error")
// and otherwise classifies the error for retry/failover decisions upstream.
func (p *CopilotProvider) handleRequestErr(err error) error {
	if isUnauthorized(err) {
		p.tokens.Invalidate()
	}
	return classifyOpenAIErr(err)
}

func nonStreamingChunks(resp openai.ChatCompletionResponse) <-chan *agent.CompletionChunk {
	choice := resp.Choices[0]
	ch := make(chan *agent.CompletionChunk, len(choice.Message.ToolCalls)+2)
	if choice.Message.Content != "" {
		ch <- &agent.CompletionChunk{Text: choice.Message.Content}
	}
	for _, tc := range choice.Message.ToolCalls {
		tc := tc
		ch <- &agent.CompletionChunk{ToolCall: &models.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		}}
	}
	ch <- &agent.CompletionChunk{
		Done:         true,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	close(ch)
	return ch
}

func isUnauthorized(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusUnauthorized
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusUnauthorized
	}
	return false
}

// editorHeaderTransport stamps every outbound request with Copilot's fixed
// editor-identification headers.
type editorHeaderTransport struct {
	base http.RoundTripper
}

func (t *editorHeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range copilotEditorHeaders {
		req.Header.Set(k, v)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// copilotTokenSource exchanges the long-lived GitHub OAuth token for a
// shortlived Copilot capability token. It implements oauth2.TokenSource so
// the cache layer above can treat it uniformly.
type copilotTokenSource struct {
	oauthToken string
	httpClient *http.Client
}

func (s *copilotTokenSource) Token() (*oauth2.Token, error) {
	req, err := http.NewRequest(http.MethodGet, copilotTokenExchangeURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "token "+s.oauthToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("copilot token exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ErrCopilotExchange{Status: resp.StatusCode}
	}

	var body struct {
		Token     string `json:"token"`
		ExpiresAt int64  `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("copilot token exchange: decode response: %w", err)
	}
	if body.Token == "" {
		return nil, errors.New("copilot token exchange: empty capability token in response")
	}

	return &oauth2.Token{
		AccessToken: body.Token,
		Expiry:      time.Unix(body.ExpiresAt, 0),
	}, nil
}

// ErrCopilotExchange reports a non-200 from the capability-token exchange.
type ErrCopilotExchange struct{ Status int }

func (e *ErrCopilotExchange) Error() string {
	return fmt.Sprintf("copilot token exchange: unexpected status %d", e.Status)
}

// capabilityTokenCache wraps an oauth2.TokenSource with an explicit
// Invalidate method. The stdlib's ReuseTokenSourceWithExpiry has no such
// escape hatch, and a 401 from the chat endpoint must force a re-exchange
// rather than wait out the cached expiry.
type capabilityTokenCache struct {
	mu     sync.Mutex
	source oauth2.TokenSource
	cached *oauth2.Token
	early  time.Duration
}

func newCapabilityTokenCache(source oauth2.TokenSource, early time.Duration) *capabilityTokenCache {
	return &capabilityTokenCache{source: source, early: early}
}

func (c *capabilityTokenCache) Token() (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached != nil && time.Until(c.cached.Expiry) > c.early {
		return c.cached, nil
	}
	tok, err := c.source.Token()
	if err != nil {
		return nil, err
	}
	c.cached = tok
	return tok, nil
}

func (c *capabilityTokenCache) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

// fetchOAuthTokenFromSidecar shells out to the GitHub CLI, which holds and
// refreshes the long-lived OAuth token on the user's behalf.
func fetchOAuthTokenFromSidecar() (string, error) {
	cmd := exec.Command("gh", "auth", "token")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("`gh auth token`: %w", err)
	}
	token := strings.TrimSpace(out.String())
	if token == "" {
		return "", errors.New("`gh auth token` returned an empty token")
	}
	return token, nil
}

// oauthTokenExpired parses the token as a JWT and checks its exp claim
// without verifying a signature (GitHub's long-lived tokens are opaque to
// us; this only applies when the token happens to be a JWT). checkable is
// false when the token isn't a parseable JWT, in which case the caller
// should just proceed and let the exchange call itself surface any problem.
func oauthTokenExpired(token string) (expired bool, checkable bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	_, _, err := parser.ParseUnverified(token, claims)
	if err != nil {
		return false, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false, false
	}
	return time.Now().After(exp.Time), true
}
