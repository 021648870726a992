package providers

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

type fakeTokenSource struct {
	calls  int
	tokens []*oauth2.Token
	err    error
}

func (f *fakeTokenSource) Token() (*oauth2.Token, error) {
	if f.err != nil {
		return nil, f.err
	}
	tok := f.tokens[f.calls]
	f.calls++
	return tok, nil
}

func TestCapabilityTokenCache_ReusesUnexpiredToken(t *testing.T) {
	source := &fakeTokenSource{tokens: []*oauth2.Token{
		{AccessToken: "first", Expiry: time.Now().Add(time.Hour)},
	}}
	cache := newCapabilityTokenCache(source, copilotRefreshWindow)

	for i := 0; i < 3; i++ {
		tok, err := cache.Token()
		if err != nil {
			t.Fatalf("Token: %v", err)
		}
		if tok.AccessToken != "first" {
			t.Errorf("AccessToken = %q, want first", tok.AccessToken)
		}
	}
	if source.calls != 1 {
		t.Errorf("source exchanged %d times, want 1 (cache should reuse)", source.calls)
	}
}

func TestCapabilityTokenCache_RefreshesWithinEarlyWindow(t *testing.T) {
	source := &fakeTokenSource{tokens: []*oauth2.Token{
		{AccessToken: "first", Expiry: time.Now().Add(30 * time.Second)},
		{AccessToken: "second", Expiry: time.Now().Add(time.Hour)},
	}}
	cache := newCapabilityTokenCache(source, copilotRefreshWindow)

	tok, _ := cache.Token()
	if tok.AccessToken != "first" {
		t.Fatalf("first Token() = %q", tok.AccessToken)
	}
	tok, _ = cache.Token()
	if tok.AccessToken != "second" {
		t.Errorf("expected refresh once within the early window, got %q", tok.AccessToken)
	}
}

func TestCapabilityTokenCache_InvalidateForcesReexchange(t *testing.T) {
	source := &fakeTokenSource{tokens: []*oauth2.Token{
		{AccessToken: "first", Expiry: time.Now().Add(time.Hour)},
		{AccessToken: "second", Expiry: time.Now().Add(time.Hour)},
	}}
	cache := newCapabilityTokenCache(source, copilotRefreshWindow)

	tok, _ := cache.Token()
	if tok.AccessToken != "first" {
		t.Fatalf("first Token() = %q", tok.AccessToken)
	}
	cache.Invalidate()
	tok, _ = cache.Token()
	if tok.AccessToken != "second" {
		t.Errorf("expected Invalidate to force re-exchange, got %q", tok.AccessToken)
	}
}

func TestOauthTokenExpired_OpaqueTokenIsNotCheckable(t *testing.T) {
	_, checkable := oauthTokenExpired("gho_not_a_jwt_opaque_token")
	if checkable {
		t.Error("expected an opaque (non-JWT) token to be reported as not checkable")
	}
}

func TestCopilotTokenSource_NonOKStatusIsAnError(t *testing.T) {
	var err error = &ErrCopilotExchange{Status: 500}
	if err.Error() == "" {
		t.Fatal("expected non-empty error message")
	}
	var exchangeErr *ErrCopilotExchange
	if !errors.As(err, &exchangeErr) {
		t.Fatal("expected errors.As to match ErrCopilotExchange")
	}
}
