package agent

import (
	"errors"
	"testing"
)

func TestErrProviderHTTP_Message(t *testing.T) {
	err := &ErrProviderHTTP{Status: 401, BodyPrefix: "invalid token"}
	if err.Error() == "" {
		t.Fatal("expected non-empty message")
	}
}

func TestErrProviderConnect_Unwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := &ErrProviderConnect{URL: "http://localhost:11434", Hint: "run `ollama serve`", Cause: cause}
	if !errors.Is(err, cause) {
		t.Errorf("expected errors.Is to find the wrapped cause")
	}
}

func TestToolResultHelpers_AlwaysError(t *testing.T) {
	cases := []*ToolResult{
		ToolArgsError("shell", "missing command"),
		ToolHandlerError("shell", errors.New("boom")),
		SandboxViolationError("path traversal"),
		ConfirmDeclinedError("rm -rf /tmp/x"),
	}
	for _, r := range cases {
		if !r.IsError {
			t.Errorf("expected IsError=true, got %+v", r)
		}
		if r.Content == "" {
			t.Errorf("expected non-empty content, got %+v", r)
		}
	}
}
