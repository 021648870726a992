// Package tools holds the built-in tool implementations: echo, file
// read/write, shell, git, web browsing, patch application, and timers.
// Every tool that touches the filesystem, a subprocess, or the network
// goes through internal/sandbox first.
package tools

import (
	"context"
	"encoding/json"

	"github.com/torusbreakdown/marvin/internal/agent"
)

// EchoTool is the minimal reference tool: it has no side effects and no
// sandboxing concerns, so it doubles as the registry's smoke test.
type EchoTool struct{}

// NewEchoTool returns an EchoTool.
func NewEchoTool() EchoTool { return EchoTool{} }

func (EchoTool) Name() string        { return "echo" }
func (EchoTool) Description() string { return "Echo back the given text. Useful for testing the tool loop." }

func (EchoTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"text": {"type": "string", "description": "Text to echo back."}
		},
		"required": ["text"]
	}`)
}

func (EchoTool) Category() agent.ToolCategory { return agent.CategoryAlways }

func (EchoTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return agent.ToolArgsError("echo", err.Error()), nil
	}
	return &agent.ToolResult{Content: "Echo: " + in.Text}, nil
}
