package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/torusbreakdown/marvin/internal/agent"
	"github.com/torusbreakdown/marvin/internal/sandbox"
)

const gitTimeout = 30 * time.Second

// GitConfig controls the git tool's working directory.
type GitConfig struct {
	Workspace string
}

// GitTool runs a restricted set of read-mostly git subcommands against
// the workspace repo. Every positional argument is checked by
// sandbox.GitArgs to reject option-injection, and the child process
// environment is always sandbox.ScrubbedEnv so GIT_DIR/GIT_WORK_TREE
// can't be redirected by a malicious override.
type GitTool struct {
	box sandbox.PathSandbox
}

var allowedGitSubcommands = map[string]bool{
	"status": true, "diff": true, "log": true, "show": true,
	"branch": true, "add": true, "commit": true,
}

// NewGitTool returns a git tool rooted at cfg.Workspace.
func NewGitTool(cfg GitConfig) *GitTool {
	return &GitTool{box: sandbox.NewPathSandbox(cfg.Workspace)}
}

func (t *GitTool) Name() string { return "git" }
func (t *GitTool) Description() string {
	return "Run a git subcommand (status, diff, log, show, branch, add, commit) in the workspace."
}

func (t *GitTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"subcommand": {"type": "string", "description": "One of: status, diff, log, show, branch, add, commit."},
			"args": {"type": "array", "items": {"type": "string"}, "description": "Additional positional arguments."}
		},
		"required": ["subcommand"]
	}`)
}

func (t *GitTool) Category() agent.ToolCategory { return agent.CategoryCoding }

func (t *GitTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in struct {
		Subcommand string   `json:"subcommand"`
		Args       []string `json:"args"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return agent.ToolArgsError("git", err.Error()), nil
	}
	sub := strings.TrimSpace(in.Subcommand)
	if sub == "" {
		return agent.ToolArgsError("git", "subcommand is required"), nil
	}
	if !allowedGitSubcommands[sub] {
		return agent.ToolArgsError("git", fmt.Sprintf("subcommand %q is not allowed", sub)), nil
	}
	if err := sandbox.GitArgs(in.Args); err != nil {
		return agent.SandboxViolationError(err.Error()), nil
	}

	cwd, err := t.box.Resolve(".")
	if err != nil {
		return agent.SandboxViolationError(err.Error()), nil
	}

	runCtx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	args := append([]string{sub}, in.Args...)
	cmd := exec.CommandContext(runCtx, "git", args...)
	cmd.Dir = cwd
	cmd.Env = sandbox.ScrubbedEnv(nil)

	var out bytes.Buffer
	cmd.Stdout = newCappedWriter(&out, shellMaxOutputBytes)
	cmd.Stderr = newCappedWriter(&out, shellMaxOutputBytes)

	runErr := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return &agent.ToolResult{Content: fmt.Sprintf("git %s timed out after %s", sub, gitTimeout), IsError: true}, nil
	}
	if runErr != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("git %s failed: %s\n%s", sub, runErr, out.String()), IsError: true}, nil
	}
	return &agent.ToolResult{Content: out.String()}, nil
}
