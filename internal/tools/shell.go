package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/torusbreakdown/marvin/internal/agent"
	"github.com/torusbreakdown/marvin/internal/sandbox"
)

const (
	shellMaxOutputBytes = 64_000
	shellDefaultTimeout = 30 * time.Second
)

// ShellConfig controls the shell tool's working directory and logger.
type ShellConfig struct {
	Workspace string
	Logger    *slog.Logger
}

// ShellTool runs a command through /bin/sh with a scrubbed environment,
// a bounded output buffer, and an explicit timeout — per §5's subprocess
// invariants shared with the git tool.
type ShellTool struct {
	box    sandbox.PathSandbox
	logger *slog.Logger
}

// NewShellTool returns a shell tool rooted at cfg.Workspace.
func NewShellTool(cfg ShellConfig) *ShellTool {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ShellTool{box: sandbox.NewPathSandbox(cfg.Workspace), logger: logger}
}

func (t *ShellTool) Name() string { return "shell" }
func (t *ShellTool) Description() string {
	return "Run a shell command in the workspace with a timeout and bounded output."
}

func (t *ShellTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "Command to run via /bin/sh -c."},
			"timeout_seconds": {"type": "number", "description": "Timeout in seconds (default: 30, max: 300)."}
		},
		"required": ["command"]
	}`)
}

func (t *ShellTool) Category() agent.ToolCategory { return agent.CategoryCoding }

func (t *ShellTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in struct {
		Command        string  `json:"command"`
		TimeoutSeconds float64 `json:"timeout_seconds"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return agent.ToolArgsError("shell", err.Error()), nil
	}
	if strings.TrimSpace(in.Command) == "" {
		return agent.ToolArgsError("shell", "command is required"), nil
	}

	timeout := shellDefaultTimeout
	if in.TimeoutSeconds > 0 {
		timeout = time.Duration(in.TimeoutSeconds * float64(time.Second))
		if timeout > 5*time.Minute {
			timeout = 5 * time.Minute
		}
	}

	cwd, err := t.box.Resolve(".")
	if err != nil {
		return agent.SandboxViolationError(err.Error()), nil
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", in.Command)
	cmd.Dir = cwd
	cmd.Env = sandbox.ScrubbedEnv(nil)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = newCappedWriter(&stdout, shellMaxOutputBytes)
	cmd.Stderr = newCappedWriter(&stderr, shellMaxOutputBytes)

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	t.logger.Info("shell command executed", "command", in.Command, "duration", elapsed, "error", errString(runErr))

	if runCtx.Err() == context.DeadlineExceeded {
		return &agent.ToolResult{
			Content: fmt.Sprintf("command timed out after %s\nstdout:\n%s\nstderr:\n%s", timeout, stdout.String(), stderr.String()),
			IsError: true,
		}, nil
	}

	exitCode := 0
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if runErr != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("could not run command: %s", runErr), IsError: true}, nil
	}

	result := fmt.Sprintf("exit code: %d\nstdout:\n%s", exitCode, stdout.String())
	if stderr.Len() > 0 {
		result += fmt.Sprintf("\nstderr:\n%s", stderr.String())
	}
	return &agent.ToolResult{Content: result, IsError: exitCode != 0}, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// cappedWriter discards writes past a byte cap instead of growing the
// underlying buffer without bound — the same invariant as §5's "maximum
// output buffer" for every spawned subprocess.
type cappedWriter struct {
	buf *bytes.Buffer
	max int
}

func newCappedWriter(buf *bytes.Buffer, max int) *cappedWriter {
	return &cappedWriter{buf: buf, max: max}
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	remaining := w.max - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}
