package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/torusbreakdown/marvin/internal/agent"
	"github.com/torusbreakdown/marvin/internal/sandbox"
)

// FilesConfig controls the file tools' workspace root and read cap.
type FilesConfig struct {
	Workspace    string
	MaxReadBytes int
}

func (c FilesConfig) sandbox() sandbox.PathSandbox {
	return sandbox.NewPathSandbox(c.Workspace)
}

// ReadFileTool reads a file from the sandboxed workspace.
type ReadFileTool struct {
	box      sandbox.PathSandbox
	maxBytes int
}

// NewReadFileTool returns a read_file tool rooted at cfg.Workspace.
func NewReadFileTool(cfg FilesConfig) *ReadFileTool {
	limit := cfg.MaxReadBytes
	if limit <= 0 {
		limit = 200_000
	}
	return &ReadFileTool{box: cfg.sandbox(), maxBytes: limit}
}

func (t *ReadFileTool) Name() string        { return "read_file" }
func (t *ReadFileTool) Description() string { return "Read a file from the workspace." }

func (t *ReadFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to the file, relative to the workspace."}
		},
		"required": ["path"]
	}`)
}

func (t *ReadFileTool) Category() agent.ToolCategory { return agent.CategoryReadOnly }

func (t *ReadFileTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return agent.ToolArgsError("read_file", err.Error()), nil
	}
	if strings.TrimSpace(in.Path) == "" {
		return agent.ToolArgsError("read_file", "path is required"), nil
	}

	resolved, err := t.box.Resolve(in.Path)
	if err != nil {
		return agent.SandboxViolationError(err.Error()), nil
	}

	f, err := os.Open(resolved)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("could not open %s: %s", in.Path, err), IsError: true}, nil
	}
	defer f.Close()

	buf, err := io.ReadAll(io.LimitReader(f, int64(t.maxBytes)+1))
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("could not read %s: %s", in.Path, err), IsError: true}, nil
	}
	truncated := len(buf) > t.maxBytes
	if truncated {
		buf = buf[:t.maxBytes]
	}
	content := string(buf)
	if truncated {
		content += "\n... (truncated)"
	}
	return &agent.ToolResult{Content: content}, nil
}

// WriteFileTool writes a file within the sandboxed workspace.
type WriteFileTool struct {
	box sandbox.PathSandbox
}

// NewWriteFileTool returns a write_file tool rooted at cfg.Workspace.
func NewWriteFileTool(cfg FilesConfig) *WriteFileTool {
	return &WriteFileTool{box: cfg.sandbox()}
}

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Write content to a file in the workspace, creating parent directories as needed."
}

func (t *WriteFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to write, relative to the workspace."},
			"content": {"type": "string", "description": "File contents to write."},
			"append": {"type": "boolean", "description": "Append instead of overwrite. Default: false."}
		},
		"required": ["path", "content"]
	}`)
}

func (t *WriteFileTool) Category() agent.ToolCategory { return agent.CategoryCoding }

func (t *WriteFileTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in struct {
		Path    string `json:"path"`
		Content string `json:"content"`
		Append  bool   `json:"append"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return agent.ToolArgsError("write_file", err.Error()), nil
	}
	if strings.TrimSpace(in.Path) == "" {
		return agent.ToolArgsError("write_file", "path is required"), nil
	}

	resolved, err := t.box.Resolve(in.Path)
	if err != nil {
		return agent.SandboxViolationError(err.Error()), nil
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("could not create directory for %s: %s", in.Path, err), IsError: true}, nil
	}

	flags := os.O_CREATE | os.O_WRONLY
	if in.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(resolved, flags, 0o644)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("could not open %s: %s", in.Path, err), IsError: true}, nil
	}
	defer f.Close()

	n, err := f.WriteString(in.Content)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("could not write %s: %s", in.Path, err), IsError: true}, nil
	}

	return &agent.ToolResult{Content: fmt.Sprintf("wrote %d bytes to %s", n, in.Path)}, nil
}
