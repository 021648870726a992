package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool parameter limits to prevent resource exhaustion.
const (
	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 256

	// MaxToolParamsSize is the maximum size of tool parameters JSON (10MB).
	MaxToolParamsSize = 10 << 20

	// patchBeginMarker and patchUpdateMarker are the diff-format
	// conventions some providers emit verbatim instead of a JSON object
	// when calling a patch-applying tool.
	patchBeginMarker  = "*** Begin Patch"
	patchUpdateMarker = "*** Update File"
)

// ToolRegistry manages available tools with thread-safe registration,
// category gating, and the argument-deserialization algorithm that turns
// a provider's raw tool-call-arguments blob into validated parameters.
type ToolRegistry struct {
	mu          sync.RWMutex
	tools       map[string]Tool
	schemaMu    sync.Mutex
	schemaCache map[string]*jsonschema.Schema
}

// NewToolRegistry creates a new empty tool registry ready for tool registration.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:       make(map[string]Tool),
		schemaCache: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool to the registry by its name. If a tool with the
// same name already exists, it is replaced.
func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Unregister removes a tool from the registry by name.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a tool by name and a boolean indicating if it was found.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// GetAll returns every registered tool, gated by the given mode.
func (r *ToolRegistry) GetAll(mode ModePolicy) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		if mode.Allows(t.Category()) {
			tools = append(tools, t)
		}
	}
	return tools
}

// WireSchemas returns the wire-format tool definitions for every tool
// the mode admits, for passing to a provider's CompletionRequest.Tools.
func (r *ToolRegistry) WireSchemas(mode ModePolicy) []ToolDefinition {
	tools := r.GetAll(mode)
	defs := make([]ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		}
	}
	return defs
}

// ModePolicy decides which tool categories a session's current mode
// admits. codingMode mirrors spec §4.3's ctx.codingMode gate: when
// false, category-coding tools are refused.
type ModePolicy struct {
	CodingMode bool
}

// Allows reports whether a tool of the given category may run under
// this policy. "always" is always permitted; "readonly" follows
// "always" (no mode currently restricts it further); "coding" requires
// CodingMode.
func (m ModePolicy) Allows(category ToolCategory) bool {
	switch category {
	case CategoryAlways, CategoryReadOnly:
		return true
	case CategoryCoding:
		return m.CodingMode
	default:
		return false
	}
}

// Execute deserializes rawArgs per the provider argument-deserialization
// algorithm, validates gating, and runs the tool. The returned
// *ToolResult is always populated (possibly with IsError set) rather
// than returning a bare error — a validation or handler failure must
// become a tool-result message the model can react to, not an exception
// that aborts the loop.
func (r *ToolRegistry) Execute(ctx context.Context, mode ModePolicy, name string, rawArgs json.RawMessage) (*ToolResult, error) {
	if len(name) > MaxToolNameLength {
		return errResult(fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength)), nil
	}
	if len(rawArgs) > MaxToolParamsSize {
		return errResult(fmt.Sprintf("tool parameters exceed maximum size of %d bytes", MaxToolParamsSize)), nil
	}

	tool, ok := r.Get(name)
	if !ok {
		return errResult("tool not found: " + name), nil
	}

	if !mode.Allows(tool.Category()) {
		return errResult(fmt.Sprintf("tool %q is not available in the current mode", name)), nil
	}

	params, err := DeserializeToolArgs(rawArgs)
	if err != nil {
		prefix := string(rawArgs)
		if len(prefix) > 80 {
			prefix = prefix[:80]
		}
		return errResult(fmt.Sprintf("invalid arguments for %s: %s (input: %q)", name, err, prefix)), nil
	}

	if err := r.validateParams(tool, params); err != nil {
		return errResult(fmt.Sprintf("arguments for %s failed schema validation: %s", name, err)), nil
	}

	result, execErr := tool.Execute(ctx, params)
	if execErr != nil {
		return errResult(fmt.Sprintf("Error executing %s: %s", name, execErr)), nil
	}
	if result == nil {
		return errResult(fmt.Sprintf("tool %s returned no result", name)), nil
	}
	return result, nil
}

// validateParams compiles (and caches) each tool's declared JSON Schema
// on first use and validates the deserialized params against it. A tool
// whose Schema() doesn't compile is treated as having no schema (the
// patch-sniff convention in DeserializeToolArgs deliberately produces
// object shapes the declared schema may not anticipate for every tool,
// so a compile failure degrades to "unchecked" rather than blocking
// every call).
func (r *ToolRegistry) validateParams(tool Tool, params json.RawMessage) error {
	schema, err := r.compiledSchema(tool)
	if err != nil || schema == nil {
		return nil
	}
	var doc any
	if err := json.Unmarshal(params, &doc); err != nil {
		return err
	}
	return schema.Validate(doc)
}

func (r *ToolRegistry) compiledSchema(tool Tool) (*jsonschema.Schema, error) {
	r.schemaMu.Lock()
	defer r.schemaMu.Unlock()
	if cached, ok := r.schemaCache[tool.Name()]; ok {
		return cached, nil
	}
	compiled, err := jsonschema.CompileString(tool.Name(), string(tool.Schema()))
	if err != nil {
		r.schemaCache[tool.Name()] = nil
		return nil, err
	}
	r.schemaCache[tool.Name()] = compiled
	return compiled, nil
}

// DeserializeToolArgs implements the argument-deserialization algorithm:
// a leading "*** Begin Patch" / "*** Update File" blob is routed as
// {"patch": rawArgs} for the patch-applying tool; otherwise the input is
// parsed as JSON, with one re-parse allowed when the first parse yields
// a double-stringified JSON string. The result must be a JSON object.
func DeserializeToolArgs(rawArgs json.RawMessage) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(rawArgs))
	// A bare string argument (not itself JSON-quoted) in the patch
	// convention is also accepted — providers sometimes send the patch
	// text unquoted.
	unquoted := trimmed
	if len(trimmed) >= 2 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(rawArgs, &s); err == nil {
			unquoted = s
		}
	}
	if strings.HasPrefix(unquoted, patchBeginMarker) || strings.HasPrefix(unquoted, patchUpdateMarker) {
		return json.Marshal(map[string]string{"patch": unquoted})
	}

	var first any
	if err := json.Unmarshal(rawArgs, &first); err != nil {
		return nil, fmt.Errorf("not valid JSON: %w", err)
	}

	switch v := first.(type) {
	case map[string]any:
		return rawArgs, nil
	case string:
		var second any
		if err := json.Unmarshal([]byte(v), &second); err != nil {
			return nil, fmt.Errorf("double-stringified argument did not parse as JSON: %w", err)
		}
		if _, ok := second.(map[string]any); !ok {
			return nil, fmt.Errorf("arguments must be a JSON object, got %T after re-parse", second)
		}
		return json.RawMessage(v), nil
	default:
		return nil, fmt.Errorf("arguments must be a JSON object, got %T", v)
	}
}

func errResult(msg string) *ToolResult {
	return &ToolResult{Content: msg, IsError: true}
}
