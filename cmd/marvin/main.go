// Package main provides the CLI entry point for Marvin, a terse,
// tool-using LLM agent.
//
// # Basic Usage
//
// Run interactively:
//
//	marvin
//
// Run a single prompt and exit:
//
//	marvin --non-interactive --prompt "what's in this directory?"
//
// A bare trailing argument is treated as the prompt when --prompt is
// absent:
//
//	marvin --non-interactive summarize the README
//
// # Environment Variables
//
//   - MARVIN_CONFIG: path to the YAML configuration file
//   - MARVIN_PROFILE: named profile to load (default: "default")
//   - OPENAI_API_KEY, GROQ_API_KEY, GEMINI_API_KEY, GITHUB_TOKEN: provider credentials
//   - OTEL_EXPORTER_OTLP_ENDPOINT: enables trace export when set
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/torusbreakdown/marvin/internal/agent"
	"github.com/torusbreakdown/marvin/internal/agent/providers"
	"github.com/torusbreakdown/marvin/internal/config"
	"github.com/torusbreakdown/marvin/internal/observability"
	"github.com/torusbreakdown/marvin/internal/profile"
	"github.com/torusbreakdown/marvin/internal/session"
	"github.com/torusbreakdown/marvin/internal/timers"
	"github.com/torusbreakdown/marvin/internal/tools"
	"github.com/torusbreakdown/marvin/internal/usage"
)

// Build information, populated by ldflags during release builds.
var (
	version = "dev"
	commit  = "none"
)

// cliFlags collects every flag in the CLI surface. A struct (rather
// than package-level vars) keeps buildRootCmd testable without global
// state leaking between invocations.
type cliFlags struct {
	nonInteractive bool
	workingDir     string
	designFirst    bool
	prompt         string
	ntfyTopic      string
	provider       string
	model          string
	plain          bool
	curses         bool
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd(logger)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildRootCmd assembles the single root command carrying the full flag
// surface. There is no subcommand tree — every invocation is one
// conversation, interactive or single-shot.
func buildRootCmd(logger *slog.Logger) *cobra.Command {
	var flags cliFlags

	cmd := &cobra.Command{
		Use:           "marvin [prompt...]",
		Short:         "Marvin - a terse, tool-using LLM agent",
		Version:       fmt.Sprintf("%s (commit %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.prompt == "" && len(args) > 0 {
				flags.prompt = strings.Join(args, " ")
			}
			return run(cmd.Context(), &flags, logger)
		},
	}

	cmd.Flags().BoolVar(&flags.nonInteractive, "non-interactive", false, "Run a single prompt and exit instead of starting an interactive session")
	cmd.Flags().StringVar(&flags.workingDir, "working-dir", "", "Workspace directory the file/shell/git tools are sandboxed to (default: current directory)")
	cmd.Flags().BoolVar(&flags.designFirst, "design-first", false, "Require the model to lay out a plan before any mutating tool call")
	cmd.Flags().StringVar(&flags.prompt, "prompt", "", "Prompt to submit. A bare trailing argument is used when this is absent.")
	cmd.Flags().StringVar(&flags.ntfyTopic, "ntfy", "", "ntfy.sh topic to notify when a non-interactive run completes")
	cmd.Flags().StringVar(&flags.provider, "provider", "", "LLM provider: copilot, gemini, groq, ollama, or openai (default: config provider, else openai)")
	cmd.Flags().StringVar(&flags.model, "model", "", "Model id passed to the provider (default: provider/config default)")
	cmd.Flags().BoolVar(&flags.plain, "plain", false, "Force the plain-text interactive renderer")
	cmd.Flags().BoolVar(&flags.curses, "curses", false, "Request the curses interactive renderer (falls back to plain; no terminal-UI dependency is vendored)")

	return cmd
}

// run wires config, provider, tool registry, and session manager, then
// dispatches to the non-interactive or interactive driver. It always
// emits the MARVIN_COST line before returning, on both the success and
// the error path, per the non-interactive output contract — the same
// accounting line is useful run-over-run even in interactive mode, so it
// is not gated on flags.nonInteractive alone. The MARVIN_COST line is
// printed only after doRun's deferred cleanup (provider teardown, tracer
// shutdown, timer registry close) has already run, so a log line
// emitted during teardown can never land after it on stderr.
func run(ctx context.Context, flags *cliFlags, logger *slog.Logger) error {
	tracker, runErr := doRun(ctx, flags, logger)
	return reportAndCost(tracker, runErr)
}

// doRun wires config, provider, tool registry, and session manager, then
// dispatches to the non-interactive or interactive driver, returning the
// tracker (nil if setup failed before one was built) and the run's
// error.
func doRun(ctx context.Context, flags *cliFlags, logger *slog.Logger) (*usage.Tracker, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, reportError(fmt.Errorf("load config: %w", err))
	}

	workspace := strings.TrimSpace(flags.workingDir)
	if workspace == "" {
		workspace = cfg.Workspace
	}
	if workspace == "" {
		workspace = "."
	}

	profileName := strings.TrimSpace(os.Getenv("MARVIN_PROFILE"))
	if profileName == "" {
		profileName, _ = profile.ReadLastProfile()
	}
	store := profile.Open(profileName)
	defer func() { _ = profile.WriteLastProfile(store.Name) }()

	tracker := usage.NewTracker(usage.DefaultTrackerConfig())
	usageStore := usage.NewStore(profile.ProfileDir(store.Name))

	providerName := strings.ToLower(strings.TrimSpace(flags.provider))
	if providerName == "" {
		providerName = strings.ToLower(strings.TrimSpace(cfg.Provider))
	}
	if providerName == "" {
		providerName = "openai"
	}
	llmProvider, err := buildProvider(providerName, cfg)
	if err != nil {
		return tracker, reportError(fmt.Errorf("configure provider %s: %w", providerName, err))
	}
	defer llmProvider.Destroy()

	metrics := observability.NewMetrics()
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "marvin",
		ServiceVersion: version,
		Endpoint:       strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		EnableInsecure: true,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = shutdownTracer(shutdownCtx)
	}()

	timerRegistry := timers.NewRegistry(func(t timers.Timer) {
		logger.Info("timer fired", "id", t.ID, "label", t.Label)
	})
	defer timerRegistry.Close()

	registry := buildToolRegistry(workspace, logger, timerRegistry)

	model := strings.TrimSpace(flags.model)
	if model == "" {
		model = cfg.Model
	}

	loopConfig := agent.DefaultLoopConfig()
	loopConfig.Metrics = metrics
	loopConfig.Tracer = tracer
	loopConfig.ExecConfig.Metrics = metrics
	loopConfig.ExecConfig.Tracer = tracer

	mgr := session.NewManager(session.Config{
		Provider:     llmProvider,
		Registry:     registry,
		LoopConfig:   loopConfig,
		ProfileStore: store,
		UsageStore:   usageStore,
		Tracker:      tracker,
		Model:        model,
		CodingMode:   cfg.CodingMode,
		DesignFirst:  flags.designFirst,
		Logger:       logger,
		Metrics:      metrics,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		mgr.Cancel()
	}()

	if flags.nonInteractive {
		return tracker, runNonInteractive(ctx, mgr, flags, logger)
	}
	return tracker, runInteractive(ctx, mgr, flags, logger)
}

// reportError writes the Error:-prefixed stderr line §6 requires and
// returns err unchanged, so call sites can wrap a return statement
// instead of duplicating the print.
func reportError(err error) error {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	return err
}

func loadConfig() (*config.Config, error) {
	path := strings.TrimSpace(os.Getenv("MARVIN_CONFIG"))
	if path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, ".marvin", "marvin.yaml")
		}
	}
	return config.Load(path)
}

// buildProvider dispatches on name, resolving API keys from the config
// file first and the process environment second. gemini and groq both
// speak the OpenAI-compatible chat completions wire format against a
// fixed vendor base URL, so they reuse providers.NewOpenAICompatibleProvider
// rather than needing a bespoke client.
func buildProvider(name string, cfg *config.Config) (agent.LLMProvider, error) {
	entry := cfg.Providers[name]

	switch name {
	case "openai":
		apiKey := firstNonEmpty(entry.APIKey, os.Getenv("OPENAI_API_KEY"))
		if entry.BaseURL != "" {
			return providers.NewOpenAICompatibleProvider("openai", apiKey, entry.BaseURL), nil
		}
		return providers.NewOpenAIProvider(apiKey), nil

	case "copilot":
		token := firstNonEmpty(entry.APIKey, os.Getenv("GITHUB_TOKEN"))
		return providers.NewCopilotProvider(token)

	case "ollama":
		return providers.NewOllamaProvider(providers.LocalServerConfig{BaseURL: entry.BaseURL}), nil

	case "llama-server":
		return providers.NewLlamaServerProvider(providers.LocalServerConfig{BaseURL: entry.BaseURL}), nil

	case "groq":
		apiKey := firstNonEmpty(entry.APIKey, os.Getenv("GROQ_API_KEY"))
		baseURL := firstNonEmpty(entry.BaseURL, "https://api.groq.com/openai/v1")
		return providers.NewOpenAICompatibleProvider("groq", apiKey, baseURL), nil

	case "gemini":
		apiKey := firstNonEmpty(entry.APIKey, os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY"))
		baseURL := firstNonEmpty(entry.BaseURL, "https://generativelanguage.googleapis.com/v1beta/openai")
		return providers.NewOpenAICompatibleProvider("gemini", apiKey, baseURL), nil

	default:
		return nil, fmt.Errorf("unsupported provider %q (want copilot, gemini, groq, ollama, or openai)", name)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func buildToolRegistry(workspace string, logger *slog.Logger, timerRegistry *timers.Registry) *agent.ToolRegistry {
	registry := agent.NewToolRegistry()
	filesCfg := tools.FilesConfig{Workspace: workspace}

	registry.Register(tools.NewEchoTool())
	registry.Register(tools.NewReadFileTool(filesCfg))
	registry.Register(tools.NewWriteFileTool(filesCfg))
	registry.Register(tools.NewApplyPatchTool(filesCfg))
	registry.Register(tools.NewShellTool(tools.ShellConfig{Workspace: workspace, Logger: logger}))
	registry.Register(tools.NewGitTool(tools.GitConfig{Workspace: workspace}))
	registry.Register(tools.NewWebTool(tools.WebConfig{}))
	registry.Register(tools.NewTimerTool(timerRegistry))

	return registry
}

// runNonInteractive implements §6's non-interactive output contract:
// raw streamed text on stdout, tool-call announcements as
// "  🔧 name1, name2\n" lines on stdout, and Error:-prefixed failures on
// stderr. The caller is responsible for the trailing MARVIN_COST line.
func runNonInteractive(ctx context.Context, mgr *session.Manager, flags *cliFlags, logger *slog.Logger) error {
	prompt := strings.TrimSpace(flags.prompt)
	if prompt == "" {
		return reportError(fmt.Errorf("a prompt is required in non-interactive mode"))
	}

	cb := agent.LoopCallbacks{
		OnDelta: func(text string) {
			fmt.Fprint(os.Stdout, text)
		},
		OnToolStart: func(names []string) {
			fmt.Fprintf(os.Stdout, "  🔧 %s\n", strings.Join(names, ", "))
		},
	}

	result, err := mgr.Submit(ctx, prompt, cb)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		notifyNtfy(flags.ntfyTopic, fmt.Sprintf("marvin run failed: %s", err), logger)
		return err
	}
	fmt.Fprintln(os.Stdout)
	notifyNtfy(flags.ntfyTopic, result.Message.Content, logger)
	return nil
}

// runInteractive reads prompts from stdin in a loop until EOF, printing
// each assistant response. A bare leading prompt (flag or trailing args)
// is submitted first, before the loop starts reading more input.
func runInteractive(ctx context.Context, mgr *session.Manager, flags *cliFlags, logger *slog.Logger) error {
	if flags.curses {
		logger.Warn("curses renderer requested but not available in this build; falling back to plain text")
	}

	cb := agent.LoopCallbacks{
		OnDelta: func(text string) {
			fmt.Fprint(os.Stdout, text)
		},
		OnToolStart: func(names []string) {
			fmt.Fprintf(os.Stdout, "  🔧 %s\n", strings.Join(names, ", "))
		},
	}

	submit := func(prompt string) {
		result, err := mgr.Submit(ctx, prompt, cb)
		switch {
		case errors.Is(err, agent.ErrBusy):
			fmt.Println("busy: still processing the previous request")
		case err != nil:
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		default:
			fmt.Fprintln(os.Stdout)
			_ = result
		}
	}

	if prompt := strings.TrimSpace(flags.prompt); prompt != "" {
		submit(prompt)
	}

	fmt.Fprintln(os.Stdout, "marvin ready. Ctrl-D to exit.")
	reader := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stdout, "> ")
		if !reader.Scan() {
			break
		}
		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}
		submit(line)
	}
	return reader.Err()
}

// notifyNtfy posts message to https://ntfy.sh/<topic> when topic is
// non-empty. Failures are logged, not propagated — a missing
// notification should never turn a completed run into an error exit.
func notifyNtfy(topic, message string, logger *slog.Logger) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post("https://ntfy.sh/"+topic, "text/plain", strings.NewReader(message))
	if err != nil {
		logger.Warn("ntfy notification failed", "topic", topic, "error", err)
		return
	}
	_ = resp.Body.Close()
}

// costReport is the JSON shape of the trailing MARVIN_COST stderr line.
type costReport struct {
	SessionCost float64            `json:"session_cost"`
	LLMTurns    int                `json:"llm_turns"`
	ModelTurns  map[string]int     `json:"model_turns"`
	ModelCost   map[string]float64 `json:"model_cost"`
}

// reportAndCost prints the MARVIN_COST line — derived from tracker, or
// zeroed if tracker is nil because setup failed before one was built —
// then returns runErr unchanged so the caller's exit code reflects it.
func reportAndCost(tracker *usage.Tracker, runErr error) error {
	report := costReport{ModelTurns: map[string]int{}, ModelCost: map[string]float64{}}
	if tracker != nil {
		report.SessionCost = tracker.TotalCost()
		report.LLMTurns = tracker.TotalTurns()
		report.ModelTurns, report.ModelCost = tracker.ModelBreakdown()
	}
	encoded, err := json.Marshal(report)
	if err != nil {
		encoded = []byte(`{"session_cost":0,"llm_turns":0,"model_turns":{},"model_cost":{}}`)
	}
	fmt.Fprintf(os.Stderr, "MARVIN_COST:%s\n", encoded)
	return runErr
}
