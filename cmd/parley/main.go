// Parley is a conversational agent daemon.
//
// It persists multi-turn conversations in SQLite, forwards each user
// turn to an OpenAI-compatible completion backend, and executes any
// tools the model requests until the model settles on an answer. New
// conversations are named automatically from their opening message.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	parley serve             Start the API server
//	parley init [dir]        Initialize a working directory with a default config
//	parley chat              Interactive terminal chat against a running server
//	parley list              List conversation names on a running server
//	parley version           Print version and build information
//	parley -o json version   Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/parleyhq/parley/internal/agent"
	"github.com/parleyhq/parley/internal/api"
	"github.com/parleyhq/parley/internal/buildinfo"
	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/fetch"
	"github.com/parleyhq/parley/internal/llm"
	"github.com/parleyhq/parley/internal/store"
	"github.com/parleyhq/parley/internal/tools"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the parley command. All OS-level
// dependencies are injected as parameters so tests can drive the whole
// lifecycle. Arguments are parsed by hand: the flag package relies on
// package-level globals, and the surface here is small enough that
// manual parsing is clearer than bringing in a CLI framework.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var serverURL string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-server" && i+1 < len(args):
			serverURL = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-server="):
			serverURL = strings.TrimPrefix(args[i], "-server=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}
	if serverURL == "" {
		serverURL = "http://localhost:8000"
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "chat":
		return runChat(ctx, stdin, stdout, serverURL)
	case "list":
		return runList(ctx, stdout, serverURL, outputFmt)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	// Print fields in a stable order for human readability.
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Parley - Conversational Agent Daemon")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: parley [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  init [dir]   Initialize a working directory with a default config (default: .)")
	fmt.Fprintln(w, "  chat         Interactive terminal chat against a running server")
	fmt.Fprintln(w, "  list         List conversation names on a running server")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -server <url>     Server URL for chat/list (default: http://localhost:8000)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/parley/config.yaml, /etc/parley/config.yaml")
	return nil
}

// runServe handles the "parley serve" subcommand. It loads config,
// opens the conversation database, builds the completion client and
// tool registry, starts the API server, and blocks until a shutdown
// signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting Parley", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that the desired level is known. The
	// initial Info-level logger covers only the startup banner.
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"provider", cfg.Provider.Kind,
		"model", cfg.Provider.Model,
	)

	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open conversation database %s: %w", cfg.DatabasePath, err)
	}
	defer st.Close()
	logger.Info("conversation database opened", "path", cfg.DatabasePath)

	client, err := newLLMClient(cfg, logger)
	if err != nil {
		return err
	}

	registry := newToolRegistry(cfg, logger)

	loop := agent.NewLoop(logger, st, client, registry, agent.Config{
		Model:         cfg.Provider.Model,
		SystemPrompt:  cfg.Agent.SystemPrompt,
		MaxToolRounds: cfg.Agent.MaxToolRounds,
	})

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, loop, logger)

	// NotifyContext wraps the parent context so that SIGINT/SIGTERM
	// cancellation flows through the same ctx used by all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		_ = server.Shutdown(context.Background())
	}()

	if err := server.Start(ctx); err != nil && err != http.ErrServerClosed {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("Parley stopped")
	return nil
}

// newLLMClient builds the completion client from the configuration.
// Both supported providers speak the OpenAI chat-completions wire
// format; the provider kind only selects the default endpoint.
func newLLMClient(cfg *config.Config, logger *slog.Logger) (llm.Client, error) {
	baseURL := cfg.Provider.BaseURL
	if baseURL == "" {
		switch cfg.Provider.Kind {
		case "openai":
			baseURL = llm.DefaultOpenAIBaseURL
		case "ollama":
			baseURL = llm.DefaultOllamaBaseURL
		default:
			return nil, fmt.Errorf("unknown provider kind: %q (expected openai or ollama)", cfg.Provider.Kind)
		}
	}
	logger.Info("completion client initialized", "base_url", baseURL, "model", cfg.Provider.Model)
	return llm.NewOpenAIClient(baseURL, cfg.Provider.APIKey, logger), nil
}

// newToolRegistry builds the tool registry from the configuration. All
// tools share one execution budget per dispatch.
func newToolRegistry(cfg *config.Config, logger *slog.Logger) *tools.Registry {
	timeout := tools.DefaultTimeout
	if cfg.PythonExec.TimeoutSec > 0 {
		timeout = time.Duration(cfg.PythonExec.TimeoutSec) * time.Second
	}
	registry := tools.NewRegistry(timeout)

	py := tools.NewPyExec(tools.PyExecConfig{
		Interpreter:    cfg.PythonExec.Interpreter,
		Timeout:        time.Duration(cfg.PythonExec.TimeoutSec) * time.Second,
		MaxOutputBytes: cfg.PythonExec.MaxOutputBytes,
	})
	registry.Register(py.Tool())

	if cfg.FetchEnabled() {
		registry.Register(fetch.New(cfg.WebFetch.MaxChars).Tool())
	}

	logger.Info("tool registry initialized", "tools", len(registry.Schemas()))
	return registry
}

// newLogger creates a structured text logger writing to w at the given
// level. All log output in Parley goes through slog; this helper
// standardizes the handler configuration across subcommands.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the YAML configuration file. If
// explicit is non-empty, that exact path is used (and must exist).
// Otherwise [config.FindConfig] searches the default locations.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
