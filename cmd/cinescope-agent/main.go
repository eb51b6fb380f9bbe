// Command cinescope-agent is an interactive terminal client for the
// Cinescope MCP server. It launches the server as a subprocess and routes
// questions through the LLM configured in the agent section of the config
// file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrWong99/cinescope/internal/agent"
	"github.com/MrWong99/cinescope/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "cinescope-agent: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "cinescope-agent: %v\n", err)
		}
		return 1
	}
	if cfg.Agent.Provider == "" || cfg.Agent.Model == "" {
		fmt.Fprintln(os.Stderr, "cinescope-agent: agent.provider and agent.model must be configured")
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// Diagnostics go to stderr; stdout is the conversation.
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Agent ─────────────────────────────────────────────────────────────────
	a, err := agent.New(cfg.Agent)
	if err != nil {
		slog.Error("failed to create agent", "err", err)
		return 1
	}

	// Without an explicit server_command, launch the server binary with the
	// same config file. This expects cinescope on PATH.
	command := cfg.Agent.ServerCommand
	if command == "" {
		command = "cinescope -config " + *configPath
	}

	slog.Info("launching MCP server", "command", command)
	if err := a.Connect(ctx, command); err != nil {
		slog.Error("failed to connect", "err", err)
		return 1
	}
	defer a.Close()

	fmt.Printf("Cinescope agent ready — provider %s, model %s. Type \"exit\" to quit.\n\n",
		cfg.Agent.Provider, cfg.Agent.Model)

	if err := a.Run(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
