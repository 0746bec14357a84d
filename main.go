// Package main runs the live call advisor: it captures the local microphone
// and a system loopback source, streams the mixed audio to a live AI
// session, and serves the resulting conversation history and suggestions to
// a local presentation layer.
//
// Usage:
//
//	advisor [-config path/to/config.json] [-listen addr]
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sidenote-ai/advisor/config"
	"github.com/sidenote-ai/advisor/internal/app"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json in the user config dir)")
	listenAddr := flag.String("listen", "", "API listen address (overrides config)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", version, "commit", commit)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting advisor", "version", version, "listen", cfg.ListenAddr, "model", cfg.Model)
	if err := app.New(cfg).Run(ctx); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
