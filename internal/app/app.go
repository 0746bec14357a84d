// Package app wires configuration, the session controller and the API
// server into one runnable application.
package app

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sidenote-ai/advisor/config"
	"github.com/sidenote-ai/advisor/internal/metrics"
	"github.com/sidenote-ai/advisor/internal/server"
	"github.com/sidenote-ai/advisor/liveassist"
)

// App owns the application's top-level components.
type App struct {
	cfg     *config.Config
	service *liveassist.Service
	server  *server.Server
}

// New assembles the application from configuration.
func New(cfg *config.Config) *App {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	service := liveassist.NewService(liveassist.Config{
		APIKey:       cfg.APIKey,
		Model:        cfg.Model,
		Knowledge:    cfg.Knowledge,
		MicDevice:    cfg.MicDevice,
		SystemDevice: cfg.SystemDevice,
		SystemBoost:  cfg.SystemBoost,
		FFmpegPath:   cfg.FFmpegPath,
		Metrics:      m,
	})

	return &App{
		cfg:     cfg,
		service: service,
		server:  server.New(cfg.ListenAddr, service, registry),
	}
}

// Run serves the API until ctx is cancelled, then stops any live session.
func (a *App) Run(ctx context.Context) error {
	err := a.server.Run(ctx)
	a.service.Stop()
	slog.Info("shut down")
	return err
}

// Service returns the session controller.
func (a *App) Service() *liveassist.Service { return a.service }
