package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/vk/qorgraph/internal/ctxlog"
	"github.com/vk/qorgraph/internal/progress"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	logger     *slog.Logger
	config     *Config
	ctx        context.Context
	runID      string
	tracker    *progress.Tracker
	httpServer *http.Server
	// healthAddr is the address the health check server listens on.
	healthAddr string
}

// NewApp is the constructor for the main application. Each App gets its own
// logger and run id.
func NewApp(outW io.Writer, cfg *Config) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	runID := uuid.NewString()
	logger = logger.With("run_id", runID)
	logger.Debug("Logger configured successfully.")

	return &App{
		outW:    outW,
		logger:  logger,
		config:  cfg,
		ctx:     ctxlog.WithLogger(context.Background(), logger),
		runID:   runID,
		tracker: progress.NewTracker(runID),
	}
}

// RunID identifies this App's run in samples, the ledger and progress events.
func (app *App) RunID() string { return app.runID }

// Tracker exposes the in-memory progress of the run.
func (app *App) Tracker() *progress.Tracker { return app.tracker }

// HealthAddr is the address of the health check server, or "" when it is
// not running.
func (app *App) HealthAddr() string { return app.healthAddr }

// Close shuts down the health check server.
func (app *App) Close() error {
	return app.closeHealthCheckServer()
}
