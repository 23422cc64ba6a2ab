package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"ConvoChat/internal/archive"
	"ConvoChat/internal/backend"
	"ConvoChat/internal/chatbot"
	"ConvoChat/internal/config"
	"ConvoChat/internal/session"
	"ConvoChat/internal/telemetry"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// App holds the process-wide collaborators shared by every session
type App struct {
	Config    config.Config
	ConfigErr error
	Logger    *slog.Logger
	Tracer    trace.Tracer
	Meter     metric.Meter
	Client    backend.Completer
	Archive   *archive.Archive

	closers []func()
}

// New initializes logging, telemetry, the transcript archive, and the
// completion client. A configuration error is kept in ConfigErr rather than
// returned so each shell can decide how to surface it.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, logFile, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &App{Config: cfg, Logger: logger}
	a.closers = append(a.closers, func() { closeQuietly(logFile) })

	tracer, meter, shutdown, err := telemetry.InitTelemetry(ctx, cfg.LogDir)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.Tracer, a.Meter = tracer, meter
	a.closers = append(a.closers, shutdown)

	if cfg.ArchivePath != "" {
		arc, err := archive.Open(cfg.ArchivePath)
		if err != nil {
			// the archive is optional, the conversation works without it
			logger.Warn("failed to open transcript archive, continuing without it", "path", cfg.ArchivePath, "error", err)
		} else {
			a.Archive = arc
			a.closers = append(a.closers, func() { closeQuietly(arc) })
		}
	}

	a.ConfigErr = cfg.Validate()
	if a.ConfigErr != nil {
		logger.Warn("configuration is not usable", "error", a.ConfigErr)
	}

	client, err := backend.NewClient(cfg, logger, tracer, meter)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize completion client: %w", err)
	}
	a.Client = client

	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}
	return a, nil
}

// Conversation builds the turn controller for sess
func (a *App) Conversation(sess *session.Session) (*chatbot.Conversation, error) {
	opts := chatbot.Options{
		Logger:    a.Logger,
		Tracer:    a.Tracer,
		Meter:     a.Meter,
		ConfigErr: a.ConfigErr,
	}
	// a nil *archive.Archive must not become a non-nil Recorder
	if a.Archive != nil {
		opts.Archive = a.Archive
	}
	return chatbot.New(sess, a.Client, opts)
}

// Close releases everything New opened, most recent first
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		slog.Error("failed to close resource", "error", err)
	}
}
