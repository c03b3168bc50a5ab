package chatbot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"MiniChat/internal/backend"
	"MiniChat/internal/cache"
	"MiniChat/internal/config"
	"MiniChat/internal/gateway"
	"MiniChat/internal/indicator"
	"MiniChat/internal/render"
	"MiniChat/internal/session"
	"MiniChat/internal/store"
	"MiniChat/internal/telemetry"
)

// NewChatBot builds a ChatBot from resolved configuration, writing to out.
// The returned cleanup function flushes telemetry and closes the store and
// log file; it must be called even when the ChatBot is not run.
func NewChatBot(ctx context.Context, cfg config.Config, out *os.File) (*ChatBot, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	logger, logFile, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return nil, cleanup, fmt.Errorf("failed to initialize logger: %w", err)
	}
	closers = append(closers, func() { logFile.Close() })

	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}

	providers, err := telemetry.InitTelemetry(ctx, cfg.LogDir, cfg.Telemetry)
	if err != nil {
		logger.Warn("failed to initialize telemetry, continuing without it", "error", err)
		providers = telemetry.Noop()
	}
	closers = append(closers, providers.Shutdown)

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	provider, err := backend.New(ctx, cfg, httpClient, logger)
	if err != nil {
		return nil, cleanup, fmt.Errorf("failed to create backend: %w", err)
	}

	gwOpts := []gateway.Option{
		gateway.WithRetry(cfg.MaxAttempts, cfg.RetryDelay),
		gateway.WithLogger(logger),
		gateway.WithTelemetry(providers.Tracer, providers.Meter),
	}
	if cfg.CacheEnabled {
		gwOpts = append(gwOpts, gateway.WithCache(cache.New(cfg.CacheTTL)))
	}
	gw := gateway.New(provider, gwOpts...)

	var st store.Store
	switch cfg.Store {
	case config.StoreSQLite:
		sqlStore, err := store.OpenSQLite(cfg.DBPath, logger)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to initialize database: %w", err)
		}
		closers = append(closers, func() { sqlStore.Close() })
		st = sqlStore
	default:
		st = store.NewFileStore(cfg.SessionDir, logger)
	}

	plain := cfg.Plain || !render.IsTerminal(out)
	renderer := render.New(out, plain, render.TerminalWidth(out))

	model := cfg.ResolvedModel()
	newSession := func() *session.Session {
		s := session.New(cfg.SystemPrompt, cfg.Backend, model, time.Now().Round(0))
		logger.Info("created new session", "session_id", s.ID, "backend", cfg.Backend, "model", model)
		return s
	}
	sess, err := store.LoadOrNew(ctx, st, cfg.Resume, newSession)
	if err != nil {
		logger.Warn("failed to load session, creating new one", "location", cfg.Resume, "error", err)
		renderer.Error((&PersistenceError{Op: "load", Err: err}).Error() + "; starting a new session")
	} else if cfg.Resume != "" {
		// The resumed conversation continues with the configured model.
		sess.Backend = cfg.Backend
		sess.Model = model
	}

	deps := Deps{
		History:   session.NewHistory(sess),
		Gateway:   gw,
		Store:     st,
		Renderer:  renderer,
		Logger:    logger,
		Budget:    cfg.ContextBudget,
		AutoSave:  cfg.AutoSave,
		Indicator: indicator.New(out, plain),
	}
	return New(deps), cleanup, nil
}

// IsAuthFailure reports whether err closed the session because the model API
// rejected the credential.
func IsAuthFailure(err error) bool {
	var failure *gateway.Failure
	return errors.As(err, &failure) && failure.Kind == gateway.Authentication
}
