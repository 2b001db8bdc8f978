// Package app wires configuration into the store, the generation engine and
// a game session.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tatianab/mythic-paths/internal/config"
	"github.com/tatianab/mythic-paths/internal/engine"
	"github.com/tatianab/mythic-paths/internal/logging"
	"github.com/tatianab/mythic-paths/internal/session"
	"github.com/tatianab/mythic-paths/internal/store"
)

// App holds the long-lived pieces of a running game.
type App struct {
	Logger  *zap.Logger
	Store   store.Store
	Engine  *engine.Engine
	Session *session.Session

	backend *engine.GeminiBackend
	metrics *http.Server
}

// EngineOptions maps the configuration onto engine options.
func EngineOptions(cfg *config.Config, logger *zap.Logger) []engine.Option {
	r := cfg.Retry
	return []engine.Option{
		engine.WithLogger(logging.Component(logger, "engine")),
		engine.WithModels(engine.Models{
			Narrative: cfg.Models.Narrative,
			State:     cfg.Models.State,
			Character: cfg.Models.Character,
			Image:     cfg.Models.Image,
		}),
		engine.WithPolicies(engine.Policies{
			Narrative: engine.RetryPolicy{MaxRetries: r.NarrativeRetries, BaseDelay: r.NarrativeBaseDelay},
			State:     engine.RetryPolicy{MaxRetries: r.StateRetries, BaseDelay: r.StateBaseDelay},
			Image:     engine.RetryPolicy{MaxRetries: r.ImageRetries, BaseDelay: r.ImageBaseDelay},
		}),
		engine.WithPreloadStagger(cfg.PreloadStagger),
	}
}

// SessionOptions maps the configuration onto session options.
func SessionOptions(cfg *config.Config, logger *zap.Logger) []session.Option {
	opts := []session.Option{
		session.WithLogger(logging.Component(logger, "session")),
		session.WithAmbience(session.LogAmbience{Logger: logging.Component(logger, "ambience")}),
	}
	if cfg.Language != "" {
		opts = append(opts, session.WithLanguage(cfg.DefaultLanguage))
	}
	return opts
}

// New builds the application. st overrides the configured store when non-nil.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, st store.Store) (*App, error) {
	if st == nil {
		var err error
		st, err = store.Open(cfg.Store.Driver, cfg.Store.Path, cfg.Store.QuotaBytes)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}

	backend, err := engine.NewGeminiBackend(ctx, cfg.GeminiAPIKey)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	eng := engine.New(backend, EngineOptions(cfg, logger)...)

	a := &App{
		Logger:  logger,
		Store:   st,
		Engine:  eng,
		Session: session.New(eng, st, SessionOptions(cfg, logger)...),
		backend: backend,
	}
	if cfg.MetricsAddr != "" {
		a.serveMetrics(cfg.MetricsAddr)
	}
	return a, nil
}

func (a *App) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	a.metrics = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	a.Logger.Info("Serving metrics", zap.String("addr", addr))
}

// Close stops the session, then the engine, then everything they use.
func (a *App) Close() error {
	var errs []error
	if err := a.Session.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.Engine.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.backend.Close(); err != nil {
		errs = append(errs, err)
	}
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := a.metrics.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
