// Package server wires the HTTP routes and runs the listener.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/squadrats-grid/internal/core/config"
	"github.com/mohammed-shakir/squadrats-grid/internal/core/health"
	middleware "github.com/mohammed-shakir/squadrats-grid/internal/core/middleware"
	"github.com/mohammed-shakir/squadrats-grid/internal/core/router"
	"github.com/mohammed-shakir/squadrats-grid/internal/metrics"
)

type Deps struct {
	Regions router.RegionLookup
	Runner  router.JobRunner
	// Ready is nil when no invalidation consumer runs.
	Ready   health.ReadinessReporter
	Metrics *metrics.Provider
}

func NewHandler(logger *slog.Logger, d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(d.Ready))
	if d.Metrics != nil && d.Metrics.Enabled() {
		r.Method(http.MethodGet, d.Metrics.Path(), d.Metrics.Handler())
	}
	r.Get("/grid", router.HandleGrid(logger, d.Regions, d.Runner))
	r.Post("/coverage", router.HandleCoverage(logger))
	return r
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, d Deps) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(logger, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
