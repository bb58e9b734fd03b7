// Package app wires configuration, storage, the core components and the HTTP
// router into a runnable service.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"crisispulse/internal/claims"
	"crisispulse/internal/config"
	"crisispulse/internal/corroborate"
	apperrors "crisispulse/internal/errors"
	"crisispulse/internal/eventstore"
	"crisispulse/internal/infrastructure"
	"crisispulse/internal/metrics"
	custommiddleware "crisispulse/internal/middleware"
	"crisispulse/internal/registry"
	"crisispulse/internal/scoring"
	"crisispulse/internal/services"
	transporthttp "crisispulse/internal/transport/http"
)

// Version is stamped at build time.
var Version = "dev"

// App holds the assembled service.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	DB      *sql.DB
	Metrics *metrics.Metrics

	Registry   *registry.Store
	Events     *eventstore.Store
	Claims     *claims.Tracker
	Matcher    *corroborate.Matcher
	Aggregator *scoring.Aggregator

	router chi.Router
	server *http.Server
	cron   *cron.Cron
}

// New builds the application from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := infrastructure.OpenDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	m := metrics.New()

	reg := registry.NewStore(db)
	events := eventstore.NewStore(db, reg, m, logger)
	tracker := claims.NewTracker(db, reg, cfg.Claims, m, logger)
	matcher := corroborate.NewMatcher(db, tracker, events, reg, cfg.Matcher, m, logger)
	scoreStore := scoring.NewStore(db)
	aggregator := scoring.NewAggregator(scoreStore, events, tracker, matcher, reg, cfg.Scoring, m, logger)

	a := &App{
		Config:     cfg,
		Logger:     logger,
		DB:         db,
		Metrics:    m,
		Registry:   reg,
		Events:     events,
		Claims:     tracker,
		Matcher:    matcher,
		Aggregator: aggregator,
	}
	a.router = a.buildRouter()

	if err := a.scheduleSweep(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) buildRouter() chi.Router {
	errorHandler := apperrors.NewHandler(a.Logger)

	core := services.NewCoreService(a.Events, a.Claims, a.Matcher, a.Logger)
	scores := services.NewScoreService(a.Aggregator, a.Logger)
	reg := services.NewRegistryService(a.Registry, a.Logger)

	eventsHandler := transporthttp.NewEventsHandler(core, a.Logger, errorHandler)
	claimsHandler := transporthttp.NewClaimsHandler(core, a.Logger, errorHandler)
	corroborationsHandler := transporthttp.NewCorroborationsHandler(core, a.Logger, errorHandler)
	scoresHandler := transporthttp.NewScoresHandler(scores, a.Logger, errorHandler)
	marketHandler := transporthttp.NewMarketHandler(scores, a.Logger, errorHandler)
	labelsHandler := transporthttp.NewLabelsHandler(scores, errorHandler)
	registryHandler := transporthttp.NewRegistryHandler(reg, a.Logger, errorHandler)
	healthHandler := transporthttp.NewHealthHandler(a.DB, Version, a.Logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(custommiddleware.TraceID)
	r.Use(custommiddleware.RequestLogger(a.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.HealthCheck)

		// Collector-facing write surface.
		r.Mount("/events", eventsHandler.Routes())
		r.Mount("/claims", claimsHandler.Routes())
		r.Mount("/corroborations", corroborationsHandler.Routes())
		r.Mount("/entities", registryHandler.EntityRoutes())
		r.Mount("/sources", registryHandler.SourceRoutes())

		// Read-only dashboard surface.
		r.Mount("/scores", scoresHandler.Routes())
		r.Mount("/market", marketHandler.Routes())
		r.Mount("/labels", labelsHandler.Routes())
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.Metrics.Registry, promhttp.HandlerOpts{}))

	return r
}

// scheduleSweep registers the in-process staleness sweep.
func (a *App) scheduleSweep() error {
	c := cron.New()
	_, err := c.AddFunc(a.Config.Claims.SweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := a.Claims.SweepStale(ctx, time.Now()); err != nil {
			a.Logger.Error("scheduled staleness sweep failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule staleness sweep %q: %w", a.Config.Claims.SweepSchedule, err)
	}
	a.cron = c
	return nil
}

// Router exposes the HTTP handler, mainly for tests.
func (a *App) Router() http.Handler {
	return a.router
}

// Run starts the cron scheduler and the HTTP server, blocking until ctx is
// cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	a.cron.Start()
	defer a.cron.Stop()

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("server listening", slog.Int("port", a.Config.Server.Port))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return a.DB.Close()
}
