package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/credence-io/credence/internal/api/handlers"
	mw "github.com/credence-io/credence/internal/api/middleware"
	"github.com/credence-io/credence/internal/buildconfig"
	"github.com/credence-io/credence/internal/config"
	"github.com/credence-io/credence/internal/domain"
	"github.com/credence-io/credence/internal/embedding"
	"github.com/credence-io/credence/internal/service"
	"github.com/credence-io/credence/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router  *chi.Mux
	Janitor *service.Janitor
	Worker  *service.JanitorWorker

	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

// NewApp wires services, handlers and routes on top of the given claim
// store. The caller owns the store's lifecycle; everything else is built
// here from config.
func NewApp(cs domain.ClaimStore, logger *zap.Logger) (*App, error) {
	embeddingProvider := config.EmbeddingProvider()
	embeddingClient, err := embedding.NewClient(embeddingProvider, config.EmbeddingAPIKey())
	if err != nil {
		return nil, fmt.Errorf("embedding client: %w", err)
	}
	logger.Info("embedding client initialized", zap.String("provider", embeddingProvider))

	validationCfg, err := service.ValidationPreset(config.GatekeeperPreset())
	if err != nil {
		return nil, err
	}
	gatekeeper := service.NewGatekeeper(validationCfg, logger)

	janitorCfg, err := resolveJanitorConfig()
	if err != nil {
		return nil, err
	}
	janitor, err := service.NewJanitor(cs, janitorCfg, logger)
	if err != nil {
		return nil, err
	}
	worker := service.NewJanitorWorker(janitor, logger)

	claimSvc := service.NewClaimService(cs, embeddingClient, gatekeeper, logger, config.ConfidenceHalfLife())

	claimHandler := handlers.NewClaimHandler(claimSvc)
	relationshipHandler := handlers.NewRelationshipHandler(claimSvc)
	janitorHandler := handlers.NewJanitorHandler(janitor, cs, logger)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Janitor:   janitor,
		Worker:    worker,
		startTime: time.Now(),
	}

	// Metrics collector for middleware
	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	r.Get("/health", healthHandler(cs))
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/claims", func(r chi.Router) {
			r.Post("/", claimHandler.Create)
			r.Get("/", claimHandler.Query)
			r.Post("/search", claimHandler.Search)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", claimHandler.GetByID)
				r.Get("/confidence", claimHandler.Confidence)
				r.Get("/provenance", claimHandler.Provenance)
				r.Get("/relationships", relationshipHandler.ListForClaim)
			})
		})

		r.Post("/relationships", relationshipHandler.Create)

		r.Route("/janitor", func(r chi.Router) {
			r.Post("/sweep", janitorHandler.Sweep)
			r.Get("/metrics", janitorHandler.Metrics)
		})
	})

	return app, nil
}

// resolveJanitorConfig prefers an explicit TOML file over a named preset.
func resolveJanitorConfig() (service.JanitorConfig, error) {
	if path := config.JanitorConfigPath(); path != "" {
		return service.LoadJanitorConfig(path)
	}
	return service.JanitorPreset(config.JanitorPreset())
}

type pinger interface {
	Ping(ctx context.Context) error
}

func healthHandler(cs domain.ClaimStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p, ok := cs.(pinger); ok {
			if err := p.Ping(r.Context()); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"version": buildconfig.Version(),
			"commit":  buildconfig.Commit(),
		})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
			"build":      buildconfig.VersionInfo(),
			"janitor":    app.Janitor.Metrics(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.ClaimStore      = (*store.MemoryStore)(nil)
	_ domain.ClaimStore      = (*store.SQLiteStore)(nil)
	_ domain.ClaimStore      = (*store.PostgresStore)(nil)
	_ domain.EmbeddingClient = (*embedding.OpenAIClient)(nil)
	_ domain.EmbeddingClient = (*embedding.MockClient)(nil)
)
