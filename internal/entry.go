// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/herald-mesh/herald/internal/api"
	"github.com/herald-mesh/herald/internal/keys"
	"github.com/herald-mesh/herald/internal/ledger"
	"github.com/herald-mesh/herald/internal/mcpserver"
	"github.com/herald-mesh/herald/internal/nodes"
	"github.com/herald-mesh/herald/internal/pipeline"
	"github.com/herald-mesh/herald/internal/schema"
	"github.com/herald-mesh/herald/internal/sse"
	"github.com/herald-mesh/herald/internal/telemetry"
)

// mesh bundles the stores and pipeline every serving mode runs on.
type mesh struct {
	custodian *keys.Custodian
	directory *nodes.Directory
	ledger    *ledger.Store
	schemas   *schema.Registry
	telemetry *telemetry.Store
	history   *pipeline.History
	pipeline  *pipeline.Orchestrator
	sink      *telemetry.HTTPSink
}

// newMesh builds the in-memory mesh state: key custodian, node directory,
// ledger, schema registry, telemetry and the message pipeline. broadcaster
// may be nil when no event stream is served.
func newMesh(cfg *Config, broadcaster telemetry.Broadcaster, logger *slog.Logger) (*mesh, error) {
	custodian := keys.NewCustodian()
	directory := nodes.NewDirectory()
	chain := ledger.NewStore(custodian)
	registry := schema.NewRegistry()

	if cfg.Schemas.SeedDir != "" {
		seeds, err := schema.LoadDir(cfg.Schemas.SeedDir)
		if err != nil {
			return nil, fmt.Errorf("load schema seeds: %w", err)
		}
		if err := registry.ReplaceSeeded(seeds); err != nil {
			return nil, fmt.Errorf("seed schemas: %w", err)
		}
		logger.Info("Schema mappings seeded",
			slog.String("dir", cfg.Schemas.SeedDir),
			slog.Int("mappings", registry.Len()))
	}

	var sink *telemetry.HTTPSink
	var forwarder telemetry.Forwarder
	if cfg.Telemetry.ForwardingEnabled() {
		sink = telemetry.NewHTTPSink(cfg.Telemetry.URL, cfg.Telemetry.Timeout.Std())
		forwarder = sink
		logger.Info("Telemetry forwarding enabled", slog.String("url", cfg.Telemetry.URL))
	}
	events := telemetry.NewStore(broadcaster, forwarder, logger)

	history := pipeline.NewHistory()
	orchestrator := pipeline.New(directory, registry, custodian, chain, events, history,
		logger, cfg.Pipeline.StepTimeout.Std())

	return &mesh{
		custodian: custodian,
		directory: directory,
		ledger:    chain,
		schemas:   registry,
		telemetry: events,
		history:   history,
		pipeline:  orchestrator,
		sink:      sink,
	}, nil
}

// Run starts the HTTP service with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("telemetry_mode", cfg.Telemetry.Mode),
		slog.String("schema_seed_dir", cfg.Schemas.SeedDir),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)

	m, err := newMesh(cfg, broker, logger)
	if err != nil {
		return err
	}

	// Build API handler and router.
	handler := api.NewHandler(api.Deps{
		Directory: m.directory,
		Custodian: m.custodian,
		Ledger:    m.ledger,
		Schemas:   m.schemas,
		Telemetry: m.telemetry,
		Pipeline:  m.pipeline,
		History:   m.history,
		Sink:      m.sink,
		Events:    broker,
	})
	apiRouter := api.NewRouter(handler, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints.
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the seed directory for mapping changes. A watcher failure loses
	// hot reload but never takes the service down.
	if cfg.Schemas.SeedDir != "" {
		g.Go(func() error {
			err := schema.Watch(gCtx, m.schemas, cfg.Schemas.SeedDir, logger, func(mappings int) {
				broker.Broadcast("schemas_reloaded", map[string]any{"mappings": mappings})
			})
			if err != nil {
				logger.Warn("Schema watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Ending the event streams first lets Shutdown drain them.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves mesh operations over the Model Context Protocol on stdio.
// Logs go to stderr; stdout belongs to the protocol stream.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	m, err := newMesh(cfg, nil, logger)
	if err != nil {
		return err
	}

	srv := mcpserver.New(mcpserver.Deps{
		Directory: m.directory,
		Custodian: m.custodian,
		Ledger:    m.ledger,
		Schemas:   m.schemas,
		Pipeline:  m.pipeline,
		History:   m.history,
	})

	logger.Info("MCP server starting on stdio")
	return srv.ServeStdio()
}
