package main

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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nvakili/kashef/api/server"
	"github.com/nvakili/kashef/api/store"
	"github.com/nvakili/kashef/discovery"
	"github.com/nvakili/kashef/pkg/otel"
)

// serveCmd starts the HTTP API server
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the Kashef HTTP API server.

The server exposes REST endpoints for conversations and turns, a websocket
feed of completed turns, Prometheus metrics and health probes.

Required configuration:
  - PostgreSQL database (KASHEF_POSTGRES_URL)

Optional:
  - LLM extractor endpoint (KASHEF_EXTRACTOR_BASE_URL, KASHEF_EXTRACTOR_API_KEY)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(ctx context.Context) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting kashef API server",
		"addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"extractor", boolStatus(cfg.IsExtractorConfigured()),
	)

	shutdownTracing, err := otel.Init(ctx, otel.Config{
		ServiceName: "kashef-api",
		Environment: cfg.Otel.Environment,
		Enabled:     cfg.Otel.Enabled,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Error("tracer shutdown", "error", err)
		}
	}()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("create database pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	slog.Info("database connection established")

	st := store.New(pool)
	if err := st.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	lex, err := st.LoadLexicon(ctx)
	if err != nil {
		return fmt.Errorf("load lexicon: %w", err)
	}
	count, err := st.CountOffers(ctx)
	if err != nil {
		return fmt.Errorf("count offers: %w", err)
	}
	slog.Info("catalogue loaded",
		"offers", count,
		"brands", len(lex.Brands),
		"cities", len(lex.Cities),
		"categories", len(lex.Categories),
	)

	rules := discovery.NewRuleExtractor(lex)
	var extractor discovery.Extractor = rules
	if cfg.IsExtractorConfigured() {
		extractor = discovery.NewLLMExtractor(
			cfg.Extractor.BaseURL,
			cfg.Extractor.APIKey,
			cfg.Extractor.Model,
			rules,
		)
		slog.Info("LLM extractor enabled", "model", cfg.Extractor.Model)
	}

	states := discovery.NewStateStore(cfg.Discovery.StateTTL)
	states.StartJanitor(ctx, cfg.Discovery.JanitorInterval)

	engine := discovery.NewEngine(st)

	hub := server.NewHub()
	coordinator := discovery.NewCoordinator(states, engine, extractor,
		discovery.WithTurnTimeout(cfg.Discovery.TurnTimeout),
		discovery.WithIdempotencyWindow(cfg.Discovery.IdempotencyWindow),
		discovery.WithTurnListener(hub.BroadcastTurn),
	)

	srv := server.New(cfg, server.Dependencies{
		Coordinator: coordinator,
		States:      states,
		DBPing:      st.Ping,
		Hub:         hub,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})

	return g.Wait()
}
