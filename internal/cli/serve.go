package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldnotes-ai/fieldnotes/internal/config"
	"github.com/fieldnotes-ai/fieldnotes/internal/db"
	"github.com/fieldnotes-ai/fieldnotes/internal/live"
	"github.com/fieldnotes-ai/fieldnotes/internal/llm"
	"github.com/fieldnotes-ai/fieldnotes/internal/match"
	"github.com/fieldnotes-ai/fieldnotes/internal/metrics"
	"github.com/fieldnotes-ai/fieldnotes/internal/server"
	"github.com/fieldnotes-ai/fieldnotes/internal/session"
	"github.com/fieldnotes-ai/fieldnotes/internal/transcribe"
)

var (
	serveConfigFile string
	serveWipe       bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the fieldnotes server",
	Long: `Run the capture server: the WebSocket live endpoint, the REST review
API, the transcription bridge, and the session sweep.

Configuration comes from environment variables, optionally overlaid
with a YAML file via --config.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigFile, "config", "c", "", "YAML config file overlaying the environment")
	serveCmd.Flags().BoolVar(&serveWipe, "wipe", false, "wipe all data on startup (testing only)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if serveConfigFile != "" {
		if err := cfg.ApplyFile(serveConfigFile); err != nil {
			return err
		}
	}

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() { _ = cleanup() }()

	logger.Info("fieldnotes server starting",
		"version", Version,
		"listen_addr", cfg.ListenAddr,
		"surrealdb_url", cfg.SurrealDBURL,
		"llm_model", cfg.LLMModel,
		"embed_model", cfg.EmbedModel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	dbCfg := db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}
	dbClient, err := db.NewClient(ctx, dbCfg, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() { _ = dbClient.Close(context.Background()) }()

	if err := dbClient.InitSchema(ctx); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	if serveWipe || os.Getenv("FIELDNOTES_WIPE_DB") == "true" {
		logger.Warn("wiping all data on startup")
		if err := dbClient.WipeData(ctx); err != nil {
			return fmt.Errorf("wipe database: %w", err)
		}
	}

	// LLM backends
	model, err := llm.NewModel(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create extraction model: %w", err)
	}
	embedder, err := llm.NewEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}
	logger.Info("llm backends ready", "model", model.Model(), "embedder", embedder.Model())

	collector := metrics.NewCollector()

	matcher := match.New(embedder, dbClient, match.Options{
		Floor:  cfg.MatchFloor,
		Limit:  cfg.MatchLimit,
		Logger: logger,
	})

	streamFactory := func(sessionID string, callbacks transcribe.Callbacks) live.AudioStream {
		return transcribe.NewStream(transcribe.Options{
			URL:       cfg.TranscribeURL,
			APIKey:    cfg.TranscribeAPIKey,
			SessionID: sessionID,
			Logger:    logger,
		}, callbacks)
	}

	hub := server.NewHub()
	coordinator := live.New(
		session.NewStore(),
		dbClient,
		matcher,
		embedder,
		model,
		streamFactory,
		hub,
		live.Options{
			MatchThreshold:  cfg.MatchThreshold,
			IdleTimeout:     cfg.SessionIdleTimeout,
			SweepInterval:   cfg.SweepInterval,
			ExtractMinChars: cfg.ExtractMinChars,
			ExtractDebounce: cfg.ExtractDebounce,
			CallTimeout:     cfg.CallTimeout,
			Logger:          logger,
			Metrics:         collector,
		},
	)
	coordinator.Start()

	srv := server.New(coordinator, dbClient, hub, collector, logger)
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop accepting traffic first, then finalize in-flight sessions so
	// nothing captured is lost.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if err := coordinator.Close(shutdownCtx); err != nil {
		logger.Error("coordinator shutdown failed", "error", err)
	}

	logger.Info("server stopped")
	return nil
}
