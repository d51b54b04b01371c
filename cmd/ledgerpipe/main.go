package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ledgerpipe/ledgerpipe/internal/audit"
	"github.com/ledgerpipe/ledgerpipe/internal/auth"
	"github.com/ledgerpipe/ledgerpipe/internal/classify"
	"github.com/ledgerpipe/ledgerpipe/internal/config"
	"github.com/ledgerpipe/ledgerpipe/internal/docpipe"
	"github.com/ledgerpipe/ledgerpipe/internal/extract"
	"github.com/ledgerpipe/ledgerpipe/internal/pipeline"
	"github.com/ledgerpipe/ledgerpipe/internal/server"
	"github.com/ledgerpipe/ledgerpipe/internal/storage"
	"github.com/ledgerpipe/ledgerpipe/internal/storage/memory"
	"github.com/ledgerpipe/ledgerpipe/internal/storage/sqlite"
	"github.com/ledgerpipe/ledgerpipe/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Initialize OpenTelemetry
	shutdownTracer, err := telemetry.InitTracer("ledgerpipe", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	// Every audit event is logged as it is recorded, then persisted.
	sink := audit.NewLogSink(logger, store)

	processor := docpipe.NewProcessor(docpipe.Deps{
		Documents:   store,
		Suggestions: store,
		Audit:       sink,
		Extractor:   newExtractor(cfg.OCR),
		Classifier:  newClassifier(cfg.OpenAI),
	}, pipeline.NewExecutor(sink), logger)

	api := server.NewAPI(store, processor, server.UploadPolicy{
		Dir:               cfg.Uploads.Dir,
		MaxSizeBytes:      cfg.Uploads.MaxSizeBytes,
		AllowedExtensions: cfg.Uploads.AllowedExtensions,
	}, logger)

	srv := server.New(cfg.Server.Port, cfg.Server.RequestTimeout(), logger, newAuthenticator(cfg.Auth), api)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or listener failure
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func openStore(cfg *config.Config) (storage.Store, error) {
	if cfg.Storage.Type == "memory" {
		return memory.New(), nil
	}
	return sqlite.New(cfg.Storage.SQLite.Path)
}

func newExtractor(cfg config.OCRConfig) extract.Extractor {
	var opts []extract.Option
	if cfg.TesseractPath != "" {
		opts = append(opts, extract.WithTesseractCommand(cfg.TesseractPath))
	}
	if cfg.PDFToPPMPath != "" {
		opts = append(opts, extract.WithPDFToPPMCommand(cfg.PDFToPPMPath))
	}
	if cfg.Languages != "" {
		opts = append(opts, extract.WithLanguages(cfg.Languages))
	}
	return extract.NewTesseract(opts...)
}

func newClassifier(cfg config.OpenAIConfig) *classify.Classifier {
	var clientOpts []classify.ClientOption
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, classify.WithBaseURL(cfg.BaseURL))
	}
	var opts []classify.Option
	if cfg.Model != "" {
		opts = append(opts, classify.WithModel(cfg.Model))
	}
	if cfg.MaxPromptTokens > 0 {
		opts = append(opts, classify.WithMaxPromptTokens(cfg.MaxPromptTokens))
	}
	return classify.NewClassifier(classify.NewClient(cfg.APIKey, clientOpts...), opts...)
}

func newAuthenticator(cfg config.AuthConfig) *auth.Authenticator {
	if len(cfg.APIKeys) == 0 {
		// No configured keys means an open development instance.
		return nil
	}
	keys := make([]auth.APIKey, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		keys = append(keys, auth.APIKey{KeyHash: k.KeyHash, Name: k.Name})
	}
	return auth.NewAuthenticator(keys)
}
