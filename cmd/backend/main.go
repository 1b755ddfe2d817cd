package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"csr-intake/internal/config"
	"csr-intake/internal/db"
	"csr-intake/internal/filestore"
	"csr-intake/internal/intake"
	"csr-intake/internal/logging"
	"csr-intake/internal/requests"
	"csr-intake/internal/server"
)

// Set via -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "csr-intake: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	for _, w := range cfg.Warnings() {
		logger.Warn("configuration", zap.String("warning", w))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files, err := newFileStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("attachment store: %w", err)
	}

	// Schema changes are an operator action (cmd/admin), never done on boot.
	dbConn, err := db.OpenDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer func() { _ = dbConn.Close() }()

	proc := intake.NewProcessor(
		requests.NewPostgresRepository(dbConn),
		files,
		logger.Named("intake"),
		intake.Options{UniqueFilenames: cfg.UniqueFilenames},
	)

	srv := server.New(server.Config{
		Addr:           cfg.Addr,
		Build:          server.BuildInfo{Version: version, Commit: commit},
		MaxUploadBytes: cfg.MaxUploadBytes,
		SessionSecret:  cfg.SessionSecret,
		SecureCookies:  cfg.Production(),
		Submitter:      proc,
		DB:             dbConn,
		Logger:         logger.Named("http"),
	})

	// Start the HTTP server in a background goroutine so we can wait for signals.
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting",
			zap.String("addr", cfg.Addr),
			zap.String("storage", cfg.Storage),
			zap.String("version", version),
			zap.String("commit", commit))
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		logger.Info("shutdown complete")
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	}
}

// newFileStore picks the attachment backend. The local directory is created
// when missing.
func newFileStore(ctx context.Context, cfg config.Config) (filestore.Backend, error) {
	return filestore.Open(ctx, cfg.Storage, cfg.UploadDir, filestore.MinioConfig{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Bucket:    cfg.S3.Bucket,
	})
}
