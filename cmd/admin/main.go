package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"csr-intake/internal/cleanup"
	"csr-intake/internal/config"
	"csr-intake/internal/db"
	"csr-intake/internal/export"
	"csr-intake/internal/filestore"
	"csr-intake/internal/logging"
	"csr-intake/internal/requests"
)

const usage = `csr-admin - request intake database tool

Usage:
  csr-admin <command> [flags]

Commands:
  init-db     Drop the requests table with all rows and recreate it empty (DESTRUCTIVE, needs -yes)
  migrate     Apply pending schema migrations, keeping existing rows
  status      Show database connectivity, schema version and row count
  export      Write stored requests to an .xlsx spreadsheet
  prune       Remove stored attachments that no request references

Flags:
  init-db -yes                  confirm the reset
  export  -out file.xlsx        output path (required)
          -limit N              maximum rows to export (default 10000)
  prune   -min-age 1h           only remove files older than this
          -dry-run              list orphans without removing them

Environment:
  DATABASE_URL                  PostgreSQL URL (required)
  CSR_STORAGE, CSR_UPLOAD_DIR,  attachment store for prune, as for the server
  CSR_S3_*, CSR_BUCKET
  CSR_LOG_LEVEL, CSR_LOG_FORMAT logging, as for the server
`

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout)
	if errors.Is(err, errUsage) {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "csr-admin: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) < 1 {
		return errUsage
	}
	command, rest := args[0], args[1:]

	switch command {
	case "init-db", "migrate", "status", "export", "prune":
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}

	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	yes := fs.Bool("yes", false, "confirm init-db")
	out := fs.String("out", "", "export output path")
	limit := fs.Int("limit", 10000, "maximum rows to export")
	minAge := fs.Duration("min-age", cleanup.DefaultMinAge, "minimum age of removed files")
	dryRun := fs.Bool("dry-run", false, "list orphans only")
	if err := fs.Parse(rest); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	if command == "init-db" && !*yes {
		return errors.New("init-db deletes every stored request; re-run with -yes to confirm")
	}
	if command == "export" {
		if *out == "" {
			return fmt.Errorf("%w: export needs -out", errUsage)
		}
		if *limit <= 0 {
			return fmt.Errorf("%w: -limit must be positive", errUsage)
		}
	}
	if command == "prune" && *minAge <= 0 {
		return fmt.Errorf("%w: -min-age must be positive", errUsage)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateDatabase(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	switch command {
	case "init-db":
		if err := db.ResetSchema(cfg.DatabaseURL, logger); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "Initialized the database.")
		return nil
	case "migrate":
		if err := db.RunMigrations(cfg.DatabaseURL, logger); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "Migrations applied.")
		return nil
	case "status":
		return status(ctx, cfg, logger, stdout)
	case "prune":
		return prune(ctx, cfg, cleanup.Config{MinAge: *minAge, DryRun: *dryRun}, logger, stdout)
	default:
		return exportRequests(ctx, cfg, *out, *limit, stdout)
	}
}

func status(ctx context.Context, cfg config.Config, logger *zap.Logger, stdout io.Writer) error {
	conn, err := db.OpenDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	defer func() { _ = conn.Close() }()
	fmt.Fprintln(stdout, "Database:        reachable")

	st, err := db.Status(cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	if !st.Applied {
		fmt.Fprintln(stdout, "Schema version:  none (run init-db or migrate)")
		return nil
	}
	dirty := ""
	if st.Dirty {
		dirty = " (dirty)"
	}
	fmt.Fprintf(stdout, "Schema version:  %d%s\n", st.Version, dirty)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	n, err := requests.NewPostgresRepository(conn).CountRequests(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Stored requests: %d\n", n)
	return nil
}

func prune(ctx context.Context, cfg config.Config, pc cleanup.Config, logger *zap.Logger, stdout io.Writer) error {
	store, err := filestore.Open(ctx, cfg.Storage, cfg.UploadDir, filestore.MinioConfig{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Bucket:    cfg.S3.Bucket,
	})
	if err != nil {
		return fmt.Errorf("attachment store: %w", err)
	}

	conn, err := db.OpenDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	defer func() { _ = conn.Close() }()

	rep, err := cleanup.PruneOrphans(ctx, store, requests.NewPostgresRepository(conn), pc, logger.Named("cleanup"))
	if err != nil {
		return err
	}

	for _, name := range rep.Orphans {
		fmt.Fprintln(stdout, name)
	}
	if pc.DryRun {
		fmt.Fprintf(stdout, "Found %d orphaned file(s) of %d; nothing removed.\n", len(rep.Orphans), rep.Scanned)
		return nil
	}
	fmt.Fprintf(stdout, "Removed %d orphaned file(s) of %d.\n", rep.Removed, rep.Scanned)
	if rep.Failed > 0 {
		return fmt.Errorf("%d file(s) could not be removed", rep.Failed)
	}
	return nil
}

func exportRequests(ctx context.Context, cfg config.Config, out string, limit int, stdout io.Writer) error {
	conn, err := db.OpenDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	defer func() { _ = conn.Close() }()

	recs, err := requests.NewPostgresRepository(conn).ListRequests(ctx, limit)
	if err != nil {
		return err
	}

	// Write next to the target and rename so a failed export leaves no partial file.
	tmp, err := os.CreateTemp(filepath.Dir(out), ".export-*.xlsx")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := export.WriteXLSX(tmp, recs); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Exported %d request(s) to %s\n", len(recs), out)
	return nil
}
