// Package config reads the intake service configuration from the process
// environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends for attachments.
const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

// DefaultMaxUploadBytes caps a whole submission body (fields plus attachment).
const DefaultMaxUploadBytes int64 = 5 << 20

// MinSessionSecretLen is the shortest accepted flash signing key.
const MinSessionSecretLen = 32

// S3Config holds MinIO/S3 connection settings.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
}

// Config is built once at startup and passed by value to constructors.
type Config struct {
	Addr            string
	DatabaseURL     string
	UploadDir       string
	MaxUploadBytes  int64
	Storage         string
	S3              S3Config
	UniqueFilenames bool
	SessionSecret   string
	LogLevel        string
	LogFormat       string
	Env             string
	ShutdownTimeout time.Duration
}

// Production reports whether the service runs with CSR_ENV=production.
func (c Config) Production() bool {
	return c.Env == "production"
}

// Load reads the environment. Values that fail to parse are reported
// together; requirements specific to a binary are checked by ValidateServer
// and ValidateDatabase.
func Load() (Config, error) {
	if err := loadDotenv(); err != nil {
		return Config{}, err
	}

	v := NewValidator()
	cfg := Config{
		Addr:        getenvDefault("CSR_ADDR", ":5000"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		UploadDir:   getenvDefault("CSR_UPLOAD_DIR", "uploads"),
		Storage:     strings.ToLower(getenvDefault("CSR_STORAGE", StorageLocal)),
		S3: S3Config{
			Endpoint:  os.Getenv("CSR_S3_ENDPOINT"),
			AccessKey: os.Getenv("CSR_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("CSR_S3_SECRET_KEY"),
			Bucket:    os.Getenv("CSR_BUCKET"),
		},
		SessionSecret: os.Getenv("CSR_SESSION_SECRET"),
		LogLevel:      strings.ToLower(getenvDefault("CSR_LOG_LEVEL", "info")),
		LogFormat:     strings.ToLower(getenvDefault("CSR_LOG_FORMAT", "json")),
		Env:           strings.ToLower(getenvDefault("CSR_ENV", "development")),
	}
	cfg.MaxUploadBytes = v.PositiveInt64("CSR_MAX_UPLOAD_BYTES", os.Getenv("CSR_MAX_UPLOAD_BYTES"), DefaultMaxUploadBytes)
	cfg.UniqueFilenames = v.Bool("CSR_UNIQUE_FILENAMES", os.Getenv("CSR_UNIQUE_FILENAMES"), false)
	cfg.ShutdownTimeout = v.Duration("CSR_SHUTDOWN_TIMEOUT", os.Getenv("CSR_SHUTDOWN_TIMEOUT"), 5*time.Second)

	v.ValidatePort("CSR_ADDR", cfg.Addr)
	v.ValidatePostgresURL("DATABASE_URL", cfg.DatabaseURL)
	v.ValidateEnum("CSR_LOG_LEVEL", cfg.LogLevel, []string{"debug", "info", "warn", "error"})
	v.ValidateEnum("CSR_LOG_FORMAT", cfg.LogFormat, []string{"json", "console"})
	v.ValidateEnum("CSR_ENV", cfg.Env, []string{"development", "staging", "production"})
	v.ValidateEnum("CSR_STORAGE", cfg.Storage, []string{StorageLocal, StorageMinio})

	if err := v.Err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidateServer checks what the HTTP server needs on top of Load.
func (c Config) ValidateServer() error {
	v := NewValidator()

	v.ValidateRequired("DATABASE_URL", c.DatabaseURL)
	v.ValidateRequired("CSR_SESSION_SECRET", c.SessionSecret)
	v.ValidateMinLength("CSR_SESSION_SECRET", c.SessionSecret, MinSessionSecretLen)

	switch c.Storage {
	case StorageLocal:
		v.ValidateRequired("CSR_UPLOAD_DIR", c.UploadDir)
	case StorageMinio:
		v.ValidateRequired("CSR_S3_ENDPOINT", c.S3.Endpoint)
		v.ValidateRequired("CSR_S3_ACCESS_KEY", c.S3.AccessKey)
		v.ValidateRequired("CSR_S3_SECRET_KEY", c.S3.SecretKey)
		v.ValidateRequired("CSR_BUCKET", c.S3.Bucket)
	}

	return v.Err()
}

// ValidateDatabase checks what the admin commands need.
func (c Config) ValidateDatabase() error {
	v := NewValidator()
	v.ValidateRequired("DATABASE_URL", c.DatabaseURL)
	return v.Err()
}

// Warnings lists optional settings worth a log line at startup.
func (c Config) Warnings() []string {
	warnings := make([]string, 0)

	if c.Production() && c.LogFormat != "json" {
		warnings = append(warnings, "CSR_LOG_FORMAT is not 'json' in production")
	}
	if c.Storage == StorageLocal && c.Production() {
		warnings = append(warnings, "CSR_STORAGE=local in production - attachments live on this host only")
	}
	if !c.UniqueFilenames {
		warnings = append(warnings, "CSR_UNIQUE_FILENAMES not enabled - attachments with the same name overwrite each other")
	}

	return warnings
}

// loadDotenv seeds the environment from ./.env when present. Variables that
// are already set win.
func loadDotenv() error {
	path := getenvDefault("CSR_DOTENV", ".env")
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// getenvDefault reads an environment variable and returns a default value if not set.
func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
