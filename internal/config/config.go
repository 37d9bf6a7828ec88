// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Storage backend identifiers accepted in STORAGE_BACKEND.
const (
	BackendS3      = "s3"
	BackendDropbox = "dropbox"
	BackendMemory  = "memory"
)

// Config holds all runtime configuration for the service.
type Config struct {
	Port   string
	AppEnv string

	// StorageBackend selects the object store implementation: s3, dropbox or memory.
	StorageBackend string

	// LedgerPath is the object key holding the comment ledger.
	LedgerPath string
	// MediaPrefix is the key prefix for uploaded media objects.
	MediaPrefix string

	// S3-compatible storage (MinIO locally, any S3 provider in production)
	StorageEndpoint   string
	StorageAccessKey  string
	StorageSecretKey  string
	StorageBucket     string
	StorageUseSSL     bool
	StoragePublicBase string // browser-accessible base URL, e.g. "http://localhost:9000/komentar"

	// Dropbox storage
	DropboxAccessToken string
}

// Load reads configuration from a .env file (if present) and environment
// variables. Missing credentials for the selected storage backend are a
// startup error, never a per-request one.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, reading from environment")
	}

	cfg := &Config{
		Port:   getEnv("PORT", "8080"),
		AppEnv: getEnv("APP_ENV", "development"),

		StorageBackend: getEnv("STORAGE_BACKEND", BackendS3),
		LedgerPath:     getEnv("LEDGER_PATH", "komentar-web/comments.json"),
		MediaPrefix:    getEnv("MEDIA_PREFIX", "komentar-web"),

		StorageEndpoint:   getEnv("STORAGE_ENDPOINT", "localhost:9000"),
		StorageAccessKey:  os.Getenv("STORAGE_ACCESS_KEY"),
		StorageSecretKey:  os.Getenv("STORAGE_SECRET_KEY"),
		StorageBucket:     getEnv("STORAGE_BUCKET", "komentar"),
		StorageUseSSL:     getEnv("STORAGE_USE_SSL", "false") == "true",
		StoragePublicBase: getEnv("STORAGE_PUBLIC_BASE", "http://localhost:9000/komentar"),

		DropboxAccessToken: os.Getenv("DROPBOX_ACCESS_TOKEN"),
	}

	switch cfg.StorageBackend {
	case BackendS3:
		if cfg.StorageAccessKey == "" || cfg.StorageSecretKey == "" {
			return nil, fmt.Errorf("STORAGE_ACCESS_KEY and STORAGE_SECRET_KEY are required for the s3 backend")
		}
	case BackendDropbox:
		if cfg.DropboxAccessToken == "" {
			return nil, fmt.Errorf("DROPBOX_ACCESS_TOKEN is required for the dropbox backend")
		}
	case BackendMemory:
		// dev/test backend, no credentials
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	return cfg, nil
}

// IsDevelopment returns true when the app is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
