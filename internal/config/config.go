package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"imagemill"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"imagemill"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`

	// Image pipeline
	OutputImageDir     string `envconfig:"OUTPUT_IMAGE_DIR" default:"./processed_images"`
	OutputImageBaseURL string `envconfig:"OUTPUT_IMAGE_BASE_URL" default:"https://example.com/images/"`
	CompressionQuality int    `envconfig:"COMPRESSION_QUALITY" default:"50"`

	// One fetch is admitted every FetchDelayMS across all in-flight processors.
	FetchDelayMS          int `envconfig:"FETCH_DELAY_MS" default:"500"`
	FetchTimeoutSeconds   int `envconfig:"FETCH_TIMEOUT_SECONDS" default:"30"`
	ProcessTimeoutSeconds int `envconfig:"PROCESS_TIMEOUT_SECONDS" default:"120"`

	// Webhook
	WebhookEnabled bool   `envconfig:"WEBHOOK_ENABLED" default:"false"`
	WebhookURL     string `envconfig:"WEBHOOK_URL"`

	// When false, a job whose products did not all succeed terminates as failed
	// instead of completed.
	CompleteWithFailures bool `envconfig:"COMPLETE_WITH_FAILURES" default:"true"`

	WorkerConcurrency int    `envconfig:"WORKER_CONCURRENCY" default:"10"`
	MigrationPath     string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Server
	ServerPort      int   `envconfig:"SERVER_PORT" default:"8081"`
	MaxUploadSizeMB int64 `envconfig:"MAX_UPLOAD_SIZE_MB" default:"10"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Try loading .env from current dir and repo root.
	// Ignore errors, as env vars might be set in the shell.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.CompressionQuality < 1 || c.CompressionQuality > 100 {
		return fmt.Errorf("%w: COMPRESSION_QUALITY must be within 1..100", ErrMissingRequired)
	}
	if c.WebhookEnabled && c.WebhookURL == "" {
		return fmt.Errorf("%w: WEBHOOK_URL", ErrMissingRequired)
	}
	return nil
}
