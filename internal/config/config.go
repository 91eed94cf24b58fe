// Package config loads runtime configuration from the environment and the
// optional YAML pipeline file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all application configuration
type Config struct {
	Input    InputConfig
	Output   OutputConfig
	GCP      GCPConfig
	Server   ServerConfig
	LogLevel string
	Pipeline PipelineConfig
}

// InputConfig points at the raw records, interaction log and reference data.
type InputConfig struct {
	Dir    string // local directory or gs://bucket/prefix
	Source string // "files" or "bigquery"
}

// OutputConfig controls where artifacts and the ledger live.
type OutputConfig struct {
	Dir        string
	LedgerPath string // empty keeps the ledger in memory
}

// GCPConfig holds Google Cloud settings for the BigQuery and GCS backends.
type GCPConfig struct {
	ProjectID   string
	Dataset     string
	Bucket      string // when set, artifacts go to gs://<Bucket>/exports
	PublishRows bool   // stream exported rows into BigQuery
}

// ServerConfig holds audit API settings
type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
}

// LoadConfig loads configuration from environment variables. When
// BX_PIPELINE_CONFIG names a file it is read on top of the pipeline defaults.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Input: InputConfig{
			Dir:    getEnv("BX_INPUT_DIR", "./data"),
			Source: getEnv("BX_SOURCE", SourceFiles),
		},
		Output: OutputConfig{
			Dir:        getEnv("BX_OUTPUT_DIR", "./out"),
			LedgerPath: getEnv("BX_LEDGER_PATH", ""),
		},
		GCP: GCPConfig{
			ProjectID:   getEnv("BX_GCP_PROJECT", ""),
			Dataset:     getEnv("BX_BQ_DATASET", "basket"),
			Bucket:      getEnv("BX_GCS_BUCKET", ""),
			PublishRows: getEnvAsBool("BX_BQ_PUBLISH", false),
		},
		Server: ServerConfig{
			Port:            getEnv("BX_HTTP_PORT", "8080"),
			ShutdownTimeout: getEnvAsDuration("BX_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		LogLevel: getEnv("BX_LOG_LEVEL", "info"),
		Pipeline: DefaultPipelineConfig(),
	}

	if path := getEnv("BX_PIPELINE_CONFIG", ""); path != "" {
		p, err := LoadPipelineFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Pipeline = p
	}

	cfg.Pipeline.Workers = getEnvAsInt("BX_WORKERS", cfg.Pipeline.Workers)

	return cfg, nil
}

const (
	SourceFiles    = "files"
	SourceBigQuery = "bigquery"
)

// Validate checks the loaded configuration
func (c *Config) Validate() error {
	switch c.Input.Source {
	case SourceFiles:
		if c.Input.Dir == "" {
			return fmt.Errorf("%w: BX_INPUT_DIR is required for the files source", ErrInvalidConfig)
		}
	case SourceBigQuery:
		if c.GCP.ProjectID == "" {
			return fmt.Errorf("%w: BX_GCP_PROJECT is required for the bigquery source", ErrInvalidConfig)
		}
		if c.GCP.Dataset == "" {
			return fmt.Errorf("%w: BX_BQ_DATASET is required for the bigquery source", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidConfig, c.Input.Source)
	}
	if strings.HasPrefix(c.Input.Dir, "gs://") && c.GCP.ProjectID == "" {
		return fmt.Errorf("%w: BX_GCP_PROJECT is required to read from %s", ErrInvalidConfig, c.Input.Dir)
	}
	if c.GCP.PublishRows && c.GCP.ProjectID == "" {
		return fmt.Errorf("%w: BX_GCP_PROJECT is required to publish rows", ErrInvalidConfig)
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("%w: BX_OUTPUT_DIR is required", ErrInvalidConfig)
	}
	return c.Pipeline.Validate()
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
