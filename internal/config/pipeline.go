package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PipelineConfig tunes the canonical pipeline. It is usually read from a
// YAML file so that the tie-break order is versioned alongside the data.
type PipelineConfig struct {
	ContractVersion string   `yaml:"contract_version"`
	TieBreak        []string `yaml:"tie_break"`
	Delimiter       string   `yaml:"delimiter"`
	Timezone        string   `yaml:"timezone"`
	Workers         int      `yaml:"workers"`
	Format          string   `yaml:"format"`
}

// DefaultPipelineConfig returns the built-in settings.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		ContractVersion: "v1",
		TieBreak:        []string{"well_formed", "line_items", "payload_size", "ingested_at"},
		Delimiter:       ";",
		Timezone:        "UTC",
		Workers:         4,
		Format:          "csv",
	}
}

// LoadPipelineFile reads path over the defaults. Keys missing from the file
// keep their default values.
func LoadPipelineFile(path string) (PipelineConfig, error) {
	cfg := DefaultPipelineConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("LoadPipelineFile: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("LoadPipelineFile: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Location resolves the configured IANA timezone.
func (p PipelineConfig) Location() (*time.Location, error) {
	if p.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, p.Timezone, err)
	}
	return loc, nil
}

// Validate checks values that do not depend on other packages. The tie-break
// names themselves are checked when the canonicalizer is built.
func (p PipelineConfig) Validate() error {
	if p.ContractVersion == "" {
		return fmt.Errorf("%w: contract_version is required", ErrInvalidConfig)
	}
	if p.Delimiter == "" {
		return fmt.Errorf("%w: delimiter must not be empty", ErrInvalidConfig)
	}
	if p.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfig, p.Workers)
	}
	switch p.Format {
	case "csv", "xlsx":
	default:
		return fmt.Errorf("%w: unknown format %q", ErrInvalidConfig, p.Format)
	}
	if _, err := p.Location(); err != nil {
		return err
	}
	return nil
}
