// Package config holds the explicit configuration struct handed to the
// pipeline coordinator at construction. Values come from .quarry.yaml
// in the repository root with QUARRY_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default model constants. Quarry uses a tiered approach: the default
// model for analysis and refactor reasoning, a cheaper model for the
// summary stage.
const (
	// ModelDefault is the model for analysis and refactor stages
	ModelDefault = "claude-sonnet-4-5-20250929"

	// ModelSummary is the cost-efficient model for report summarization
	ModelSummary = "claude-3-5-haiku-20241022"
)

// ConfigFileName is the per-repository configuration file
const ConfigFileName = ".quarry.yaml"

// IgnoreFileName lists path patterns excluded from analysis,
// gitignore syntax
const IgnoreFileName = ".quarryignore"

// Config is the explicit configuration for a pipeline run
type Config struct {
	// Model is the model used by analysis and refactor stages
	Model string `yaml:"model"`

	// SummaryModel is the model used by the summary stage
	SummaryModel string `yaml:"summary_model"`

	// DBPath is the proposal store location (default .quarry/quarry.db)
	DBPath string `yaml:"db_path"`

	// Stages is the declared stage order (default qa, refactor, summary)
	Stages []string `yaml:"stages"`

	// ShowRejected resurfaces findings whose proposals were rejected
	ShowRejected bool `yaml:"show_rejected"`

	// IgnoreFile overrides the ignore-file location
	IgnoreFile string `yaml:"ignore_file"`

	// ReportPath is where the markdown report is written
	ReportPath string `yaml:"report_path"`

	// Format selects the report format: markdown or sarif
	Format string `yaml:"format"`

	// MaxWorkers caps parallel file analysis within a stage
	MaxWorkers int `yaml:"max_workers"`

	// MaxFindings caps findings requested per file from the model
	MaxFindings int `yaml:"max_findings"`

	// RequestsPerMinute rate-limits model API calls (0 = default)
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Model:             ModelDefault,
		SummaryModel:      ModelSummary,
		DBPath:            filepath.Join(".quarry", "quarry.db"),
		Stages:            []string{"qa", "refactor", "summary"},
		IgnoreFile:        IgnoreFileName,
		ReportPath:        filepath.Join("reports", "qa_report.md"),
		Format:            "markdown",
		MaxWorkers:        4,
		MaxFindings:       10,
		RequestsPerMinute: 30,
	}
}

// Load reads configuration for a repository: defaults, then
// .quarry.yaml if present, then environment overrides.
func Load(repoRoot string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(repoRoot, ConfigFileName)
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies QUARRY_* environment variable overrides
func (c *Config) applyEnv() {
	if v := os.Getenv("QUARRY_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("QUARRY_SUMMARY_MODEL"); v != "" {
		c.SummaryModel = v
	}
	if v := os.Getenv("QUARRY_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("QUARRY_STAGES"); v != "" {
		parts := strings.Split(v, ",")
		stages := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				stages = append(stages, s)
			}
		}
		c.Stages = stages
	}
	if v := os.Getenv("QUARRY_SHOW_REJECTED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.ShowRejected = b
		}
	}
	if v := os.Getenv("QUARRY_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxWorkers = n
		}
	}
}

// Validate checks the configuration for usable values
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if len(c.Stages) == 0 {
		return fmt.Errorf("at least one stage is required")
	}
	switch c.Format {
	case "markdown", "sarif":
	default:
		return fmt.Errorf("invalid format: %s (must be markdown or sarif)", c.Format)
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("max_workers must be positive (got %d)", c.MaxWorkers)
	}
	if c.MaxFindings < 1 {
		return fmt.Errorf("max_findings must be positive (got %d)", c.MaxFindings)
	}
	return nil
}
