// Package config holds the flat keyed configuration for the statement
// separator. Values come from defaults, an optional YAML file, and
// environment variable overrides, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration surface.
type Config struct {
	Provider   ProviderConfig   `yaml:"provider"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Limits     LimitsConfig     `yaml:"limits"`
	Detection  DetectionConfig  `yaml:"detection"`
	Paths      PathsConfig      `yaml:"paths"`
	Validation ValidationConfig `yaml:"validation"`
	Sink       SinkConfig       `yaml:"sink"`
	Workers    int              `yaml:"workers"`
}

// ProviderConfig selects and configures the model provider.
type ProviderConfig struct {
	Kind     string `yaml:"kind"` // remote, local, none
	Model    string `yaml:"model"`
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Timeout  string `yaml:"timeout"` // per-call timeout
}

// RateLimitConfig configures the rate limiter and backoff strategy.
type RateLimitConfig struct {
	RequestsPerMinute int     `yaml:"requests_per_minute"`
	BurstLimit        int     `yaml:"burst_limit"`
	BackoffMin        string  `yaml:"backoff_min"`
	BackoffMax        string  `yaml:"backoff_max"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	MaxAttempts       int     `yaml:"max_attempts"`
}

// LimitsConfig bounds resource consumption per document.
type LimitsConfig struct {
	MaxFileSizeMB        int `yaml:"max_file_size_mb"`
	MaxTotalPages        int `yaml:"max_total_pages"`
	MaxPagesPerStatement int `yaml:"max_pages_per_statement"`
	MinPagesPerStatement int `yaml:"min_pages_per_statement"`
	MaxFilenameLength    int `yaml:"max_filename_length"`
}

// DetectionConfig tunes the boundary detection engine.
type DetectionConfig struct {
	FragmentConfidenceThreshold float64 `yaml:"fragment_confidence_threshold"`
	EnableFragmentFiltering     bool    `yaml:"enable_fragment_filtering"`
	TextAnalysisCharCap         int     `yaml:"text_analysis_char_cap"`
	CacheSize                   int     `yaml:"cache_size"`
}

// PathsConfig lays out the working directories.
type PathsConfig struct {
	InputDir           string   `yaml:"input_dir"`
	OutputDir          string   `yaml:"output_dir"`
	ProcessedInputDir  string   `yaml:"processed_input_dir"`
	QuarantineDir      string   `yaml:"quarantine_dir"`
	LedgerPath         string   `yaml:"ledger_path"`
	AllowedInputRoots  []string `yaml:"allowed_input_roots"`
	AllowedOutputRoots []string `yaml:"allowed_output_roots"`
}

// ValidationConfig tunes ingestion strictness and output checks.
type ValidationConfig struct {
	Strictness          string  `yaml:"strictness"` // strict, normal, lenient
	RequireTextContent  bool    `yaml:"require_text_content"`
	MinTextContentRatio float64 `yaml:"min_text_content_ratio"`
}

// SinkConfig configures the optional paperless-ngx integration.
type SinkConfig struct {
	Enabled             bool     `yaml:"enabled"`
	Mandatory           bool     `yaml:"mandatory"` // outage quarantines instead of degrading
	Endpoint            string   `yaml:"endpoint"`
	Token               string   `yaml:"token"`
	Tags                []string `yaml:"tags"`
	Correspondent       string   `yaml:"correspondent"`
	DocumentType        string   `yaml:"document_type"`
	StoragePath         string   `yaml:"storage_path"`
	TagWaitSeconds      int      `yaml:"tag_wait_seconds"`
	QueryTimeoutSeconds int      `yaml:"query_timeout_seconds"`
	ErrorTags           []string `yaml:"error_tags"`
	ErrorSeverityLevels []string `yaml:"error_severity_levels"`
	ErrorMinSeverity    string   `yaml:"error_min_severity"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Kind:    "none",
			Timeout: "30s",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 50,
			BurstLimit:        10,
			BackoffMin:        "1s",
			BackoffMax:        "60s",
			BackoffMultiplier: 2.0,
			MaxAttempts:       3,
		},
		Limits: LimitsConfig{
			MaxFileSizeMB:        100,
			MaxTotalPages:        500,
			MaxPagesPerStatement: 50,
			MinPagesPerStatement: 1,
			MaxFilenameLength:    240,
		},
		Detection: DetectionConfig{
			FragmentConfidenceThreshold: 0.3,
			EnableFragmentFiltering:     true,
			TextAnalysisCharCap:         15000,
			CacheSize:                   100,
		},
		Paths: PathsConfig{
			InputDir:      "./input",
			OutputDir:     "./output",
			QuarantineDir: "./quarantine",
		},
		Validation: ValidationConfig{
			Strictness:          "normal",
			RequireTextContent:  false,
			MinTextContentRatio: 0.1,
		},
		Sink: SinkConfig{
			TagWaitSeconds:      5,
			QueryTimeoutSeconds: 30,
			ErrorMinSeverity:    "high",
		},
		Workers: 1,
	}
}

// Load reads configuration from a YAML file, falling back to defaults when
// the file does not exist. Environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("STMTSEP_API_KEY"); key != "" {
		c.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.Provider.APIKey == "" {
		c.Provider.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.Provider.APIKey == "" {
		c.Provider.APIKey = key
	}
	if kind := os.Getenv("STMTSEP_PROVIDER"); kind != "" {
		c.Provider.Kind = kind
	}
	if url := os.Getenv("STMTSEP_ENDPOINT"); url != "" {
		c.Provider.Endpoint = url
	}
	if url := os.Getenv("PAPERLESS_URL"); url != "" {
		c.Sink.Endpoint = url
	}
	if token := os.Getenv("PAPERLESS_TOKEN"); token != "" {
		c.Sink.Token = token
	}
}

// ProviderTimeout returns the per-call provider timeout.
func (c *Config) ProviderTimeout() time.Duration {
	d, err := time.ParseDuration(c.Provider.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// BackoffBase returns the minimum backoff delay.
func (c *Config) BackoffBase() time.Duration {
	d, err := time.ParseDuration(c.RateLimit.BackoffMin)
	if err != nil {
		return time.Second
	}
	return d
}

// BackoffCap returns the maximum backoff delay.
func (c *Config) BackoffCap() time.Duration {
	d, err := time.ParseDuration(c.RateLimit.BackoffMax)
	if err != nil {
		return 60 * time.Second
	}
	return d
}
