package config

import "fmt"

// ValidProviderKinds lists supported provider selections.
var ValidProviderKinds = []string{"remote", "local", "none"}

// ValidStrictness lists supported validation strictness levels.
var ValidStrictness = []string{"strict", "normal", "lenient"}

// Validate checks the configuration for startup-fatal mistakes.
func (c *Config) Validate() error {
	if err := c.validateProvider(); err != nil {
		return err
	}
	if err := c.validateRateLimit(); err != nil {
		return err
	}
	if err := c.validateLimits(); err != nil {
		return err
	}
	if err := c.validateDetection(); err != nil {
		return err
	}
	if err := c.validateValidation(); err != nil {
		return err
	}
	if err := c.validateSink(); err != nil {
		return err
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1")
	}
	return nil
}

func (c *Config) validateProvider() error {
	valid := false
	for _, k := range ValidProviderKinds {
		if c.Provider.Kind == k {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid provider kind: %s (valid: %v)", c.Provider.Kind, ValidProviderKinds)
	}
	if c.Provider.Kind == "remote" && c.Provider.APIKey == "" {
		return fmt.Errorf("remote provider requires an API key (set STMTSEP_API_KEY)")
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	if c.RateLimit.RequestsPerMinute < 1 {
		return fmt.Errorf("requests_per_minute must be >= 1")
	}
	if c.RateLimit.BurstLimit < 1 {
		return fmt.Errorf("burst_limit must be >= 1")
	}
	if c.RateLimit.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1")
	}
	if c.RateLimit.BackoffMultiplier < 1.0 {
		return fmt.Errorf("backoff_multiplier must be >= 1.0")
	}
	return nil
}

func (c *Config) validateLimits() error {
	if c.Limits.MaxFileSizeMB < 1 {
		return fmt.Errorf("max_file_size_mb must be >= 1")
	}
	if c.Limits.MaxTotalPages < 1 {
		return fmt.Errorf("max_total_pages must be >= 1")
	}
	if c.Limits.MaxPagesPerStatement < c.Limits.MinPagesPerStatement {
		return fmt.Errorf("max_pages_per_statement must be >= min_pages_per_statement")
	}
	if c.Limits.MaxFilenameLength < 20 {
		return fmt.Errorf("max_filename_length must be >= 20")
	}
	return nil
}

func (c *Config) validateDetection() error {
	if c.Detection.FragmentConfidenceThreshold < 0 || c.Detection.FragmentConfidenceThreshold > 1 {
		return fmt.Errorf("fragment_confidence_threshold must be in [0, 1]")
	}
	if c.Detection.TextAnalysisCharCap < 1000 {
		return fmt.Errorf("text_analysis_char_cap must be >= 1000")
	}
	return nil
}

func (c *Config) validateValidation() error {
	for _, s := range ValidStrictness {
		if c.Validation.Strictness == s {
			return nil
		}
	}
	return fmt.Errorf("invalid strictness: %s (valid: %v)", c.Validation.Strictness, ValidStrictness)
}

func (c *Config) validateSink() error {
	if !c.Sink.Enabled {
		return nil
	}
	if c.Sink.Endpoint == "" || c.Sink.Token == "" {
		return fmt.Errorf("sink requires endpoint and token when enabled")
	}
	if c.Sink.TagWaitSeconds < 0 || c.Sink.TagWaitSeconds > 60 {
		return fmt.Errorf("tag_wait_seconds must be in [0, 60]")
	}
	if c.Sink.QueryTimeoutSeconds < 1 || c.Sink.QueryTimeoutSeconds > 300 {
		return fmt.Errorf("query_timeout_seconds must be in [1, 300]")
	}
	return nil
}
