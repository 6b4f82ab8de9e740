package config

import (
	"fmt"
	"path"
	"strings"
)

var (
	validProviders = []string{"anthropic", "openai", "echo"}
	validLevels    = []string{"debug", "info", "warn", "error"}
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateProvider checks the model provider name.
func (v *Validator) ValidateProvider(provider string) error {
	for _, valid := range validProviders {
		if provider == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid model provider: %s (must be one of: %s)", provider, strings.Join(validProviders, ", "))
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if provider == "echo" {
		return nil
	}
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateToolPatterns checks that allow/deny entries are valid glob patterns.
func (v *Validator) ValidateToolPatterns(patterns []string) error {
	for _, p := range patterns {
		if _, err := path.Match(p, ""); err != nil {
			return fmt.Errorf("invalid tool pattern %q: %w", p, err)
		}
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateProvider(cfg.Model.Provider); err != nil {
		errors = append(errors, err)
	} else if err := v.ValidateAPIKey(cfg.Model.APIKey, cfg.Model.Provider); err != nil {
		errors = append(errors, err)
	}
	if cfg.Model.Name == "" {
		errors = append(errors, fmt.Errorf("model name cannot be empty"))
	}
	if err := v.ValidateTemperature(cfg.Model.Temperature); err != nil {
		errors = append(errors, err)
	}
	if cfg.Model.MaxTokens != 0 {
		if err := v.ValidateMaxTokens(cfg.Model.MaxTokens); err != nil {
			errors = append(errors, err)
		}
	}

	if cfg.Session.MaxIterations < 0 {
		errors = append(errors, fmt.Errorf("session.max_iterations must be >= 0"))
	}
	if cfg.Session.ToolTimeout < 0 {
		errors = append(errors, fmt.Errorf("session.tool_timeout must be >= 0"))
	}
	if cfg.Session.MaxToolOutput < 0 {
		errors = append(errors, fmt.Errorf("session.max_tool_output must be >= 0"))
	}

	if err := v.ValidateToolPatterns(cfg.Tools.Allow); err != nil {
		errors = append(errors, fmt.Errorf("tools.allow: %w", err))
	}
	if err := v.ValidateToolPatterns(cfg.Tools.Deny); err != nil {
		errors = append(errors, fmt.Errorf("tools.deny: %w", err))
	}

	if cfg.Transcripts.MaxAge < 0 {
		errors = append(errors, fmt.Errorf("transcripts.max_age must be >= 0"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		errors = append(errors, fmt.Errorf("telemetry.sample_ratio must be between 0 and 1, got %f", cfg.Telemetry.SampleRatio))
	}

	return errors
}
