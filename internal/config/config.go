package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the colloquy configuration
type Config struct {
	Model       ModelConfig       `json:"model" mapstructure:"model"`
	Session     SessionConfig     `json:"session" mapstructure:"session"`
	Tools       ToolPolicyConfig  `json:"tools" mapstructure:"tools"`
	Store       StoreConfig       `json:"store" mapstructure:"store"`
	Transcripts TranscriptsConfig `json:"transcripts" mapstructure:"transcripts"`
	Blueprints  BlueprintsConfig  `json:"blueprints" mapstructure:"blueprints"`
	Logging     LoggingConfig     `json:"logging" mapstructure:"logging"`
	Telemetry   TelemetryConfig   `json:"telemetry" mapstructure:"telemetry"`

	// Data directory; relative paths of the other sections resolve against it.
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ModelConfig selects the model streaming service.
type ModelConfig struct {
	Provider    string  `json:"provider" mapstructure:"provider"` // anthropic, openai, echo
	Name        string  `json:"name" mapstructure:"name"`
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	BaseURL     string  `json:"base_url" mapstructure:"base_url"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
}

// SessionConfig tunes the tool-call loop.
type SessionConfig struct {
	SystemPrompt  string        `json:"system_prompt" mapstructure:"system_prompt"`
	MaxIterations int           `json:"max_iterations" mapstructure:"max_iterations"` // 0 = unbounded
	ToolTimeout   time.Duration `json:"tool_timeout" mapstructure:"tool_timeout"`
	MaxToolOutput int           `json:"max_tool_output" mapstructure:"max_tool_output"` // bytes
}

// ToolPolicyConfig defines tool access policies
type ToolPolicyConfig struct {
	Allow []string `json:"allow" mapstructure:"allow"`
	Deny  []string `json:"deny" mapstructure:"deny"`
}

// StoreConfig locates the artifact and blueprint source database.
type StoreConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// TranscriptsConfig locates conversation transcripts.
type TranscriptsConfig struct {
	Dir    string        `json:"dir" mapstructure:"dir"`
	MaxAge time.Duration `json:"max_age" mapstructure:"max_age"` // prune threshold, 0 = keep
}

// BlueprintsConfig locates YAML blueprint files.
type BlueprintsConfig struct {
	Dir   string `json:"dir" mapstructure:"dir"`
	Watch bool   `json:"watch" mapstructure:"watch"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// TelemetryConfig holds tracing, metrics and audit settings.
type TelemetryConfig struct {
	Tracing     bool    `json:"tracing" mapstructure:"tracing"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
	MetricsAddr string  `json:"metrics_addr" mapstructure:"metrics_addr"`
	AuditLog    string  `json:"audit_log" mapstructure:"audit_log"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:    "anthropic",
			Name:        "claude-sonnet-4-5",
			MaxTokens:   4096,
			Temperature: 0.7,
		},
		Session: SessionConfig{
			ToolTimeout:   30 * time.Second,
			MaxToolOutput: 10 * 1024,
		},
		Tools: ToolPolicyConfig{
			Allow: []string{"*"},
			Deny:  []string{},
		},
		Blueprints: BlueprintsConfig{
			Watch: false,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			Redaction: true,
		},
		Telemetry: TelemetryConfig{
			SampleRatio: 1.0,
		},
	}
}

// String returns a JSON representation of the config with the API key masked.
func (c *Config) String() string {
	masked := *c
	if masked.Model.APIKey != "" {
		masked.Model.APIKey = "***"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// Validate checks the fields a run cannot start without.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case "anthropic", "openai":
		if c.Model.APIKey == "" {
			return fmt.Errorf("model %s: api_key is required", c.Model.Provider)
		}
	case "echo":
	case "":
		return fmt.Errorf("model provider is required")
	default:
		return fmt.Errorf("invalid model provider %s (must be: anthropic, openai, echo)", c.Model.Provider)
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model name is required")
	}
	if c.Session.MaxIterations < 0 {
		return fmt.Errorf("session.max_iterations must be >= 0")
	}
	return nil
}
