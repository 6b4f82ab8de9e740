package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix      = "COLLOQUY"
	configDirName  = ".colloquy"
	configFileName = "colloquy.json"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the config file when it exists, overlays COLLOQUY_* environment
// variables and fills in derived paths.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := resolvePaths(cfg); err != nil {
		return nil, err
	}
	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = providerKeyFromEnv(cfg.Model.Provider)
	}

	return cfg, nil
}

// Save writes cfg as JSON to the loader's config path.
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to determine config path")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("model", cfg.Model)
	v.Set("session", cfg.Session)
	v.Set("tools", cfg.Tools)
	v.Set("store", cfg.Store)
	v.Set("transcripts", cfg.Transcripts)
	v.Set("blueprints", cfg.Blueprints)
	v.Set("logging", cfg.Logging)
	v.Set("telemetry", cfg.Telemetry)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, configDirName, configFileName)
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

// setDefaults registers every leaf key so AutomaticEnv can override keys the
// config file does not mention.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("model.provider", cfg.Model.Provider)
	v.SetDefault("model.name", cfg.Model.Name)
	v.SetDefault("model.api_key", cfg.Model.APIKey)
	v.SetDefault("model.base_url", cfg.Model.BaseURL)
	v.SetDefault("model.max_tokens", cfg.Model.MaxTokens)
	v.SetDefault("model.temperature", cfg.Model.Temperature)
	v.SetDefault("session.system_prompt", cfg.Session.SystemPrompt)
	v.SetDefault("session.max_iterations", cfg.Session.MaxIterations)
	v.SetDefault("session.tool_timeout", cfg.Session.ToolTimeout)
	v.SetDefault("session.max_tool_output", cfg.Session.MaxToolOutput)
	v.SetDefault("tools.allow", cfg.Tools.Allow)
	v.SetDefault("tools.deny", cfg.Tools.Deny)
	v.SetDefault("store.path", cfg.Store.Path)
	v.SetDefault("transcripts.dir", cfg.Transcripts.Dir)
	v.SetDefault("transcripts.max_age", cfg.Transcripts.MaxAge)
	v.SetDefault("blueprints.dir", cfg.Blueprints.Dir)
	v.SetDefault("blueprints.watch", cfg.Blueprints.Watch)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)
	v.SetDefault("logging.redaction", cfg.Logging.Redaction)
	v.SetDefault("telemetry.tracing", cfg.Telemetry.Tracing)
	v.SetDefault("telemetry.sample_ratio", cfg.Telemetry.SampleRatio)
	v.SetDefault("telemetry.metrics_addr", cfg.Telemetry.MetricsAddr)
	v.SetDefault("telemetry.audit_log", cfg.Telemetry.AuditLog)
	v.SetDefault("data_dir", cfg.DataDir)
}

func resolvePaths(cfg *Config) error {
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, configDirName)
	}

	under := func(p, fallback string) string {
		if p == "" {
			p = fallback
		}
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(cfg.DataDir, p)
	}

	cfg.Store.Path = under(cfg.Store.Path, "colloquy.db")
	cfg.Transcripts.Dir = under(cfg.Transcripts.Dir, "transcripts")
	cfg.Blueprints.Dir = under(cfg.Blueprints.Dir, "blueprints")
	if cfg.Logging.File != "" {
		cfg.Logging.File = under(cfg.Logging.File, "")
	}
	if cfg.Telemetry.AuditLog != "" {
		cfg.Telemetry.AuditLog = under(cfg.Telemetry.AuditLog, "")
	}
	return nil
}

func providerKeyFromEnv(provider string) string {
	switch provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}
