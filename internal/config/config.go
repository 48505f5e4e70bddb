// Package config loads resilindex settings from defaults, an optional
// config file, RESILINDEX_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/itsmostafa/resilindex/internal/checkpoint"
	"github.com/itsmostafa/resilindex/internal/engine"
	"github.com/itsmostafa/resilindex/internal/logging"
	"github.com/itsmostafa/resilindex/internal/pacing"
	"github.com/itsmostafa/resilindex/internal/pageindex"
	"github.com/itsmostafa/resilindex/internal/retry"
)

// EnvPrefix prefixes every environment override, e.g. RESILINDEX_INDEX_MODEL.
const EnvPrefix = "RESILINDEX"

// Config is the resolved configuration for one process.
type Config struct {
	WorkDir   string         `mapstructure:"work_dir"`
	OutputDir string         `mapstructure:"output_dir"`
	Index     IndexConfig    `mapstructure:"index"`
	Markdown  MarkdownConfig `mapstructure:"markdown"`
	OpenAI    OpenAIConfig   `mapstructure:"openai"`
	Retry     RetryConfig    `mapstructure:"retry"`
	Pacing    PacingConfig   `mapstructure:"pacing"`
	Log       LogConfig      `mapstructure:"log"`
}

// IndexConfig holds the settings that shape the generated index.
type IndexConfig struct {
	Model               string `mapstructure:"model"`
	TOCCheckPages       int    `mapstructure:"toc_check_pages"`
	MaxPagesPerNode     int    `mapstructure:"max_pages_per_node"`
	MaxTokensPerNode    int    `mapstructure:"max_tokens_per_node"`
	IfAddNodeID         bool   `mapstructure:"if_add_node_id"`
	IfAddNodeSummary    bool   `mapstructure:"if_add_node_summary"`
	IfAddDocDescription bool   `mapstructure:"if_add_doc_description"`
	IfAddNodeText       bool   `mapstructure:"if_add_node_text"`
}

// MarkdownConfig tunes markdown indexing.
type MarkdownConfig struct {
	MinNodeTokens int `mapstructure:"min_node_tokens"`
}

// OpenAIConfig holds LLM connection settings.
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RetryConfig mirrors retry.Policy.
type RetryConfig struct {
	MaxAttempts    uint          `mapstructure:"max_attempts"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	Jitter         time.Duration `mapstructure:"jitter"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
}

// PacingConfig spaces out group extractions. A positive Rate selects a
// token bucket; otherwise Interval is the fixed gap.
type PacingConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Rate     float64       `mapstructure:"rate"`
	Burst    int           `mapstructure:"burst"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Defaults returns every setting with its default value, keyed the way the
// config file spells it.
func Defaults() map[string]any {
	run := engine.DefaultRunConfig()
	policy := retry.DefaultPolicy()
	return map[string]any{
		"work_dir":   checkpoint.DefaultDir,
		"output_dir": "./results",
		"index": map[string]any{
			"model":                  run.Model,
			"toc_check_pages":        run.TOCCheckPages,
			"max_pages_per_node":     run.GroupSize,
			"max_tokens_per_node":    run.MaxTokensPerNode,
			"if_add_node_id":         run.IfAddNodeID,
			"if_add_node_summary":    run.IfAddNodeSummary,
			"if_add_doc_description": run.IfAddDocDescription,
			"if_add_node_text":       run.IfAddNodeText,
		},
		"markdown": map[string]any{
			"min_node_tokens": 0,
		},
		"openai": map[string]any{
			"api_key":  "${OPENAI_API_KEY}",
			"base_url": "",
			"timeout":  "120s",
		},
		"retry": map[string]any{
			"max_attempts":    policy.MaxAttempts,
			"base_delay":      policy.BaseDelay.String(),
			"max_delay":       policy.MaxDelay.String(),
			"jitter":          policy.Jitter.String(),
			"attempt_timeout": "0s",
		},
		"pacing": map[string]any{
			"interval": engine.DefaultPaceInterval.String(),
			"rate":     0,
			"burst":    1,
		},
		"log": map[string]any{
			"level":  "info",
			"format": "text",
			"file":   "",
		},
	}
}

// Manager owns a viper instance and the settings resolved from it.
type Manager struct {
	v *viper.Viper
}

// NewManager sets up defaults, the environment and the config file. An
// empty cfgFile searches for config.yaml in . and $HOME/.resilindex; a
// missing file there is not an error. A .env file in the working directory
// is loaded into the environment first.
func NewManager(cfgFile string) (*Manager, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, "", Defaults())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.resilindex")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return &Manager{v: v}, nil
}

func setDefaults(v *viper.Viper, prefix string, values map[string]any) {
	for key, value := range values {
		if nested, ok := value.(map[string]any); ok {
			setDefaults(v, prefix+key+".", nested)
			continue
		}
		v.SetDefault(prefix+key, value)
	}
}

// ConfigFile returns the file that was read, or "" when none was found.
func (m *Manager) ConfigFile() string {
	return m.v.ConfigFileUsed()
}

// BindFlag makes a command-line flag override key when it is set.
func (m *Manager) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("binding %s: flag not defined", key)
	}
	return m.v.BindPFlag(key, flag)
}

// Set overrides key for the rest of the process.
func (m *Manager) Set(key string, value any) {
	m.v.Set(key, value)
}

// Load resolves the current settings.
func (m *Manager) Load() (*Config, error) {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.WorkDir == "" {
		return errors.New("config: work_dir must not be empty")
	}
	if c.OutputDir == "" {
		return errors.New("config: output_dir must not be empty")
	}
	if err := c.RunConfig().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Retry.MaxAttempts == 0 {
		return errors.New("config: retry.max_attempts must be at least 1")
	}
	if c.Pacing.Interval < 0 || c.Pacing.Rate < 0 {
		return errors.New("config: pacing values must not be negative")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// RunConfig returns the engine settings.
func (c *Config) RunConfig() engine.RunConfig {
	return engine.RunConfig{
		Model:               c.Index.Model,
		GroupSize:           c.Index.MaxPagesPerNode,
		TOCCheckPages:       c.Index.TOCCheckPages,
		MaxTokensPerNode:    c.Index.MaxTokensPerNode,
		IfAddNodeID:         c.Index.IfAddNodeID,
		IfAddNodeSummary:    c.Index.IfAddNodeSummary,
		IfAddDocDescription: c.Index.IfAddDocDescription,
		IfAddNodeText:       c.Index.IfAddNodeText,
	}
}

// RetryPolicy returns the retry settings.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:    c.Retry.MaxAttempts,
		BaseDelay:      c.Retry.BaseDelay,
		MaxDelay:       c.Retry.MaxDelay,
		Jitter:         c.Retry.Jitter,
		AttemptTimeout: c.Retry.AttemptTimeout,
	}
}

// Pacer returns the pacer for group extraction.
func (c *Config) Pacer() pacing.Pacer {
	if c.Pacing.Rate > 0 {
		return pacing.TokenBucket(c.Pacing.Rate, c.Pacing.Burst)
	}
	return pacing.Interval(c.Pacing.Interval)
}

// LoggingOptions returns the logger settings.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{Level: c.Log.Level, Format: c.Log.Format, File: c.Log.File}
}

// MarkdownOptions returns the markdown indexing settings.
func (c *Config) MarkdownOptions() pageindex.MarkdownOptions {
	return pageindex.MarkdownOptions{MinNodeTokens: c.Markdown.MinNodeTokens}
}

// OpenAIProviderConfig returns the LLM settings with ${ENV} references in
// the API key resolved. An empty key falls back to OPENAI_API_KEY.
func (c *Config) OpenAIProviderConfig() pageindex.OpenAIConfig {
	key := ResolveEnvVars(c.OpenAI.APIKey)
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	return pageindex.OpenAIConfig{
		APIKey:  key,
		BaseURL: c.OpenAI.BaseURL,
		Model:   c.Index.Model,
		Timeout: c.OpenAI.Timeout,
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}
