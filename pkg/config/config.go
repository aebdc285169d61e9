// Package config holds the tunable parameters of the PageLens core and loads
// them from an optional YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for orchestrator tuning. These match the behavior of the browser
// extension in its default configuration.
const (
	// DefaultGracePeriod is how long the session manager waits after
	// destroying the keepalive session before creating an exclusive one,
	// giving the host time to release model resources.
	DefaultGracePeriod = 150 * time.Millisecond

	// DefaultMinInputWords is the minimum word count accepted by
	// summarize and explain before the capability is ever consulted.
	DefaultMinInputWords = 10

	// DefaultFallbackWordBudget is how many words of the original input
	// the degraded summarize output preserves.
	DefaultFallbackWordBudget = 20

	// DefaultChatTokenQuota is the assumed context-window budget for a
	// chat session when the host does not report one.
	DefaultChatTokenQuota = 4096
)

// Config carries every tunable the orchestrator and its collaborators read.
type Config struct {
	// GracePeriod is the keepalive-eviction release delay.
	GracePeriod time.Duration `yaml:"grace_period"`

	// MinInputWords rejects too-short summarize/explain input before any
	// capability work happens.
	MinInputWords int `yaml:"min_input_words"`

	// FallbackWordBudget bounds the truncated input echoed by the
	// degraded summarize path.
	FallbackWordBudget int `yaml:"fallback_word_budget"`

	// DisplayLanguages are the output languages the host models support.
	DisplayLanguages []string `yaml:"display_languages"`

	// DefaultSummaryType, DefaultSummaryLength and DefaultOutputLanguage
	// fill in summarizer configuration the caller omits.
	DefaultSummaryType    string `yaml:"default_summary_type"`
	DefaultSummaryLength  string `yaml:"default_summary_length"`
	DefaultOutputLanguage string `yaml:"default_output_language"`

	// HostRequirement is the human-readable minimum host requirement
	// quoted in troubleshooting text.
	HostRequirement string `yaml:"host_requirement"`

	// ChatTokenQuota is the fallback context-window budget for chat.
	ChatTokenQuota int `yaml:"chat_token_quota"`
}

// Default returns the configuration the extension ships with.
func Default() *Config {
	return &Config{
		GracePeriod:           DefaultGracePeriod,
		MinInputWords:         DefaultMinInputWords,
		FallbackWordBudget:    DefaultFallbackWordBudget,
		DisplayLanguages:      []string{"en", "es", "ja"},
		DefaultSummaryType:    "tldr",
		DefaultSummaryLength:  "short",
		DefaultOutputLanguage: "en",
		HostRequirement:       "Chrome 138+ with built-in AI enabled (chrome://flags/#optimization-guide-on-device-model)",
		ChatTokenQuota:        DefaultChatTokenQuota,
	}
}

// Load reads a YAML config file and overlays it on the defaults. A missing
// file returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the orchestrator cannot work
// with.
func (c *Config) Validate() error {
	if c.GracePeriod < 0 {
		return fmt.Errorf("config: grace_period must not be negative")
	}
	if c.MinInputWords < 1 {
		return fmt.Errorf("config: min_input_words must be at least 1")
	}
	if c.FallbackWordBudget < 1 {
		return fmt.Errorf("config: fallback_word_budget must be at least 1")
	}
	if len(c.DisplayLanguages) == 0 {
		return fmt.Errorf("config: at least one display language is required")
	}
	if c.ChatTokenQuota < 1 {
		return fmt.Errorf("config: chat_token_quota must be at least 1")
	}
	return nil
}
