// Package config loads and validates service configuration.
//
// Precedence is environment over file over defaults, matching how the
// service is deployed: the YAML file carries the stable shape, env vars
// carry per-host secrets and schedule tweaks.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration validation errors.
var (
	ErrMissingLLMKey            = errors.New("llm.api_key is required")
	ErrMissingLLMModel          = errors.New("llm.model is required")
	ErrMissingSearchURL         = errors.New("search.base_url is required")
	ErrMissingPublishURL        = errors.New("publish.mcp_url is required")
	ErrInvalidDailyAt           = errors.New("schedule.daily_at must be HH:MM")
	ErrInvalidMode              = errors.New("schedule.mode must be one of: general, paper_analysis, zhihu")
	ErrInvalidMediaBounds       = errors.New("media.min_count must be >= 1 and <= media.max_count")
	ErrInvalidMaxAttempts       = errors.New("retry.max_attempts must be at least 1")
	ErrInvalidInitialDelay      = errors.New("retry.initial_delay_ms must be non-negative")
	ErrInvalidBackoffMultiplier = errors.New("retry.backoff_multiplier must be >= 1.0")
)

// Valid content generation modes.
const (
	ModeGeneral       = "general"
	ModePaperAnalysis = "paper_analysis"
	ModeZhihu         = "zhihu"
)

// Config is the complete service configuration.
type Config struct {
	Schedule ScheduleConfig `yaml:"schedule"`
	LLM      LLMConfig      `yaml:"llm"`
	Search   SearchConfig   `yaml:"search"`
	Publish  PublishConfig  `yaml:"publish"`
	Media    MediaConfig    `yaml:"media"`
	Retry    RetryPolicy    `yaml:"retry"`
	Logging  LoggingConfig  `yaml:"logging"`
	RunLog   string         `yaml:"run_log"`
}

// ScheduleConfig drives the scheduler. DailyAt takes priority over
// IntervalHours when both are set.
type ScheduleConfig struct {
	IntervalHours int    `yaml:"interval_hours"`
	DailyAt       string `yaml:"daily_at"`
	RunOnStart    bool   `yaml:"run_on_start"`
	Domain        string `yaml:"domain"`
	Mode          string `yaml:"mode"`
}

// LLMConfig configures the language-model collaborator.
type LLMConfig struct {
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// SearchConfig configures the search collaborator.
type SearchConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// PublishConfig configures the browser-automation collaborator.
type PublishConfig struct {
	MCPURL     string `yaml:"mcp_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// MediaConfig bounds the published image set.
type MediaConfig struct {
	MinCount int `yaml:"min_count"`
	MaxCount int `yaml:"max_count"`
	Workers  int `yaml:"workers"`
}

// RetryPolicy defines per-stage retry behavior.
type RetryPolicy struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialDelayMs    int     `yaml:"initial_delay_ms"`
	MaxDelayMs        int     `yaml:"max_delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Schedule: ScheduleConfig{
			IntervalHours: 1,
			RunOnStart:    true,
			Domain:        "AI",
			Mode:          ModeGeneral,
		},
		LLM: LLMConfig{
			Model: "gpt-4o",
		},
		Publish: PublishConfig{
			MCPURL:     "http://localhost:18060/mcp",
			TimeoutSec: 60,
		},
		Media: MediaConfig{
			MinCount: 5,
			MaxCount: 7,
			Workers:  4,
		},
		Retry: RetryPolicy{
			MaxAttempts:       3,
			InitialDelayMs:    1000,
			MaxDelayMs:        30000,
			BackoffMultiplier: 2.0,
		},
		Logging: LoggingConfig{Level: "info"},
		RunLog:  "logs/runs.jsonl",
	}
}

// Load reads YAML config from path (optional), applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("DEFAULT_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("SEARCH_API_KEY"); v != "" {
		c.Search.APIKey = v
	}
	if v := os.Getenv("SEARCH_BASE_URL"); v != "" {
		c.Search.BaseURL = v
	}
	if v := os.Getenv("XHS_MCP_URL"); v != "" {
		c.Publish.MCPURL = v
	}
	if v := os.Getenv("AUTO_PUBLISH_INTERVAL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Schedule.IntervalHours = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("AUTO_PUBLISH_DAILY_AT")); v != "" {
		c.Schedule.DailyAt = v
	}
	if v := os.Getenv("AUTO_PUBLISH_RUN_ON_START"); v != "" {
		c.Schedule.RunOnStart = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv("AUTO_PUBLISH_DOMAIN")); v != "" {
		c.Schedule.Domain = v
	}
	if v := strings.TrimSpace(os.Getenv("AUTO_PUBLISH_CONTENT_TYPE")); v != "" {
		c.Schedule.Mode = v
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

// Validate checks the configuration, normalizing recoverable values.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return ErrMissingLLMKey
	}
	if c.LLM.Model == "" {
		return ErrMissingLLMModel
	}
	if c.Search.BaseURL == "" {
		return ErrMissingSearchURL
	}
	if c.Publish.MCPURL == "" {
		return ErrMissingPublishURL
	}

	switch c.Schedule.Mode {
	case ModeGeneral, ModePaperAnalysis, ModeZhihu:
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidMode, c.Schedule.Mode)
	}

	if c.Schedule.IntervalHours < 1 {
		c.Schedule.IntervalHours = 1
	}
	if c.Schedule.Domain == "" {
		c.Schedule.Domain = "AI"
	}

	if c.Schedule.DailyAt != "" {
		if _, _, err := ParseDailyAt(c.Schedule.DailyAt); err != nil {
			return err
		}
	}

	if c.Media.MinCount < 1 || c.Media.MinCount > c.Media.MaxCount {
		return ErrInvalidMediaBounds
	}
	if c.Media.Workers < 1 {
		c.Media.Workers = 4
	}

	if c.Retry.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}
	if c.Retry.InitialDelayMs < 0 {
		return ErrInvalidInitialDelay
	}
	if c.Retry.BackoffMultiplier < 1.0 {
		return ErrInvalidBackoffMultiplier
	}

	return nil
}

// ParseDailyAt parses an HH:MM wall-clock time.
func ParseDailyAt(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: got %q", ErrInvalidDailyAt, s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: got %q", ErrInvalidDailyAt, s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: got %q", ErrInvalidDailyAt, s)
	}
	return hour, minute, nil
}

// GetRetryDelay calculates exponential backoff delay for attempt number.
// Attempt 1 is the first try and carries no delay.
func (rp *RetryPolicy) GetRetryDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delayMs := float64(rp.InitialDelayMs)
	for i := 2; i < attempt; i++ {
		delayMs *= rp.BackoffMultiplier
	}

	if rp.MaxDelayMs > 0 && int(delayMs) > rp.MaxDelayMs {
		delayMs = float64(rp.MaxDelayMs)
	}

	return time.Duration(int(delayMs)) * time.Millisecond
}

// Timeout returns the publish collaborator request timeout.
func (p *PublishConfig) Timeout() time.Duration {
	if p.TimeoutSec < 1 {
		return 60 * time.Second
	}
	return time.Duration(p.TimeoutSec) * time.Second
}
