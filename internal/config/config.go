// Package config loads and validates the application configuration via
// viper, layering config file, COACT_* environment variables and command
// line flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root of the application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Planner  PlannerConfig  `mapstructure:"planner" yaml:"planner"`
	Executor ExecutorConfig `mapstructure:"executor" yaml:"executor"`
	Budgets  BudgetsConfig  `mapstructure:"budgets" yaml:"budgets"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Runner   RunnerConfig   `mapstructure:"runner" yaml:"runner"`
}

// LoggerConfig configures the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"` // megabytes, per rotated file
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// LLMConfig configures the model gateway.
type LLMConfig struct {
	Provider      string        `mapstructure:"provider" yaml:"provider"` // "gemini" (REST) or "genai" (SDK)
	Model         string        `mapstructure:"model" yaml:"model"`
	APIKey        string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint      string        `mapstructure:"endpoint" yaml:"endpoint"`
	Temperature   float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens     int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	StopSequences []string      `mapstructure:"stop_sequences" yaml:"stop_sequences"`
	APITimeout    time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	// RequestsPerMinute throttles the shared gateway across concurrent
	// runs; zero disables throttling.
	RequestsPerMinute float64 `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
}

// PlannerConfig tunes the global planning agent.
type PlannerConfig struct {
	// MaxRetries bounds repair attempts after a failed or unparseable
	// plan generation before the run is aborted.
	MaxRetries      int `mapstructure:"max_retries" yaml:"max_retries"`
	MaxHistoryChars int `mapstructure:"max_history_chars" yaml:"max_history_chars"`
}

// ExecutorConfig tunes the local execution agent.
type ExecutorConfig struct {
	// MaxSteps is the per-sub-task step budget; exhausting it yields a
	// timed_out outcome.
	MaxSteps int `mapstructure:"max_steps" yaml:"max_steps"`
	// ParsingFailureLimit is the number of consecutive unparseable or
	// invalid actions tolerated before the sub-task fails.
	ParsingFailureLimit int `mapstructure:"parsing_failure_limit" yaml:"parsing_failure_limit"`
	// RepeatingActionLimit fails the sub-task when the same action is
	// emitted this many times, a stalled agent signature.
	RepeatingActionLimit int `mapstructure:"repeating_action_limit" yaml:"repeating_action_limit"`
	MaxObservationChars  int `mapstructure:"max_observation_chars" yaml:"max_observation_chars"`
	// ContextLookback is how many trailing trajectory steps are replayed
	// into each prompt.
	ContextLookback int `mapstructure:"context_lookback" yaml:"context_lookback"`
	// AdapterRetries bounds local retries of a failed observe/act call
	// before it escalates into a sub-task failure.
	AdapterRetries int `mapstructure:"adapter_retries" yaml:"adapter_retries"`
}

// BudgetsConfig holds the run-wide ceilings enforced by the orchestrator.
type BudgetsConfig struct {
	MaxTotalSteps int           `mapstructure:"max_total_steps" yaml:"max_total_steps"`
	MaxReplans    int           `mapstructure:"max_replans" yaml:"max_replans"`
	MaxWallClock  time.Duration `mapstructure:"max_wall_clock" yaml:"max_wall_clock"`
}

// BrowserConfig configures the chromedp environment adapter.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	SlowMo            time.Duration `mapstructure:"slow_mo" yaml:"slow_mo"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	ScreenshotDir     string        `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
}

// RunnerConfig configures batch evaluation over a task range.
type RunnerConfig struct {
	TaskDir     string        `mapstructure:"task_dir" yaml:"task_dir"`
	ResultDir   string        `mapstructure:"result_dir" yaml:"result_dir"`
	StartIndex  int           `mapstructure:"start_index" yaml:"start_index"`
	EndIndex    int           `mapstructure:"end_index" yaml:"end_index"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
	SleepAfter  time.Duration `mapstructure:"sleep_after" yaml:"sleep_after"`
	Render      bool          `mapstructure:"render" yaml:"render"`
	Screenshot  bool          `mapstructure:"screenshot" yaml:"screenshot"`
	SaveTrace   bool          `mapstructure:"save_trace" yaml:"save_trace"`
	Store       string        `mapstructure:"store" yaml:"store"` // "file" or "postgres"
	PostgresDSN string        `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
}

// SetDefaults registers every default on the given viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "coact")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.temperature", 1.0)
	v.SetDefault("llm.max_tokens", 384)
	v.SetDefault("llm.api_timeout", 90*time.Second)
	v.SetDefault("llm.requests_per_minute", 60.0)
	v.SetDefault("llm.burst", 4)

	v.SetDefault("planner.max_retries", 2)
	v.SetDefault("planner.max_history_chars", 6000)

	v.SetDefault("executor.max_steps", 30)
	v.SetDefault("executor.parsing_failure_limit", 3)
	v.SetDefault("executor.repeating_action_limit", 3)
	v.SetDefault("executor.max_observation_chars", 1920)
	v.SetDefault("executor.context_lookback", 10)
	v.SetDefault("executor.adapter_retries", 2)

	v.SetDefault("budgets.max_total_steps", 120)
	v.SetDefault("budgets.max_replans", 3)
	v.SetDefault("budgets.max_wall_clock", 30*time.Minute)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 720)
	v.SetDefault("browser.navigation_timeout", 30*time.Second)

	v.SetDefault("runner.task_dir", "tasks")
	v.SetDefault("runner.result_dir", "results")
	v.SetDefault("runner.end_index", 1000)
	v.SetDefault("runner.concurrency", 1)
	v.SetDefault("runner.store", "file")
}

// Load unmarshals the configuration out of the given viper instance and
// validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the control loop cannot run under.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LLM.Provider) {
	case "gemini", "genai":
	default:
		return fmt.Errorf("llm.provider %q is not supported (want gemini or genai)", c.LLM.Provider)
	}
	if c.Executor.MaxSteps <= 0 {
		return fmt.Errorf("executor.max_steps must be positive, got %d", c.Executor.MaxSteps)
	}
	if c.Executor.ParsingFailureLimit <= 0 {
		return fmt.Errorf("executor.parsing_failure_limit must be positive, got %d", c.Executor.ParsingFailureLimit)
	}
	if c.Budgets.MaxTotalSteps <= 0 {
		return fmt.Errorf("budgets.max_total_steps must be positive, got %d", c.Budgets.MaxTotalSteps)
	}
	if c.Budgets.MaxReplans < 0 {
		return fmt.Errorf("budgets.max_replans must not be negative, got %d", c.Budgets.MaxReplans)
	}
	if c.Planner.MaxRetries < 0 {
		return fmt.Errorf("planner.max_retries must not be negative, got %d", c.Planner.MaxRetries)
	}
	if c.Runner.StartIndex < 0 || c.Runner.EndIndex < c.Runner.StartIndex {
		return fmt.Errorf("runner task range [%d, %d) is invalid", c.Runner.StartIndex, c.Runner.EndIndex)
	}
	if c.Runner.Concurrency <= 0 {
		return fmt.Errorf("runner.concurrency must be positive, got %d", c.Runner.Concurrency)
	}
	switch c.Runner.Store {
	case "file", "postgres":
	default:
		return fmt.Errorf("runner.store %q is not supported (want file or postgres)", c.Runner.Store)
	}
	if c.Runner.Store == "postgres" && c.Runner.PostgresDSN == "" {
		return fmt.Errorf("runner.postgres_dsn is required when runner.store is postgres")
	}
	return nil
}
