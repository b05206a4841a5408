// Package config handles loading, defaulting, and validation of the
// application configuration from config.yaml and BOT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config defines the application configuration for all components:
// logging, Telegram ingestion, the Gemini provider, persistence, the admin
// HTTP server, batching policy, and scheduled tasks.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"log"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LoggerConfig controls slog output.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds the bot token and admin identity. When Enabled is
// false the process runs the admin API and scheduler only, without the
// Telegram listener (the admin-only deployment mode).
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"    validate:"required_if=Enabled true"`
	AdminID int64  `mapstructure:"admin_id" validate:"required_if=Enabled true"`
}

// GeminiConfig holds settings for the Gemini text and image models.
type GeminiConfig struct {
	APIKey      string  `mapstructure:"api_key" validate:"required"`
	TextModel   string  `mapstructure:"text_model"  validate:"required"`
	ImageModel  string  `mapstructure:"image_model" validate:"required"`
	Temperature float32 `mapstructure:"temperature" validate:"min=0,max=2"`

	MaxRetries        int `mapstructure:"max_retries"         validate:"min=0,max=10"`
	RetryDelaySeconds int `mapstructure:"retry_delay_seconds" validate:"min=1,max=300"`

	MixTimeout      time.Duration `mapstructure:"mix_timeout"      validate:"min=1s,max=10m"`
	GenerateTimeout time.Duration `mapstructure:"generate_timeout" validate:"min=1s,max=10m"`

	// Outbound rate limit for image generation calls. One request per
	// RateInterval, allowing bursts up to RateBurst.
	RateInterval time.Duration `mapstructure:"rate_interval" validate:"min=100ms,max=10m"`
	RateBurst    int           `mapstructure:"rate_burst"    validate:"min=1,max=10"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// ServerConfig holds the admin HTTP server settings.
type ServerConfig struct {
	Addr      string `mapstructure:"addr"       validate:"required"`
	ImagesDir string `mapstructure:"images_dir" validate:"required"`
}

// BatchConfig holds batching and prompt composition policy.
type BatchConfig struct {
	// Size is the fixed batch size. The assembler only forms full batches;
	// a trailing partial chunk stays in the queue.
	Size int `mapstructure:"size" validate:"min=1,max=100"`

	// MixedTextMaxLen caps the mixed text produced by the mixer.
	MixedTextMaxLen int `mapstructure:"mixed_text_max_len" validate:"min=20,max=1000"`

	// PromptMaxLen caps the composed image prompt (mixed text + base prompt).
	PromptMaxLen int `mapstructure:"prompt_max_len" validate:"min=100,max=4000"`

	// BasePromptPath is the file holding the current base style prompt.
	BasePromptPath string `mapstructure:"base_prompt_path" validate:"required"`

	// CleanupMaxAge is how old a terminal batch must be before the cleanup
	// task removes it.
	CleanupMaxAge time.Duration `mapstructure:"cleanup_max_age" validate:"min=1m"`
}

// TaskConfig enables and schedules one background task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SchedulerConfig maps task names to their schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// LoadConfig loads and validates configuration from:
// 1. Default values
// 2. The YAML file at configPath (optional)
// 3. BOT_* environment variables
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Missing config file is fine, defaults plus env cover everything
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)

	v.SetDefault("telegram.enabled", true)

	v.SetDefault("gemini.text_model", "gemini-2.0-flash")
	v.SetDefault("gemini.image_model", "gemini-2.0-flash-exp-image-generation")
	v.SetDefault("gemini.temperature", 1.0)
	v.SetDefault("gemini.max_retries", 3)
	v.SetDefault("gemini.retry_delay_seconds", 5)
	v.SetDefault("gemini.mix_timeout", 1*time.Minute)
	v.SetDefault("gemini.generate_timeout", 3*time.Minute)
	v.SetDefault("gemini.rate_interval", 10*time.Second)
	v.SetDefault("gemini.rate_burst", 1)

	v.SetDefault("database.path", "crowdcanvas.db")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.images_dir", "static/generated_images")

	v.SetDefault("batch.size", 5)
	v.SetDefault("batch.mixed_text_max_len", 100)
	v.SetDefault("batch.prompt_max_len", 500)
	v.SetDefault("batch.base_prompt_path", "current_base_prompt.txt")
	v.SetDefault("batch.cleanup_max_age", time.Hour)

	v.SetDefault("scheduler.tasks", map[string]TaskConfig{
		"batch_create":  {Enabled: false, Schedule: "0 */5 * * * *"},
		"batch_process": {Enabled: false, Schedule: "30 */1 * * * *"},
		"batch_cleanup": {Enabled: true, Schedule: "0 0 * * * *"},
	})
}
