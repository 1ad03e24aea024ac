// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	ID          int64  `yaml:"id"`
	Token       string `yaml:"token" validate:"required"`
	Workers     int    `yaml:"workers" validate:"gte=1"` // update handlers
	PollTimeout int    `yaml:"poll_timeout"`             // seconds
	RatePerMin  int    `yaml:"rate_per_min"`             // inbound messages per chat per minute, 0 = unlimited
	Language    string `yaml:"language" validate:"omitempty,oneof=en fa"`
}

type LogConfig struct {
	Level    string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format   string `yaml:"format" validate:"oneof=json console"`
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port      int           `yaml:"port" validate:"gte=1,lte=65535"`
	JWTSecret string        `yaml:"jwt_secret" validate:"required,min=16"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url" validate:"required"`
	MaxConns int32  `yaml:"max_conns"`
	Migrate  bool   `yaml:"migrate"` // apply migrations on serve
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type QueueConfig struct {
	Driver     string        `yaml:"driver" validate:"oneof=postgres redis"`
	StaleAfter time.Duration `yaml:"stale_after"`
	ExpireCron string        `yaml:"expire_cron"`
}

type AIConfig struct {
	Provider        string        `yaml:"provider" validate:"oneof=openai gemini"`
	OpenAIKey       string        `yaml:"openai_key" validate:"required_if=Provider openai"`
	OpenAIBaseURL   string        `yaml:"openai_base_url"`
	GeminiKey       string        `yaml:"gemini_key" validate:"required_if=Provider gemini"`
	GeminiURL       string        `yaml:"gemini_url"`
	DefaultModel    string        `yaml:"default_model"`
	SystemPrompt    string        `yaml:"system_prompt"`
	MaxPromptTokens int           `yaml:"max_prompt_tokens"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	HistoryLimit    int           `yaml:"history_limit"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxConcurrent   int           `yaml:"max_concurrent"` // in-flight provider calls, 0 = unlimited

	// Models routes explicit model names to a provider when both keys are configured.
	Models map[string]string `yaml:"models" validate:"dive,oneof=openai gemini"`

	// Prices per 1000 tokens, decimal strings to keep precision.
	InputPricePer1K  string `yaml:"input_price_per_1k" validate:"omitempty,numeric"`
	OutputPricePer1K string `yaml:"output_price_per_1k" validate:"omitempty,numeric"`
}

type WorkerConfig struct {
	Concurrency  int           `yaml:"concurrency" validate:"gte=1"`
	MaxAttempts  int           `yaml:"max_attempts" validate:"gte=1"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type RecoveryConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Cron       string `yaml:"cron"`
	BatchLimit int    `yaml:"batch_limit"`
}

type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	Log      LogConfig      `yaml:"log"`
	Admin    AdminConfig    `yaml:"admin"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Queue    QueueConfig    `yaml:"queue"`
	AI       AIConfig       `yaml:"ai"`
	Worker   WorkerConfig   `yaml:"worker"`
	Recovery RecoveryConfig `yaml:"recovery"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies defaults and validates the result.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Queue.Driver == "redis" && cfg.Redis.URL == "" {
		return nil, fmt.Errorf("invalid config: redis.url is required when queue.driver=redis")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Bot.PollTimeout <= 0 {
		cfg.Bot.PollTimeout = 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if cfg.Admin.Port == 0 {
		cfg.Admin.Port = 8080
	}
	if cfg.Admin.TokenTTL <= 0 {
		cfg.Admin.TokenTTL = 12 * time.Hour
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Queue.Driver == "" {
		cfg.Queue.Driver = "postgres"
	}
	if cfg.Queue.StaleAfter <= 0 {
		cfg.Queue.StaleAfter = 15 * time.Minute
	}
	if cfg.Queue.ExpireCron == "" {
		cfg.Queue.ExpireCron = "*/5 * * * *"
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openai"
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.AI.MaxPromptTokens <= 0 {
		cfg.AI.MaxPromptTokens = 6000
	}
	if cfg.AI.MaxOutputTokens <= 0 {
		cfg.AI.MaxOutputTokens = 1024
	}
	if cfg.AI.HistoryLimit <= 0 {
		cfg.AI.HistoryLimit = 15
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 60 * time.Second
	}
	if cfg.Worker.Concurrency <= 0 {
		cfg.Worker.Concurrency = 4
	}
	if cfg.Worker.MaxAttempts <= 0 {
		cfg.Worker.MaxAttempts = 5
	}
	if cfg.Worker.PollInterval <= 0 {
		cfg.Worker.PollInterval = 500 * time.Millisecond
	}
	if cfg.Recovery.Cron == "" {
		cfg.Recovery.Cron = "*/10 * * * *"
	}
	if cfg.Recovery.BatchLimit <= 0 {
		cfg.Recovery.BatchLimit = 100
	}
}

// Prices returns the configured per-1k token prices; empty values count as zero.
func (c AIConfig) Prices() (in, out decimal.Decimal) {
	in, _ = decimal.NewFromString(c.InputPricePer1K)
	out, _ = decimal.NewFromString(c.OutputPricePer1K)
	return in, out
}
