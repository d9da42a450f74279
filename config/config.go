package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Debug bool   `yaml:"debug"`
}

type ElevenLabsConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"` // https://api.elevenlabs.io
	Timeout time.Duration `yaml:"timeout"`
	// Bulk retrieval
	PageSize          int `yaml:"page_size"`
	MaxRetries        int `yaml:"max_retries"`
	MaxRateLimitWaits int `yaml:"max_rate_limit_waits"`
}

type SummarizerConfig struct {
	Provider         string        `yaml:"provider"` // openai | perplexity
	OpenAIAPIKey     string        `yaml:"openai_api_key"`
	OpenAIBaseURL    string        `yaml:"openai_base_url"`
	OpenAIModel      string        `yaml:"openai_model"`
	PerplexityAPIKey string        `yaml:"perplexity_api_key"`
	PerplexityURL    string        `yaml:"perplexity_url"`
	PerplexityModel  string        `yaml:"perplexity_model"`
	MaxTokens        int           `yaml:"max_tokens"`
	Timeout          time.Duration `yaml:"timeout"`
}

type DynamoDBConfig struct {
	Endpoint        string `yaml:"endpoint"` // http://localhost:8000 for DynamoDB Local
	Region          string `yaml:"region"`
	Table           string `yaml:"table"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

type StoreConfig struct {
	Backend    string         `yaml:"backend"`    // dynamodb | postgres | none
	SheetName  string         `yaml:"sheet_name"` // tabular target name
	CSVFile    string         `yaml:"csv_file"`   // fallback store
	PauseEvery int            `yaml:"pause_every"`
	Pause      time.Duration  `yaml:"pause"`
	MaxText    int            `yaml:"max_text"`
	DynamoDB   DynamoDBConfig `yaml:"dynamodb"`
	Postgres   PostgresConfig `yaml:"postgres"`
}

type ArchiveConfig struct {
	Dir string `yaml:"dir"` // empty disables archiving
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Store      StoreConfig      `yaml:"store"`
	Archive    ArchiveConfig    `yaml:"archive"`
	LogLevel   string           `yaml:"log_level"`
}

// Load reads the YAML file at path (a missing file is not an error), applies
// environment overrides and fills defaults.
func Load(path string) (*Config, error) {
	c := &Config{}
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, c); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	c.applyEnv(os.Getenv)
	c.applyDefaults()
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				*dst = strings.Trim(v, `"'`)
				return
			}
		}
	}
	set(&c.ElevenLabs.APIKey, "ELEVENLABS_API_KEY", "ELEVEN_API_KEY")
	set(&c.Summarizer.OpenAIAPIKey, "OPENAI_API_KEY")
	set(&c.Summarizer.PerplexityAPIKey, "PERPLEXITY_API_KEY")
	set(&c.Store.SheetName, "SHEET_NAME")
	set(&c.Store.CSVFile, "JOURNAL_CSV_FILE")
	set(&c.Store.Postgres.DSN, "POSTGRES_DSN")
	set(&c.Store.DynamoDB.Endpoint, "DYNAMODB_ENDPOINT")
	if strings.EqualFold(getenv("DEBUG"), "true") {
		c.Server.Debug = true
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}

	if c.ElevenLabs.BaseURL == "" {
		c.ElevenLabs.BaseURL = "https://api.elevenlabs.io"
	}
	if c.ElevenLabs.Timeout <= 0 {
		c.ElevenLabs.Timeout = 30 * time.Second
	}
	if c.ElevenLabs.PageSize <= 0 {
		c.ElevenLabs.PageSize = 100
	}
	if c.ElevenLabs.MaxRetries <= 0 {
		c.ElevenLabs.MaxRetries = 3
	}
	if c.ElevenLabs.MaxRateLimitWaits <= 0 {
		c.ElevenLabs.MaxRateLimitWaits = 10
	}

	if c.Summarizer.Provider == "" {
		if c.Summarizer.OpenAIAPIKey == "" && c.Summarizer.PerplexityAPIKey != "" {
			c.Summarizer.Provider = "perplexity"
		} else {
			c.Summarizer.Provider = "openai"
		}
	}
	if c.Summarizer.OpenAIModel == "" {
		c.Summarizer.OpenAIModel = "gpt-3.5-turbo"
	}
	if c.Summarizer.PerplexityURL == "" {
		c.Summarizer.PerplexityURL = "https://api.perplexity.ai/chat/completions"
	}
	if c.Summarizer.PerplexityModel == "" {
		c.Summarizer.PerplexityModel = "sonar"
	}
	if c.Summarizer.MaxTokens <= 0 {
		c.Summarizer.MaxTokens = 100
	}
	if c.Summarizer.Timeout <= 0 {
		c.Summarizer.Timeout = 60 * time.Second
	}

	if c.Store.Backend == "" {
		if c.Store.Postgres.DSN != "" {
			c.Store.Backend = "postgres"
		} else {
			c.Store.Backend = "dynamodb"
		}
	}
	if c.Store.SheetName == "" {
		c.Store.SheetName = "Call Logs"
	}
	if c.Store.CSVFile == "" {
		c.Store.CSVFile = "journal_entries.csv"
	}
	if c.Store.PauseEvery <= 0 {
		c.Store.PauseEvery = 10
	}
	if c.Store.Pause <= 0 {
		c.Store.Pause = 2 * time.Second
	}
	if c.Store.MaxText <= 0 {
		c.Store.MaxText = 1000
	}
	if c.Store.DynamoDB.Region == "" {
		c.Store.DynamoDB.Region = "us-east-1"
	}
	if c.Store.DynamoDB.Table == "" {
		c.Store.DynamoDB.Table = "JournalSheets"
	}
	if c.Store.Postgres.Table == "" {
		c.Store.Postgres.Table = "journal_rows"
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// RequireElevenLabs reports whether flows that talk to ElevenLabs can start.
func (c *Config) RequireElevenLabs() error {
	if strings.TrimSpace(c.ElevenLabs.APIKey) == "" {
		return errors.New("ELEVENLABS_API_KEY (or ELEVEN_API_KEY) is required")
	}
	return nil
}

// SummarizerKey returns the credential of the configured summarizer provider,
// empty when summarization is disabled.
func (c *Config) SummarizerKey() string {
	switch c.Summarizer.Provider {
	case "perplexity":
		return c.Summarizer.PerplexityAPIKey
	default:
		return c.Summarizer.OpenAIAPIKey
	}
}

// Level maps LogLevel (and Server.Debug) onto a slog level.
func (c *Config) Level() slog.Level {
	if c.Server.Debug {
		return slog.LevelDebug
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger from the config.
func (c *Config) NewLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: c.Level()}))
}
