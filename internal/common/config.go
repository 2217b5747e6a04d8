package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Cache      CacheConfig      `yaml:"cache"`
	Paths      PathsConfig      `yaml:"paths"`
	Database   DatabaseConfig   `yaml:"database"`
	Log        LogConfig        `yaml:"log"`
	Workers    int              `yaml:"workers" validate:"min=1,max=64"`
}

// LLMConfig selects and tunes the model backend.
type LLMConfig struct {
	Provider          string        `yaml:"provider" validate:"oneof=openai anthropic gemini ollama"`
	Model             string        `yaml:"model" validate:"required"`
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url" validate:"omitempty,url"`
	Temperature       float32       `yaml:"temperature" validate:"min=0,max=2"`
	MaxTokens         int           `yaml:"max_tokens" validate:"min=0"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	RequestsPerMinute int           `yaml:"requests_per_minute" validate:"min=0"`
}

// ExtractionConfig holds the tunables of the extraction engine.
type ExtractionConfig struct {
	MaxAttempts      int           `yaml:"max_attempts" validate:"min=1,max=10"`
	GraphChunks      int           `yaml:"graph_chunks" validate:"min=1"`
	GraphTokenBudget int           `yaml:"graph_token_budget" validate:"min=0"`
	MinChunkChars    int           `yaml:"min_chunk_chars" validate:"min=0"`
	RetryDelay       time.Duration `yaml:"retry_delay" validate:"min=0"`
	TokenEncoding    string        `yaml:"token_encoding"`
}

// CacheConfig holds result-cache configuration
type CacheConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// PathsConfig holds the input and output directories.
type PathsConfig struct {
	RawDir       string `yaml:"raw_dir"`
	ProcessedDir string `yaml:"processed_dir" validate:"required"`
}

// DatabaseConfig holds graph-store connection settings
type DatabaseConfig struct {
	DSN              string        `yaml:"dsn"`
	MaxConns         int32         `yaml:"max_conns" validate:"min=0"`
	MinConns         int32         `yaml:"min_conns" validate:"min=0"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// DefaultConfig returns the built-in defaults, before any file or environment overrides.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.0,
			MaxTokens:   4096,
			Timeout:     60 * time.Second,
		},
		Extraction: ExtractionConfig{
			MaxAttempts:   3,
			GraphChunks:   3,
			MinChunkChars: 50,
			RetryDelay:    2 * time.Second,
			TokenEncoding: "cl100k_base",
		},
		Cache: CacheConfig{
			Path: ".cache/extractions.db",
		},
		Paths: PathsConfig{
			RawDir:       "data/raw",
			ProcessedDir: "data/processed",
		},
		Database: DatabaseConfig{
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Workers: 2,
	}
}

// LoadConfig builds the configuration: defaults, then the optional YAML file at path,
// then environment variables (a .env file in the working directory is loaded first if present).
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, NewAppError("CONFIG_ERROR", "load .env", err)
	}

	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, NewAppError("CONFIG_ERROR", fmt.Sprintf("read config file %s", path), err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, NewAppError("CONFIG_ERROR", fmt.Sprintf("parse config file %s", path), err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LLM.Provider = strings.ToLower(getEnv("LLM_PROVIDER", c.LLM.Provider))
	c.LLM.Model = getEnv("LLM_MODEL", c.LLM.Model)
	c.LLM.APIKey = getEnv("LLM_API_KEY", c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = providerKeyFromEnv(c.LLM.Provider)
	}
	c.LLM.BaseURL = getEnv("LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.Temperature = getEnvAsFloat32("LLM_TEMPERATURE", c.LLM.Temperature)
	c.LLM.MaxTokens = getEnvAsInt("LLM_MAX_TOKENS", c.LLM.MaxTokens)
	c.LLM.Timeout = getEnvAsDuration("LLM_TIMEOUT", c.LLM.Timeout)
	c.LLM.RequestsPerMinute = getEnvAsInt("LLM_REQUESTS_PER_MINUTE", c.LLM.RequestsPerMinute)

	c.Extraction.MaxAttempts = getEnvAsInt("EXTRACT_MAX_ATTEMPTS", c.Extraction.MaxAttempts)
	c.Extraction.GraphChunks = getEnvAsInt("EXTRACT_GRAPH_CHUNKS", c.Extraction.GraphChunks)
	c.Extraction.GraphTokenBudget = getEnvAsInt("EXTRACT_GRAPH_TOKEN_BUDGET", c.Extraction.GraphTokenBudget)
	c.Extraction.MinChunkChars = getEnvAsInt("EXTRACT_MIN_CHUNK_CHARS", c.Extraction.MinChunkChars)
	c.Extraction.RetryDelay = getEnvAsDuration("EXTRACT_RETRY_DELAY", c.Extraction.RetryDelay)
	c.Extraction.TokenEncoding = getEnv("EXTRACT_TOKEN_ENCODING", c.Extraction.TokenEncoding)

	c.Cache.Path = getEnv("CACHE_PATH", c.Cache.Path)
	c.Cache.InMemory = getEnvAsBool("CACHE_IN_MEMORY", c.Cache.InMemory)

	c.Paths.RawDir = getEnv("RAW_DIR", c.Paths.RawDir)
	c.Paths.ProcessedDir = getEnv("PROCESSED_DIR", c.Paths.ProcessedDir)

	c.Database.DSN = getEnv("DB_URL", c.Database.DSN)
	c.Database.MaxConns = getEnvAsInt32("DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvAsInt32("DB_MIN_CONNS", c.Database.MinConns)
	c.Database.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", c.Database.MaxConnLifetime)
	c.Database.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", c.Database.MaxConnIdleTime)
	c.Database.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", c.Database.DialTimeout)
	c.Database.StatementTimeout = getEnvAsDuration("DB_STATEMENT_TIMEOUT", c.Database.StatementTimeout)

	c.Log.Level = strings.ToLower(getEnv("LOG_LEVEL", c.Log.Level))
	c.Log.Format = strings.ToLower(getEnv("LOG_FORMAT", c.Log.Format))

	c.Workers = getEnvAsInt("WORKERS", c.Workers)
}

// providerKeyFromEnv falls back to the vendor-specific variable each SDK documents.
func providerKeyFromEnv(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "gemini":
		return getEnv("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY"))
	}
	return ""
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if err := ValidateStruct(c); err != nil {
		return NewAppError("CONFIG_ERROR", "invalid configuration", err)
	}
	if c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("an API key is required for provider %q (LLM_API_KEY)", c.LLM.Provider), ErrInvalidInput)
	}
	if !c.Cache.InMemory && strings.TrimSpace(c.Cache.Path) == "" {
		return NewAppError("CONFIG_ERROR", "CACHE_PATH is required unless CACHE_IN_MEMORY is set", ErrInvalidInput)
	}
	return nil
}

// RequireDatabase is checked only when the graph store is actually requested.
func (c *Config) RequireDatabase() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required to load the graph store", ErrInvalidInput)
	}
	return nil
}
