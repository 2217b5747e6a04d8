package common

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func clearLLMEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LLM_PROVIDER", "LLM_MODEL", "LLM_API_KEY", "LLM_BASE_URL", "LLM_TIMEOUT",
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY",
		"EXTRACT_MAX_ATTEMPTS", "EXTRACT_GRAPH_CHUNKS", "WORKERS", "DB_URL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearLLMEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, "openai", cfg.LLM.Provider)
	require.Equal(t, 3, cfg.Extraction.MaxAttempts)
	require.Equal(t, 3, cfg.Extraction.GraphChunks)
	require.Equal(t, 2*time.Second, cfg.Extraction.RetryDelay)
	require.Equal(t, "data/processed", cfg.Paths.ProcessedDir)
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	clearLLMEnv(t)

	path := filepath.Join(t.TempDir(), "config.yml")
	yml := `
llm:
  provider: anthropic
  model: claude-sonnet-4-5
  api_key: file-key
  timeout: 90s
extraction:
  max_attempts: 5
  graph_chunks: 4
paths:
  processed_dir: out
workers: 3
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	t.Setenv("EXTRACT_MAX_ATTEMPTS", "2")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "anthropic", cfg.LLM.Provider)
	require.Equal(t, "file-key", cfg.LLM.APIKey)
	require.Equal(t, 90*time.Second, cfg.LLM.Timeout)
	require.Equal(t, 2, cfg.Extraction.MaxAttempts, "env overrides file")
	require.Equal(t, 4, cfg.Extraction.GraphChunks)
	require.Equal(t, "out", cfg.Paths.ProcessedDir)
	require.Equal(t, 3, cfg.Workers)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_ProviderKeyFallback(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("GOOGLE_API_KEY", "g-key")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, "g-key", cfg.LLM.APIKey)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	clearLLMEnv(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
	require.True(t, IsConfigError(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "ok with key", mutate: func(c *Config) { c.LLM.APIKey = "k" }},
		{name: "ollama needs no key", mutate: func(c *Config) { c.LLM.Provider = "ollama" }},
		{name: "missing key", mutate: func(c *Config) {}, wantErr: true},
		{name: "unknown provider", mutate: func(c *Config) { c.LLM.APIKey = "k"; c.LLM.Provider = "bard" }, wantErr: true},
		{name: "zero attempts", mutate: func(c *Config) { c.LLM.APIKey = "k"; c.Extraction.MaxAttempts = 0 }, wantErr: true},
		{name: "bad base url", mutate: func(c *Config) { c.LLM.APIKey = "k"; c.LLM.BaseURL = "not a url" }, wantErr: true},
		{name: "no cache path", mutate: func(c *Config) { c.LLM.APIKey = "k"; c.Cache.Path = "" }, wantErr: true},
		{name: "in-memory cache needs no path", mutate: func(c *Config) { c.LLM.APIKey = "k"; c.Cache.Path = ""; c.Cache.InMemory = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				require.True(t, IsConfigError(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestRequireDatabase(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, cfg.RequireDatabase())
	cfg.Database.DSN = "postgres://localhost/geo"
	require.NoError(t, cfg.RequireDatabase())
}

func TestCodeOf(t *testing.T) {
	require.Equal(t, codes.OK, CodeOf(nil))
	require.Equal(t, codes.InvalidArgument, CodeOf(NewAppError("CONFIG_ERROR", "x", ErrInvalidInput)))
	require.Equal(t, codes.InvalidArgument, CodeOf(InvalidArgumentError("bad")))
	require.Equal(t, codes.Internal, CodeOf(WrapError(ErrDatabase, "insert")))
	require.Equal(t, codes.Unknown, CodeOf(errors.New("boom")))
}

func TestInitLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := initLogger(&buf, LogConfig{Level: "debug", Format: "text"})
	logger.Debug("hello", "k", "v")
	require.Contains(t, buf.String(), "msg=hello")
	require.Contains(t, buf.String(), "k=v")
}
