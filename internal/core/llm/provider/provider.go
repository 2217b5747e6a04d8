// Package provider builds the configured model backend.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joseph-ayodele/geodata-extractor/internal/common"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/llm"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/llm/anthropic"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/llm/gemini"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/llm/ollama"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/llm/openai"
)

// NewBackend selects the backend named by cfg.Provider.
func NewBackend(ctx context.Context, cfg common.LLMConfig, logger *slog.Logger) (llm.Backend, error) {
	httpClient := &http.Client{}

	switch cfg.Provider {
	case "openai":
		return openai.NewClient(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			HTTPClient:  httpClient,
		}, logger), nil
	case "anthropic":
		return anthropic.NewClient(anthropic.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			HTTPClient:  httpClient,
		}, logger), nil
	case "gemini":
		return gemini.NewClient(ctx, gemini.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			HTTPClient:  httpClient,
		}, logger)
	case "ollama":
		return ollama.NewClient(ollama.Config{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			HTTPClient:  httpClient,
		}, logger), nil
	}
	return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown llm provider %q", cfg.Provider), common.ErrInvalidInput)
}

// NewInvoker wraps the configured backend with its timeout and the shared limiter.
func NewInvoker(ctx context.Context, cfg common.LLMConfig, logger *slog.Logger) (*llm.ModelInvoker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	backend, err := NewBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("llm.backend.ready", "provider", backend.Name(), "model", cfg.Model, "rpm", cfg.RequestsPerMinute)
	return llm.NewModelInvoker(backend,
		llm.WithTimeout(cfg.Timeout),
		llm.WithLimiter(llm.NewRateLimiter(cfg.RequestsPerMinute)),
		llm.WithLogger(logger),
	), nil
}
