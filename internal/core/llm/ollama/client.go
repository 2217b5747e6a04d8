package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joseph-ayodele/geodata-extractor/internal/core/llm"
)

const systemPrompt = "You extract structured data from geological documents and always answer with a single JSON object."

// Config for a local Ollama server.
type Config struct {
	BaseURL     string // default http://localhost:11434
	Model       string
	Temperature float32
	MaxTokens   int
	HTTPClient  *http.Client
}

// Client implements llm.Backend against /api/generate with format=json.
type Client struct {
	cfg    Config
	logger *slog.Logger
}

var _ llm.Backend = (*Client)(nil)

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.1"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, logger: logger}
}

func (c *Client) Name() string { return "ollama" }

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Format  string         `json:"format"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	opts := map[string]any{"temperature": c.cfg.Temperature}
	if c.cfg.MaxTokens > 0 {
		opts["num_predict"] = c.cfg.MaxTokens
	}
	body := generateRequest{
		Model:   c.cfg.Model,
		Prompt:  prompt,
		System:  systemPrompt,
		Format:  "json",
		Stream:  false,
		Options: opts,
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/api/generate"
	raw, _, err := llm.SendJSON(ctx, c.cfg.HTTPClient, endpoint, body, nil, c.logger)
	if err != nil {
		return "", err
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	if !out.Done {
		c.logger.Warn("llm.ollama.incomplete", "model", out.Model)
	}
	c.logger.Debug("llm.ollama.usage",
		"model", out.Model,
		"prompt_tokens", out.PromptEvalCount,
		"output_tokens", out.EvalCount,
	)
	return out.Response, nil
}
