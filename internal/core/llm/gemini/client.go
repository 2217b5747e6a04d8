package gemini

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"google.golang.org/genai"

	"github.com/joseph-ayodele/geodata-extractor/internal/core/llm"
)

const systemPrompt = "You extract structured data from geological documents and always answer with a single JSON object."

// Config for the Gemini client.
type Config struct {
	APIKey      string // if empty, falls back to env GEMINI_API_KEY, then GOOGLE_API_KEY
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	HTTPClient  *http.Client
}

// Client implements llm.Backend with GenerateContent in JSON mode.
type Client struct {
	cfg    Config
	client *genai.Client
	logger *slog.Logger
}

var _ llm.Backend = (*Client)(nil)

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GOOGLE_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if logger == nil {
		logger = slog.Default()
	}

	config := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		config.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, client: client, logger: logger}, nil
}

func (c *Client) Name() string { return "gemini" }

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr(c.cfg.Temperature),
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	}
	if c.cfg.MaxTokens > 0 {
		config.MaxOutputTokens = int32(c.cfg.MaxTokens)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, config)
	if err != nil {
		return "", convertError(err)
	}

	if resp.UsageMetadata != nil {
		c.logger.Debug("llm.gemini.usage",
			"model", c.cfg.Model,
			"prompt_tokens", resp.UsageMetadata.PromptTokenCount,
			"output_tokens", resp.UsageMetadata.CandidatesTokenCount,
		)
	}
	return resp.Text(), nil
}

func convertError(err error) error {
	var apierr genai.APIError
	if errors.As(err, &apierr) {
		return &llm.StatusError{StatusCode: apierr.Code, Body: apierr.Message}
	}
	var apierrPtr *genai.APIError
	if errors.As(err, &apierrPtr) {
		return &llm.StatusError{StatusCode: apierrPtr.Code, Body: apierrPtr.Message}
	}
	return err
}
