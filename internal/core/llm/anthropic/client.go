package anthropic

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joseph-ayodele/geodata-extractor/internal/core/llm"
)

const systemPrompt = "You extract structured data from geological documents and always answer with a single JSON object."

// Config for the Anthropic client.
type Config struct {
	APIKey      string // if empty, falls back to env ANTHROPIC_API_KEY
	BaseURL     string // default https://api.anthropic.com/
	Model       string
	Temperature float32
	MaxTokens   int
	HTTPClient  *http.Client
}

func (c *Config) options() []option.RequestOption {
	url := c.BaseURL
	if url == "" {
		url = "https://api.anthropic.com/"
	}
	options := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(url, "/") + "/"),
		option.WithMaxRetries(0),
	}
	if c.HTTPClient != nil {
		options = append(options, option.WithHTTPClient(c.HTTPClient))
	}
	if c.APIKey != "" {
		options = append(options, option.WithAPIKey(c.APIKey))
	}
	return options
}

// Client implements llm.Backend with the Messages API.
type Client struct {
	cfg      Config
	messages anthropic.MessageService
	logger   *slog.Logger
}

var _ llm.Backend = (*Client)(nil)

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-latest"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:      cfg,
		messages: anthropic.NewMessageService(cfg.options()...),
		logger:   logger,
	}
}

func (c *Client) Name() string { return "anthropic" }

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	req := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.cfg.Model),
		MaxTokens:   int64(c.cfg.MaxTokens),
		Temperature: anthropic.Float(float64(c.cfg.Temperature)),
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	message, err := c.messages.New(ctx, req)
	if err != nil {
		var apierr *anthropic.Error
		if errors.As(err, &apierr) {
			return "", &llm.StatusError{StatusCode: apierr.StatusCode, Body: apierr.Error()}
		}
		return "", err
	}

	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	c.logger.Debug("llm.anthropic.usage",
		"model", string(message.Model),
		"input_tokens", message.Usage.InputTokens,
		"output_tokens", message.Usage.OutputTokens,
		"stop_reason", string(message.StopReason),
	)
	return b.String(), nil
}
