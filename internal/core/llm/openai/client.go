package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go/v3"

	"github.com/joseph-ayodele/geodata-extractor/internal/core/llm"
)

const systemPrompt = "You extract structured data from geological documents and always answer with a single JSON object."

// Client implements llm.Backend with chat completions in JSON-object mode.
type Client struct {
	cfg    Config
	client openai.Client
	logger *slog.Logger
}

var _ llm.Backend = (*Client)(nil)

func NewClient(cfg Config, logger *slog.Logger) *Client {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		client: openai.NewClient(cfg.Options()...),
		logger: logger,
	}
}

func (c *Client) Name() string { return "openai" }

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionNewParams{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(float64(c.cfg.Temperature)),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	}
	if c.cfg.MaxTokens > 0 {
		req.MaxCompletionTokens = openai.Int(int64(c.cfg.MaxTokens))
	}

	completion, err := c.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return "", convertError(err)
	}
	if len(completion.Choices) == 0 {
		c.logger.Error("llm.openai.no_choices", "model", c.cfg.Model, "id", completion.ID)
		return "", fmt.Errorf("no choices in openai response")
	}

	c.logger.Debug("llm.openai.usage",
		"model", completion.Model,
		"prompt_tokens", completion.Usage.PromptTokens,
		"completion_tokens", completion.Usage.CompletionTokens,
	)
	return completion.Choices[0].Message.Content, nil
}

func convertError(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return &llm.StatusError{StatusCode: apierr.StatusCode, Body: apierr.Message}
	}
	return err
}
