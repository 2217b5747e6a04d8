package openai

import (
	"net/http"
	"os"
	"strings"

	"github.com/openai/openai-go/v3/option"
)

// Config for the OpenAI client. Any OpenAI-compatible endpoint works via BaseURL.
type Config struct {
	APIKey      string // if empty, falls back to env OPENAI_API_KEY
	BaseURL     string // default https://api.openai.com/v1
	Model       string // e.g., "gpt-4o-mini"
	Temperature float32
	MaxTokens   int
	HTTPClient  *http.Client
}

func (c *Config) applyDefaults() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// Options maps the config to SDK request options. SDK retries are disabled.
func (c *Config) Options() []option.RequestOption {
	options := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(c.BaseURL, "/") + "/"),
		option.WithHTTPClient(c.HTTPClient),
		option.WithMaxRetries(0),
	}
	if c.APIKey != "" {
		options = append(options, option.WithAPIKey(c.APIKey))
	}
	return options
}
