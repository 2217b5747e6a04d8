package document

import (
	"log/slog"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates how many model tokens a text costs.
type TokenCounter interface {
	Count(text string) int
}

// WordCounter approximates tokens by whitespace-separated words.
type WordCounter struct{}

func (WordCounter) Count(text string) int { return len(strings.Fields(text)) }

// TiktokenCounter counts BPE tokens.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// NewTokenCounter loads the named tiktoken encoding, falling back to WordCounter
// when the encoding cannot be loaded (it is fetched on first use). "none" skips tiktoken.
func NewTokenCounter(encoding string, logger *slog.Logger) TokenCounter {
	if logger == nil {
		logger = slog.Default()
	}
	if encoding == "" || encoding == "none" {
		return WordCounter{}
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		logger.Warn("document.tokens.fallback", "encoding", encoding, "error", err)
		return WordCounter{}
	}
	return &TiktokenCounter{enc: enc}
}
