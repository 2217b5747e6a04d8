package document

import (
	"strings"
	"unicode/utf8"
)

const DefaultMinChunkChars = 50

// Chunk is a paragraph-scale unit of document text.
type Chunk struct {
	Index      int    `json:"index"`
	Text       string `json:"text"`
	SourcePage int    `json:"source_page,omitempty"`
	TokenCount int    `json:"token_count"`
}

// Chunker splits pages into paragraphs on blank lines.
type Chunker struct {
	// MinChars drops paragraphs of this many runes or fewer (headers, page numbers).
	MinChars int
	Counter  TokenCounter
}

func NewChunker(minChars int, counter TokenCounter) *Chunker {
	if minChars < 0 {
		minChars = DefaultMinChunkChars
	}
	if counter == nil {
		counter = WordCounter{}
	}
	return &Chunker{MinChars: minChars, Counter: counter}
}

// Chunk returns chunks with contiguous indices across all pages.
func (c *Chunker) Chunk(pages []Page) []Chunk {
	var out []Chunk
	for _, p := range pages {
		for _, para := range strings.Split(p.Text, "\n\n") {
			text := strings.Join(strings.Fields(strings.ReplaceAll(para, "\n", " ")), " ")
			if utf8.RuneCountInString(text) <= c.MinChars {
				continue
			}
			out = append(out, Chunk{
				Index:      len(out),
				Text:       text,
				SourcePage: p.Number,
				TokenCount: c.Counter.Count(text),
			})
		}
	}
	return out
}

// Texts returns the chunk texts in order.
func Texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, ch := range chunks {
		out[i] = ch.Text
	}
	return out
}
