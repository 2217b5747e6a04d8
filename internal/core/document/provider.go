// Package document turns input files into ordered page texts and paragraph chunks.
package document

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/joseph-ayodele/geodata-extractor/constants"
)

// Page is the text of one page, numbered from 1.
type Page struct {
	Number int
	Text   string
}

// Provider returns the ordered page texts of a file.
type Provider interface {
	Pages(ctx context.Context, path string) ([]Page, error)
}

// MultiProvider dispatches on the file's format.
type MultiProvider struct {
	byFormat map[string]Provider
}

// NewMultiProvider routes PDFs to pdf and plain text files to text.
func NewMultiProvider(pdf, text Provider) *MultiProvider {
	return &MultiProvider{byFormat: map[string]Provider{
		constants.PDF:  pdf,
		constants.TEXT: text,
	}}
}

func (m *MultiProvider) Pages(ctx context.Context, path string) ([]Page, error) {
	format := constants.MapExtToFormat(filepath.Ext(path))
	p, ok := m.byFormat[format]
	if !ok || p == nil {
		return nil, fmt.Errorf("unsupported document format: %s", filepath.Ext(path))
	}
	return p.Pages(ctx, path)
}
