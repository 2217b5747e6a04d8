package document

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// TextProvider reads plain text files. A form feed starts a new page.
type TextProvider struct{}

func (TextProvider) Pages(_ context.Context, path string) ([]Page, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	parts := strings.Split(string(b), "\f")
	pages := make([]Page, 0, len(parts))
	for i, part := range parts {
		pages = append(pages, Page{Number: i + 1, Text: Normalize(part)})
	}
	return pages, nil
}
