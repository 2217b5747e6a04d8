package document

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFProvider validates a PDF with pdfcpu and extracts per-page plain text with ledongthuc/pdf.
type PDFProvider struct {
	logger *slog.Logger
}

func NewPDFProvider(logger *slog.Logger) *PDFProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFProvider{logger: logger}
}

func (p *PDFProvider) Pages(ctx context.Context, path string) ([]Page, error) {
	start := time.Now()

	declared, err := p.validate(path)
	if err != nil {
		// the text reader is more forgiving; let it decide
		p.logger.Warn("document.pdf.validate_failed", "path", path, "error", err)
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	n := r.NumPage()
	if declared > 0 && declared != n {
		p.logger.Warn("document.pdf.page_count_mismatch", "path", path, "pdfcpu", declared, "reader", n)
	}

	pages := make([]Page, 0, n)
	var empty int
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			empty++
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			p.logger.Debug("document.pdf.page_error", "path", path, "page", i, "error", err)
			empty++
			continue
		}
		pages = append(pages, Page{Number: i, Text: Normalize(text)})
	}

	p.logger.Info("document.pdf.read",
		"path", path,
		"pages", n,
		"empty_pages", empty,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	if len(pages) == 0 {
		return nil, fmt.Errorf("no extractable text in %s (scanned or image-only PDF?)", path)
	}
	return pages, nil
}

// validate returns the page count pdfcpu sees under relaxed validation.
func (p *PDFProvider) validate(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return 0, fmt.Errorf("pdfcpu read: %w", err)
	}
	return ctx.PageCount, nil
}
