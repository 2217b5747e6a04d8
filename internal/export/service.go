// Package export renders extracted tables as XLSX workbooks.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/geodata-extractor/internal/common"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/pipeline"
)

const maxSheetName = 31

// Table is one extracted table as it appears in the TABLE payload.
type Table struct {
	Name       string           `json:"table_name"`
	Columns    []string         `json:"columns"`
	Data       []map[string]any `json:"data"`
	Confidence float64          `json:"confidence_score"`
}

// Service is a tiny façade that produces XLSX bytes for extracted tables.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// DecodeTables reads a validated TABLE payload. Numbers keep their literal form until rendered.
func DecodeTables(payload []byte) ([]Table, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var doc struct {
		Tables []Table `json:"tables"`
	}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode tables: %v", common.ErrInvalidInput, err)
	}
	return doc.Tables, nil
}

// TablesXLSX returns a workbook with one sheet per table: header row = columns, one row per data row.
func (s *Service) TablesXLSX(ctx context.Context, rec pipeline.DocumentRecord) ([]byte, error) {
	start := time.Now()
	if rec.Tables == nil || !rec.Tables.Succeeded {
		return nil, fmt.Errorf("%w: no tables for %s", common.ErrInvalidInput, rec.SourceFile)
	}
	tables, err := DecodeTables(rec.Tables.Payload)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const first = "Sheet1"
	used := map[string]bool{}
	rows := 0
	for i, t := range tables {
		sheet := sheetName(t.Name, i, used)
		if i == 0 {
			if err := f.SetSheetName(first, sheet); err != nil {
				return nil, fmt.Errorf("xlsx sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("xlsx sheet: %w", err)
		}

		header := make([]any, len(t.Columns))
		for c, col := range t.Columns {
			header[c] = col
		}
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return nil, fmt.Errorf("xlsx header: %w", err)
		}
		for r, row := range t.Data {
			values := make([]any, len(t.Columns))
			for c, col := range t.Columns {
				values[c] = cellValue(row[col])
			}
			cell, _ := excelize.CoordinatesToCellName(1, r+2)
			if err := f.SetSheetRow(sheet, cell, &values); err != nil {
				return nil, fmt.Errorf("xlsx row: %w", err)
			}
		}
		rows += len(t.Data)
	}
	if len(tables) == 0 {
		_ = f.SetCellValue(first, "A1", "no tables extracted")
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	common.LoggerFromContext(ctx, s.logger).Info("export.xlsx.ok",
		"source_file", rec.SourceFile,
		"tables", len(tables),
		"rows", rows,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// WriteTablesXLSX writes TablesXLSX to path, creating its directory.
func (s *Service) WriteTablesXLSX(ctx context.Context, rec pipeline.DocumentRecord, path string) error {
	body, err := s.TablesXLSX(ctx, rec)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	return os.WriteFile(path, body, 0o644)
}

func cellValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case string, bool:
		return x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// sheetName makes name legal and unique as an Excel sheet name.
func sheetName(name string, i int, used map[string]bool) string {
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	clean = strings.Trim(clean, "'")
	if clean == "" {
		clean = fmt.Sprintf("Table %d", i+1)
	}
	clean = truncate(clean, maxSheetName)

	candidate := clean
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		candidate = truncate(clean, maxSheetName-len(suffix)) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
