package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/geodata-extractor/internal/common"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/document"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/pipeline"
)

const resultSuffix = "_extraction_result.json"

// GraphLoader persists a record's knowledge graph. Implemented by repository.GraphStore.
type GraphLoader interface {
	LoadGraph(ctx context.Context, rec pipeline.DocumentRecord) error
}

// TableExporter renders a record's tables to a file. Implemented by export.Service.
type TableExporter interface {
	WriteTablesXLSX(ctx context.Context, rec pipeline.DocumentRecord, path string) error
}

// Processor coordinates text extraction, chunking and the three-task pipeline for one file,
// then writes the record and hands it to the optional sinks.
type Processor struct {
	logger       *slog.Logger
	pages        document.Provider
	chunker      *document.Chunker
	orchestrator *pipeline.Orchestrator
	outputDir    string
	inputRoot    string
	graph        GraphLoader
	tables       TableExporter
}

type ProcessorOption func(*Processor)

// WithInputRoot names files under root by their path relative to it, so a/report.pdf and
// b/report.pdf get distinct records.
func WithInputRoot(root string) ProcessorOption {
	return func(p *Processor) { p.inputRoot = root }
}

// WithGraphLoader enables loading succeeded knowledge graphs.
func WithGraphLoader(g GraphLoader) ProcessorOption {
	return func(p *Processor) { p.graph = g }
}

// WithTableExporter enables writing <stem>_tables.xlsx next to the record.
func WithTableExporter(t TableExporter) ProcessorOption {
	return func(p *Processor) { p.tables = t }
}

func NewProcessor(
	logger *slog.Logger,
	pages document.Provider,
	chunker *document.Chunker,
	orchestrator *pipeline.Orchestrator,
	outputDir string,
	opts ...ProcessorOption,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if outputDir == "" {
		outputDir = "data/processed"
	}
	p := &Processor{
		logger:       logger,
		pages:        pages,
		chunker:      chunker,
		orchestrator: orchestrator,
		outputDir:    outputDir,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ProcessFile runs the whole pipeline for path and returns the record it wrote.
// An error means the document could not be read or the record could not be written;
// task failures are not errors.
func (p *Processor) ProcessFile(ctx context.Context, path string) (pipeline.DocumentRecord, error) {
	name := p.sourceName(path)
	ctx = common.WithDocumentID(ctx, name)
	logger := common.LoggerFromContext(ctx, p.logger)

	// 1) text
	pages, err := p.pages.Pages(ctx, path)
	if err != nil {
		logger.Error("processor.read.failed", "path", path, "error", err)
		return pipeline.DocumentRecord{}, fmt.Errorf("read %s: %w", name, err)
	}

	// 2) chunks
	chunks := p.chunker.Chunk(pages)
	logger.Debug("processor.chunked", "pages", len(pages), "chunks", len(chunks))
	if len(chunks) == 0 {
		logger.Warn("processor.no_chunks", "pages", len(pages))
	}

	// 3) tasks
	rec := p.orchestrator.Process(ctx, pipeline.Document{
		SourceFile: name,
		PageCount:  len(pages),
		Chunks:     chunks,
	})

	// 4) record
	out, err := p.writeRecord(rec)
	if err != nil {
		logger.Error("processor.write.failed", "error", err)
		return rec, err
	}
	logger.Info("processor.record.written", "output", out, "status", string(rec.Status))

	// 5) sinks; failures here are logged, the record is already on disk
	if p.graph != nil && rec.KnowledgeGraph != nil && rec.KnowledgeGraph.Succeeded {
		if err := p.graph.LoadGraph(ctx, rec); err != nil {
			logger.Error("processor.graph.failed", "error", err)
		}
	}
	if p.tables != nil && rec.Tables != nil && rec.Tables.Succeeded {
		xlsx := filepath.Join(p.outputDir, stem(name)+"_tables.xlsx")
		if err := p.tables.WriteTablesXLSX(ctx, rec, xlsx); err != nil {
			logger.Error("processor.xlsx.failed", "error", err)
		}
	}
	return rec, nil
}

func (p *Processor) writeRecord(rec pipeline.DocumentRecord) (string, error) {
	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	body, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	out := OutputPath(p.outputDir, rec.SourceFile)
	tmp, err := os.CreateTemp(p.outputDir, ".record-*.tmp")
	if err != nil {
		return "", fmt.Errorf("write record: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("write record: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("write record: %w", err)
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return "", fmt.Errorf("write record: %w", err)
	}
	return out, nil
}

// sourceName is path relative to the input root in slash form, or its base name when
// no root is set or path lies outside it.
func (p *Processor) sourceName(path string) string {
	if p.inputRoot != "" {
		if rel, err := filepath.Rel(p.inputRoot, path); err == nil && filepath.IsLocal(rel) {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.Base(path)
}

// OutputPath is <dir>/<stem>_extraction_result.json. The stem of a nested source name
// joins its directories with "__", so sub/report.pdf becomes sub__report.
func OutputPath(dir, sourceFile string) string {
	return filepath.Join(dir, stem(sourceFile)+resultSuffix)
}

func stem(name string) string {
	name = strings.TrimPrefix(filepath.ToSlash(name), "/")
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return strings.ReplaceAll(name, "/", "__")
}
