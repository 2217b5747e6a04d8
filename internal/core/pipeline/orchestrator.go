package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/geodata-extractor/constants"
	"github.com/joseph-ayodele/geodata-extractor/internal/common"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/document"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/extract"
)

// Document is the orchestrator's input: one source file, already chunked.
type Document struct {
	SourceFile string
	PageCount  int
	Chunks     []document.Chunk
}

// DocumentRecord holds the three independent task results for one document.
type DocumentRecord struct {
	SourceFile     string                   `json:"source_file"`
	ProcessedAt    time.Time                `json:"processing_timestamp_utc"`
	PageCount      int                      `json:"page_count"`
	ChunkCount     int                      `json:"chunk_count"`
	Status         constants.DocumentStatus `json:"status"`
	Metadata       *extract.Result          `json:"metadata"`
	Tables         *extract.Result          `json:"tables"`
	KnowledgeGraph *extract.Result          `json:"knowledge_graph"`
}

// Result returns the slot for task, or nil.
func (r *DocumentRecord) Result(task constants.Task) *extract.Result {
	switch task {
	case constants.TaskMetadata:
		return r.Metadata
	case constants.TaskKnowledgeGraph:
		return r.KnowledgeGraph
	case constants.TaskTable:
		return r.Tables
	}
	return nil
}

func (r *DocumentRecord) set(task constants.Task, res *extract.Result) {
	switch task {
	case constants.TaskMetadata:
		r.Metadata = res
	case constants.TaskKnowledgeGraph:
		r.KnowledgeGraph = res
	case constants.TaskTable:
		r.Tables = res
	}
}

func statusOf(r *DocumentRecord) constants.DocumentStatus {
	var ok, total int
	for _, task := range constants.AllTasks() {
		total++
		if res := r.Result(task); res != nil && res.Succeeded {
			ok++
		}
	}
	switch ok {
	case total:
		return constants.DocumentStatusSucceeded
	case 0:
		return constants.DocumentStatusFailed
	}
	return constants.DocumentStatusPartial
}

// TaskRunner runs one task over a document's chunks. *Router implements it.
type TaskRunner interface {
	Run(ctx context.Context, task constants.Task, chunks []document.Chunk) extract.Result
}

// Orchestrator runs every task of a document concurrently and assembles the record.
type Orchestrator struct {
	runner TaskRunner
	logger *slog.Logger
	now    func() time.Time
}

func NewOrchestrator(runner TaskRunner, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{runner: runner, logger: logger, now: time.Now}
}

// Process never fails: each task's outcome lands in its own slot.
func (o *Orchestrator) Process(ctx context.Context, doc Document) DocumentRecord {
	logger := common.LoggerFromContext(ctx, o.logger)
	start := time.Now()

	tasks := constants.AllTasks()
	results := make([]extract.Result, len(tasks))

	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task constants.Task) {
			defer wg.Done()
			results[i] = o.runner.Run(ctx, task, doc.Chunks)
			results[i].Task = task
		}(i, task)
	}
	wg.Wait()

	rec := DocumentRecord{
		SourceFile: doc.SourceFile,
		PageCount:  doc.PageCount,
		ChunkCount: len(doc.Chunks),
	}
	for i, task := range tasks {
		rec.set(task, &results[i])
	}
	rec.Status = statusOf(&rec)
	rec.ProcessedAt = o.now().UTC()

	logger.Info("pipeline.document.done",
		"source_file", doc.SourceFile,
		"status", string(rec.Status),
		"chunks", rec.ChunkCount,
		"metadata_ok", rec.Metadata.Succeeded,
		"graph_ok", rec.KnowledgeGraph.Succeeded,
		"tables_ok", rec.Tables.Succeeded,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return rec
}
