package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/geodata-extractor/internal/cache"
	"github.com/joseph-ayodele/geodata-extractor/internal/common"
	"github.com/joseph-ayodele/geodata-extractor/internal/core"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/async"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/document"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/extract"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/llm"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/llm/provider"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/pipeline"
	"github.com/joseph-ayodele/geodata-extractor/internal/export"
	"github.com/joseph-ayodele/geodata-extractor/internal/ingest"
	repo "github.com/joseph-ayodele/geodata-extractor/internal/repository"
)

type app struct {
	cfg       *common.Config
	opts      options
	logger    *slog.Logger
	runID     string
	processor *core.Processor
	closers   []func()
}

// newApp loads configuration and wires every component. Any error here happens
// before a task starts.
func newApp(ctx context.Context, opts options) (*app, error) {
	cfg, err := common.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.loadGraph {
		if err := cfg.RequireDatabase(); err != nil {
			return nil, err
		}
	}

	a := &app{cfg: cfg, opts: opts, runID: uuid.NewString()}
	a.logger = common.InitLogger(cfg.Log).With("run_id", a.runID)
	ctx = common.WithRunID(ctx, a.runID)

	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	invoker, err := provider.NewInvoker(ctx, cfg.LLM, a.logger)
	if err != nil {
		return nil, err
	}
	validator, err := llm.NewValidator()
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", "compile output schemas", err)
	}

	store, err := openCache(ctx, cfg.Cache, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = store.Close() })

	extractor := extract.NewExtractor(invoker, validator,
		extract.WithStore(store),
		extract.WithMaxAttempts(cfg.Extraction.MaxAttempts),
		extract.WithRetryDelay(cfg.Extraction.RetryDelay),
		extract.WithLogger(a.logger),
	)
	router := pipeline.NewRouter(extractor, store,
		pipeline.WithSelectOptions(pipeline.SelectOptions{
			GraphChunks:      cfg.Extraction.GraphChunks,
			GraphTokenBudget: cfg.Extraction.GraphTokenBudget,
		}),
		pipeline.WithMaxAttempts(cfg.Extraction.MaxAttempts),
		pipeline.WithRouterLogger(a.logger),
	)

	// nested files under the raw dir are named by their relative path
	procOpts := []core.ProcessorOption{core.WithInputRoot(cfg.Paths.RawDir)}
	if opts.loadGraph {
		graph, err := repo.OpenGraphStore(ctx, repo.Config{
			DSN:              cfg.Database.DSN,
			MaxConns:         cfg.Database.MaxConns,
			MinConns:         cfg.Database.MinConns,
			MaxConnLifetime:  cfg.Database.MaxConnLifetime,
			MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
			DialTimeout:      cfg.Database.DialTimeout,
			StatementTimeout: cfg.Database.StatementTimeout,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, graph.Close)
		procOpts = append(procOpts, core.WithGraphLoader(graph))
	}
	if opts.exportXLSX {
		procOpts = append(procOpts, core.WithTableExporter(export.NewService(a.logger)))
	}

	pages := document.NewMultiProvider(document.NewPDFProvider(a.logger), document.TextProvider{})
	chunker := document.NewChunker(cfg.Extraction.MinChunkChars, document.NewTokenCounter(cfg.Extraction.TokenEncoding, a.logger))
	a.processor = core.NewProcessor(a.logger, pages, chunker, pipeline.NewOrchestrator(router, a.logger), cfg.Paths.ProcessedDir, procOpts...)

	ok = true
	return a, nil
}

func applyFlags(cfg *common.Config, opts options) {
	if opts.outputDir != "" {
		cfg.Paths.ProcessedDir = opts.outputDir
	}
	if opts.inputDir != "" {
		cfg.Paths.RawDir = opts.inputDir
	}
	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}
	if opts.inmemCache {
		cfg.Cache.InMemory = true
	}
}

func openCache(ctx context.Context, cfg common.CacheConfig, logger *slog.Logger) (cache.Store, error) {
	if cfg.InMemory {
		logger.Info("cache.open", "backend", "memory")
		return cache.NewMemoryStore(logger), nil
	}
	s, err := cache.OpenSQLite(ctx, cfg.Path, logger)
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("open cache %s", cfg.Path), err)
	}
	return s, nil
}

// run processes the selected inputs and, with -watch, new files until ctx ends.
func (a *app) run(ctx context.Context, paths []string) (async.Summary, error) {
	ctx = common.WithRunID(ctx, a.runID)
	start := time.Now()

	a.logger.Info("geoextract.start",
		"documents", len(paths),
		"workers", a.cfg.Workers,
		"provider", a.cfg.LLM.Provider,
		"model", a.cfg.LLM.Model,
		"output_dir", a.cfg.Paths.ProcessedDir,
	)

	q := async.NewProcessorQueue(ctx, a.processor, a.logger, async.WithWorkers(a.cfg.Workers))
	for _, p := range paths {
		if err := q.Enqueue(ctx, async.Job{Path: p, TraceID: uuid.NewString()}); err != nil {
			a.logger.Warn("geoextract.enqueue_failed", "path", p, "error", err)
			break
		}
	}

	if a.opts.watch {
		if err := a.watch(ctx, q); err != nil {
			q.Shutdown(context.Background())
			return q.Summary(), err
		}
	}

	q.Shutdown(context.Background())
	s := q.Summary()
	a.logger.Info("geoextract.done",
		"documents", s.Total(),
		"succeeded", s.Succeeded,
		"partial", s.Partial,
		"failed", s.Failed,
		"cached_tasks", s.FromCache,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return s, nil
}

// inputs resolves the documents of the initial pass.
func (a *app) inputs() ([]string, error) {
	if a.opts.inputFile != "" {
		if _, err := os.Stat(a.opts.inputFile); err != nil {
			return nil, fmt.Errorf("%w: input file: %v", common.ErrInvalidInput, err)
		}
		return []string{a.opts.inputFile}, nil
	}
	paths, _, err := ingest.Discover(a.cfg.Paths.RawDir, a.extensions(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: input dir: %v", common.ErrInvalidInput, err)
	}
	return paths, nil
}

func (a *app) extensions() map[string]struct{} {
	exts := ingest.DefaultExtensions()
	if a.opts.includeText {
		exts = ingest.WithTextExtensions(exts)
	}
	return exts
}

func (a *app) watch(ctx context.Context, q *async.ProcessorQueue) error {
	events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       []string{a.cfg.Paths.RawDir},
		AllowedExts: a.extensions(),
		Debounce:    2 * time.Second,
		Logger:      a.logger,
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", a.cfg.Paths.RawDir, err)
	}
	a.logger.Info("geoextract.watching", "dir", a.cfg.Paths.RawDir)
	for {
		select {
		case p, ok := <-events:
			if !ok {
				return nil
			}
			if err := q.Enqueue(ctx, async.Job{Path: p, TraceID: uuid.NewString()}); err != nil {
				return nil
			}
		case _, ok := <-errs:
			// logged by the watcher; keep going
			if !ok {
				errs = nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
