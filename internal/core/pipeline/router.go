// Package pipeline decides what each task reads, checks the cache, and runs the three tasks per document.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/geodata-extractor/constants"
	"github.com/joseph-ayodele/geodata-extractor/internal/cache"
	"github.com/joseph-ayodele/geodata-extractor/internal/common"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/document"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/extract"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/llm"
)

const (
	DefaultGraphChunks = 3
	errNoInput         = "no input text"
)

// SelectOptions tunes chunk selection.
type SelectOptions struct {
	// GraphChunks is K, the number of leading chunks the knowledge graph reads.
	GraphChunks int
	// GraphTokenBudget caps the K-prefix by summed chunk token counts. Zero disables it.
	GraphTokenBudget int
}

// SelectInput returns the text a task reads from chunks. Pure.
func SelectInput(task constants.Task, chunks []document.Chunk, opts SelectOptions) string {
	if len(chunks) == 0 {
		return ""
	}
	switch task {
	case constants.TaskMetadata:
		return chunks[0].Text
	case constants.TaskKnowledgeGraph:
		k := opts.GraphChunks
		if k <= 0 {
			k = DefaultGraphChunks
		}
		k = min(k, len(chunks))
		if opts.GraphTokenBudget > 0 {
			for k > 1 && tokenSum(chunks[:k]) > opts.GraphTokenBudget {
				k--
			}
		}
		return strings.Join(document.Texts(chunks[:k]), " ")
	case constants.TaskTable:
		return strings.Join(document.Texts(chunks), "\n\n")
	}
	return ""
}

func tokenSum(chunks []document.Chunk) int {
	var n int
	for _, c := range chunks {
		n += c.TokenCount
	}
	return n
}

// Router picks each task's input, serves valid cache hits and otherwise delegates to the extractor.
type Router struct {
	extractor   *extract.Extractor
	store       cache.Store
	templates   map[constants.Task]llm.Template
	opts        SelectOptions
	maxAttempts int
	logger      *slog.Logger
}

type RouterOption func(*Router)

func WithSelectOptions(o SelectOptions) RouterOption {
	return func(r *Router) { r.opts = o }
}

func WithMaxAttempts(n int) RouterOption {
	return func(r *Router) { r.maxAttempts = n }
}

func WithTemplates(t map[constants.Task]llm.Template) RouterOption {
	return func(r *Router) {
		if len(t) > 0 {
			r.templates = t
		}
	}
}

func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRouter shares store with the extractor; store may be nil to disable caching.
func NewRouter(extractor *extract.Extractor, store cache.Store, opts ...RouterOption) *Router {
	r := &Router{
		extractor: extractor,
		store:     store,
		templates: llm.DefaultTemplates(),
		opts:      SelectOptions{GraphChunks: DefaultGraphChunks},
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run executes one task over chunks. Failures are reported in the Result.
func (r *Router) Run(ctx context.Context, task constants.Task, chunks []document.Chunk) extract.Result {
	logger := common.LoggerFromContext(ctx, r.logger).With("task", task.String())

	tpl, ok := r.templates[task]
	if !ok {
		return extract.Failed(task, fmt.Sprintf("no template for task %s", task))
	}

	input := SelectInput(task, chunks, r.opts)
	if strings.TrimSpace(input) == "" {
		logger.Warn("router.no_input", "chunks", len(chunks))
		return extract.Failed(task, errNoInput)
	}

	key := cache.Fingerprint(task, tpl.ID, input)
	var writeKey cache.Key
	if r.store != nil {
		res, hit := r.lookup(ctx, logger, task, key)
		if hit {
			return res
		}
		// an invalid stored entry is bypassed, never overwritten
		if res.Err == "" {
			writeKey = key
		}
	}

	logger.Debug("router.dispatch", "key", key.Short(), "input_chars", len(input))
	return r.extractor.Extract(ctx, extract.Request{
		Task:        task,
		Template:    tpl,
		Input:       input,
		MaxAttempts: r.maxAttempts,
		CacheKey:    writeKey,
	})
}

// lookup returns (result, true) on a valid hit. An invalid hit comes back as (result with Err set, false).
func (r *Router) lookup(ctx context.Context, logger *slog.Logger, task constants.Task, key cache.Key) (extract.Result, bool) {
	entry, ok, err := r.store.Get(ctx, key)
	if err != nil {
		logger.Warn("router.cache.get_error", "key", key.Short(), "error", err)
		return extract.Result{}, false
	}
	if !ok {
		logger.Debug("router.cache.miss", "key", key.Short())
		return extract.Result{}, false
	}

	v := r.extractor.Validator().Validate(task, entry.Payload)
	if !v.Valid {
		logger.Warn("router.cache.invalid_hit", "key", key.Short(), "errors", len(v.Errors))
		return extract.Result{Err: "invalid cache entry"}, false
	}

	logger.Info("router.cache.hit", "key", key.Short(), "created_at", entry.CreatedAt)
	return extract.Result{
		Task:         task,
		Payload:      entry.Payload,
		Confidence:   extract.Confidence(task, entry.Payload),
		Succeeded:    true,
		AttemptsUsed: 0,
		FromCache:    true,
	}, true
}
