package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/geodata-extractor/constants"
	"github.com/joseph-ayodele/geodata-extractor/internal/common"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/pipeline"
)

// FileProcessor is satisfied by *core.Processor.
type FileProcessor interface {
	ProcessFile(ctx context.Context, path string) (pipeline.DocumentRecord, error)
}

// Summary counts document outcomes. Failed includes unreadable documents.
type Summary struct {
	Succeeded int
	Partial   int
	Failed    int
	FromCache int
}

func (s Summary) Total() int { return s.Succeeded + s.Partial + s.Failed }

// ProcessorQueue is a bounded worker pool over documents.
type ProcessorQueue struct {
	proc    FileProcessor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool

	statsMu sync.Mutex
	summary Summary
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

// WithProcessTimeout bounds one document. Zero leaves documents unbounded.
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// NewProcessorQueue starts the workers immediately. ctx is the parent of every
// document's context, so cancelling it abandons in-flight work.
func NewProcessorQueue(ctx context.Context, proc FileProcessor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		logger:  logger,
		workers: 2,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start(ctx)
	return q
}

func (q *ProcessorQueue) start(parent context.Context) {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				logger := common.LoggerFromContext(parent, q.logger)
				logger.Debug("queue.worker.started", "worker_id", workerID)

				for job := range q.ch {
					q.run(parent, logger, workerID, job)
				}

				logger.Debug("queue.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) run(parent context.Context, logger *slog.Logger, workerID int, job Job) {
	ctx, cancel := parent, context.CancelFunc(func() {})
	if q.timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, q.timeout)
	}
	if job.TraceID != "" {
		ctx = common.WithRequestID(ctx, job.TraceID)
	}
	rec, err := q.proc.ProcessFile(ctx, job.Path)
	cancel()

	q.statsMu.Lock()
	defer q.statsMu.Unlock()
	if err != nil {
		q.summary.Failed++
		logger.Error("queue.document.failed", "worker_id", workerID, "path", job.Path, "error", err)
		return
	}
	switch rec.Status {
	case constants.DocumentStatusSucceeded:
		q.summary.Succeeded++
	case constants.DocumentStatusPartial:
		q.summary.Partial++
	default:
		q.summary.Failed++
	}
	for _, task := range constants.AllTasks() {
		if r := rec.Result(task); r != nil && r.FromCache {
			q.summary.FromCache++
		}
	}
	logger.Info("queue.document.done",
		"worker_id", workerID,
		"path", job.Path,
		"status", string(rec.Status),
		"waited_ms", time.Since(job.SubmittedAt).Milliseconds(),
	)
}

// Enqueue blocks while the queue is full.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("queue.enqueue.closed", "path", job.Path)
		return ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.logger.Debug("queue.enqueued", "path", job.Path)
		return nil
	default:
	}
	q.logger.Warn("queue.full", "path", job.Path)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for queued ones to drain or ctx to end.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted")
	case <-done:
		q.logger.Info("queue.shutdown.drained")
	}
}

// Summary is complete once Shutdown has drained the queue.
func (q *ProcessorQueue) Summary() Summary {
	q.statsMu.Lock()
	defer q.statsMu.Unlock()
	return q.summary
}
