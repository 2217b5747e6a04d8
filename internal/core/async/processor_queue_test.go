package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/geodata-extractor/constants"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/extract"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/pipeline"
)

type fakeProcessor struct {
	mu       sync.Mutex
	seen     []string
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
	outcome  func(path string) (pipeline.DocumentRecord, error)
}

func (f *fakeProcessor) ProcessFile(ctx context.Context, path string) (pipeline.DocumentRecord, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	f.mu.Lock()
	f.seen = append(f.seen, path)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return pipeline.DocumentRecord{}, ctx.Err()
		}
	}
	return f.outcome(path)
}

func withStatus(s constants.DocumentStatus, cached bool) pipeline.DocumentRecord {
	r := &extract.Result{Succeeded: s != constants.DocumentStatusFailed, FromCache: cached}
	return pipeline.DocumentRecord{Status: s, Metadata: r, KnowledgeGraph: &extract.Result{}, Tables: &extract.Result{}}
}

func TestProcessorQueue_CountsOutcomes(t *testing.T) {
	proc := &fakeProcessor{outcome: func(path string) (pipeline.DocumentRecord, error) {
		switch path {
		case "ok.pdf":
			return withStatus(constants.DocumentStatusSucceeded, true), nil
		case "partial.pdf":
			return withStatus(constants.DocumentStatusPartial, false), nil
		case "failed.pdf":
			return withStatus(constants.DocumentStatusFailed, false), nil
		}
		return pipeline.DocumentRecord{}, errors.New("unreadable")
	}}
	q := NewProcessorQueue(context.Background(), proc, nil, WithWorkers(2))

	for _, p := range []string{"ok.pdf", "partial.pdf", "failed.pdf", "broken.pdf"} {
		require.NoError(t, q.Enqueue(context.Background(), Job{Path: p}))
	}
	q.Shutdown(context.Background())

	s := q.Summary()
	require.Equal(t, Summary{Succeeded: 1, Partial: 1, Failed: 2, FromCache: 1}, s)
	require.Equal(t, 4, s.Total())
}

func TestProcessorQueue_BoundsConcurrency(t *testing.T) {
	proc := &fakeProcessor{
		delay: 20 * time.Millisecond,
		outcome: func(string) (pipeline.DocumentRecord, error) {
			return withStatus(constants.DocumentStatusSucceeded, false), nil
		},
	}
	q := NewProcessorQueue(context.Background(), proc, nil, WithWorkers(2), WithQueueSize(1))
	for i := 0; i < 6; i++ {
		require.NoError(t, q.Enqueue(context.Background(), Job{Path: "doc.pdf"}))
	}
	q.Shutdown(context.Background())

	require.LessOrEqual(t, proc.peak.Load(), int32(2))
	require.Len(t, proc.seen, 6)
	require.Equal(t, 6, q.Summary().Succeeded)
}

func TestProcessorQueue_EnqueueAfterShutdown(t *testing.T) {
	q := NewProcessorQueue(context.Background(), &fakeProcessor{}, nil)
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())

	require.ErrorIs(t, q.Enqueue(context.Background(), Job{Path: "late.pdf"}), ErrQueueClosed)
}

func TestProcessorQueue_TimeoutCountsAsFailure(t *testing.T) {
	proc := &fakeProcessor{
		delay: time.Second,
		outcome: func(string) (pipeline.DocumentRecord, error) {
			return withStatus(constants.DocumentStatusSucceeded, false), nil
		},
	}
	q := NewProcessorQueue(context.Background(), proc, nil, WithProcessTimeout(10*time.Millisecond))
	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "slow.pdf"}))
	q.Shutdown(context.Background())

	require.Equal(t, 1, q.Summary().Failed)
}
