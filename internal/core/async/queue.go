package async

import (
	"context"
	"errors"
	"time"
)

// Job is one document to process.
type Job struct {
	Path        string
	SubmittedAt time.Time
	TraceID     string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

var ErrQueueClosed = errors.New("queue is shutting down")
