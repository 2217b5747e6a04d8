// Package extract turns an unreliable model into a schema-valid extraction
// by validating every response and feeding the errors back for a bounded number of attempts.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/geodata-extractor/constants"
	"github.com/joseph-ayodele/geodata-extractor/internal/cache"
	"github.com/joseph-ayodele/geodata-extractor/internal/common"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/llm"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 2 * time.Second
)

// Request describes one extraction. CacheKey empty means the result is not cached.
type Request struct {
	Task        constants.Task
	Template    llm.Template
	Input       string
	MaxAttempts int
	CacheKey    cache.Key
}

type state int

const (
	stateAttempting state = iota
	stateValidating
	stateRetrying
	stateSucceeded
	stateExhausted
)

// attempt never leaves Extract.
type attempt struct {
	number    int
	raw       string
	payload   []byte
	result    llm.ValidationResult
	transport error
}

// Extractor runs the attempt/validate/retry loop. Safe for concurrent use.
type Extractor struct {
	invoker     llm.Invoker
	validator   *llm.Validator
	store       cache.Store
	maxAttempts int
	retryDelay  time.Duration
	logger      *slog.Logger
}

type Option func(*Extractor)

func WithStore(s cache.Store) Option {
	return func(e *Extractor) { e.store = s }
}

func WithMaxAttempts(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithRetryDelay sets the pause after a transport failure. Zero disables it.
func WithRetryDelay(d time.Duration) Option {
	return func(e *Extractor) {
		if d >= 0 {
			e.retryDelay = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewExtractor(invoker llm.Invoker, validator *llm.Validator, opts ...Option) *Extractor {
	e := &Extractor{
		invoker:     invoker,
		validator:   validator,
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Validator exposes the validator so callers can re-check cached payloads.
func (e *Extractor) Validator() *llm.Validator { return e.validator }

// Extract never returns an error: every failure is recorded in the Result.
func (e *Extractor) Extract(ctx context.Context, req Request) Result {
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = e.maxAttempts
	}
	logger := common.LoggerFromContext(ctx, e.logger).With("task", req.Task.String(), "template", req.Template.ID)

	base := req.Template.BasePrompt(req.Input)
	prompt := base
	res := Result{Task: req.Task}

	var cur attempt
	st := stateAttempting
	n := 1

	for {
		switch st {
		case stateAttempting:
			if err := ctx.Err(); err != nil {
				return e.cancelled(logger, res, err)
			}
			logger.Debug("extract.attempt.start", "attempt", n, "max_attempts", maxAttempts, "prompt_chars", len(prompt))

			raw, err := e.invoker.Invoke(ctx, prompt)
			res.AttemptsUsed = n
			cur = attempt{number: n, raw: raw}
			if err != nil {
				if ctx.Err() != nil {
					return e.cancelled(logger, res, ctx.Err())
				}
				cur.transport = err
				res.Err = err.Error()
				logger.Warn("extract.attempt.transport_error", "attempt", n, "error", err)
				st = stateRetrying
				continue
			}
			res.LastResponse = raw
			st = stateValidating

		case stateValidating:
			cur.payload = []byte(llm.StripCodeFences(cur.raw))
			cur.result = e.validator.Validate(req.Task, cur.payload)
			if cur.result.Valid {
				st = stateSucceeded
				continue
			}
			res.Errors = cur.result.Errors
			res.Err = ""
			logger.Warn("extract.attempt.invalid",
				"attempt", n,
				"errors", len(cur.result.Errors),
				"referential", cur.result.HasKind(llm.KindReferential),
				"parse", cur.result.HasKind(llm.KindParse),
			)
			st = stateRetrying

		case stateRetrying:
			if n >= maxAttempts {
				st = stateExhausted
				continue
			}
			if cur.transport != nil {
				// every transport failure spends one attempt; the code only shapes the log level
				if te, ok := llm.AsTransportError(cur.transport); ok && !te.IsRetryable() {
					logger.Error("extract.attempt.unlikely_to_recover", "attempt", n, "code", te.Code.String())
				}
				if err := sleep(ctx, e.retryDelay); err != nil {
					return e.cancelled(logger, res, err)
				}
			} else {
				prompt = llm.BuildFeedbackPrompt(base, cur.raw, cur.result)
			}
			n++
			st = stateAttempting

		case stateSucceeded:
			return e.succeed(ctx, logger, req, res, cur)

		case stateExhausted:
			res.Succeeded = false
			res.Confidence = 0
			if res.Err == "" {
				res.Err = fmt.Sprintf("no valid response after %d attempt(s)", res.AttemptsUsed)
			}
			logger.Error("extract.exhausted", "attempts", res.AttemptsUsed, "errors", len(res.Errors), "last_error", res.Err)
			return res
		}
	}
}

func (e *Extractor) succeed(ctx context.Context, logger *slog.Logger, req Request, res Result, cur attempt) Result {
	var buf bytes.Buffer
	if err := json.Compact(&buf, cur.payload); err != nil {
		// validated payloads always parse
		buf.Reset()
		buf.Write(cur.payload)
	}
	res.Payload = buf.Bytes()
	res.Succeeded = true
	res.Errors = nil
	res.Err = ""
	res.Confidence = Confidence(req.Task, res.Payload)

	if e.store != nil && req.CacheKey != "" && ctx.Err() == nil {
		if err := e.store.Put(ctx, req.CacheKey, res.Payload); err != nil {
			logger.Warn("extract.cache.put_error", "key", req.CacheKey.Short(), "error", err)
		}
	}

	logger.Info("extract.succeeded", "attempts", res.AttemptsUsed, "confidence", res.Confidence, "bytes", len(res.Payload))
	return res
}

func (e *Extractor) cancelled(logger *slog.Logger, res Result, err error) Result {
	res.Succeeded = false
	res.Confidence = 0
	res.Payload = nil
	res.Err = err.Error()
	logger.Warn("extract.cancelled", "attempts", res.AttemptsUsed, "error", err)
	return res
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
