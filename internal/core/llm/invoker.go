package llm

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"

	"github.com/joseph-ayodele/geodata-extractor/internal/common"
)

const defaultInvokeTimeout = 60 * time.Second

// ModelInvoker wraps one backend call with a timeout, an optional shared rate limiter
// and error classification. It never retries.
type ModelInvoker struct {
	backend Backend
	timeout time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ Invoker = (*ModelInvoker)(nil)

// InvokerOption configures a ModelInvoker.
type InvokerOption func(*ModelInvoker)

// WithTimeout bounds each call. Zero keeps the default.
func WithTimeout(d time.Duration) InvokerOption {
	return func(m *ModelInvoker) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLimiter shares l across every invoker built with it.
func WithLimiter(l *rate.Limiter) InvokerOption {
	return func(m *ModelInvoker) { m.limiter = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) InvokerOption {
	return func(m *ModelInvoker) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewModelInvoker wraps backend.
func NewModelInvoker(backend Backend, opts ...InvokerOption) *ModelInvoker {
	m := &ModelInvoker{
		backend: backend,
		timeout: defaultInvokeTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewRateLimiter returns a limiter allowing perMinute calls, or nil when perMinute <= 0.
func NewRateLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

func (m *ModelInvoker) Invoke(ctx context.Context, prompt string) (string, error) {
	reqID := uuid.New().String()
	ctx = common.WithRequestID(ctx, reqID)
	logger := common.LoggerFromContext(ctx, m.logger).With("backend", m.backend.Name())

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return "", m.classify(ctx, ctx, err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	logger.Debug("llm.invoke.start", "prompt_chars", len(prompt), "timeout_ms", m.timeout.Milliseconds())

	text, err := m.backend.Complete(callCtx, prompt)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		te := m.classify(ctx, callCtx, err)
		logger.Warn("llm.invoke.error", "code", te.Code.String(), "retryable", te.IsRetryable(), "error", err, "elapsed_ms", elapsed)
		return "", te
	}

	logger.Info("llm.invoke.ok", "response_chars", len(text), "elapsed_ms", elapsed)
	return text, nil
}

func (m *ModelInvoker) classify(parent, callCtx context.Context, err error) *TransportError {
	if te, ok := AsTransportError(err); ok {
		return te
	}
	return &TransportError{Backend: m.backend.Name(), Code: classifyCode(parent, callCtx, err), Err: err}
}

func classifyCode(parent, callCtx context.Context, err error) codes.Code {
	switch {
	case errors.Is(parent.Err(), context.Canceled):
		return codes.Canceled
	case parent.Err() != nil, errors.Is(callCtx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	}

	var se *StatusError
	if errors.As(err, &se) {
		return codeForHTTPStatus(se.StatusCode)
	}

	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return codes.DeadlineExceeded
		}
		return codes.Unavailable
	}
	return codes.Internal
}

func codeForHTTPStatus(status int) codes.Code {
	switch {
	case status == http.StatusTooManyRequests:
		return codes.ResourceExhausted
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return codes.Unauthenticated
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return codes.DeadlineExceeded
	case status >= 500:
		return codes.Unavailable
	case status >= 400:
		return codes.InvalidArgument
	}
	return codes.Internal
}
