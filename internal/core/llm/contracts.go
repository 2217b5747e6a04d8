package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
)

// Invoker issues exactly one model call per invocation.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// Backend is a single model provider. Implementations must not retry.
type Backend interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// InvokerFunc adapts a plain function to Invoker.
type InvokerFunc func(ctx context.Context, prompt string) (string, error)

func (f InvokerFunc) Invoke(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// TransportError is any failure to obtain a completion from a backend.
type TransportError struct {
	Backend string
	Code    codes.Code
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("llm transport (%s, %s): %v", e.Backend, e.Code, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRetryable reports whether another attempt could plausibly succeed.
func (e *TransportError) IsRetryable() bool {
	switch e.Code {
	case codes.Unauthenticated, codes.PermissionDenied, codes.InvalidArgument:
		return false
	}
	return true
}

// AsTransportError unwraps err to a *TransportError if it is one.
func AsTransportError(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// StatusError is returned by HTTP-level backends for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("non-2xx status: %d", e.StatusCode)
	}
	return fmt.Sprintf("non-2xx status: %d: %s", e.StatusCode, e.Body)
}
