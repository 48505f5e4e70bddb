package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

// Outcome is the tagged result of classifying one attempt.
type Outcome int

const (
	// Success means the attempt returned no error.
	Success Outcome = iota
	// Retryable means the failure is transient and the call may be repeated.
	Retryable
	// Fatal means the failure is permanent and must be returned as-is.
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classifier decides what a failed attempt means.
type Classifier func(err error) Outcome

// markedError carries an explicit classification chosen by the caller.
type markedError struct {
	err     error
	outcome Outcome
}

func (e *markedError) Error() string { return e.err.Error() }
func (e *markedError) Unwrap() error { return e.err }

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &markedError{err: err, outcome: Retryable}
}

// Permanent marks err as fatal.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &markedError{err: err, outcome: Fatal}
}

// StatusError is an HTTP-level failure from an external service.
type StatusError struct {
	StatusCode int
	Message    string
	// RetryAfterDelay is the server's Retry-After hint, if any.
	RetryAfterDelay time.Duration
	Err             error
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return http.StatusText(e.StatusCode) + ": " + e.Message
	}
	return http.StatusText(e.StatusCode)
}

func (e *StatusError) Unwrap() error { return e.Err }

// RetryAfter returns the server-requested wait before the next attempt.
func (e *StatusError) RetryAfter() time.Duration { return e.RetryAfterDelay }

// ClassifyStatus maps an HTTP status code to an outcome. Rate limits,
// timeouts, conflicts and server faults are retryable; everything else
// (bad request, auth, not found, ...) is fatal.
func ClassifyStatus(code int) Outcome {
	switch {
	case code < 400:
		return Success
	case code == http.StatusRequestTimeout,
		code == http.StatusConflict,
		code == http.StatusTooEarly,
		code == http.StatusTooManyRequests:
		return Retryable
	case code >= 500:
		return Retryable
	default:
		return Fatal
	}
}

// DefaultClassify is the classifier used when a Wrapper has none.
// Unknown errors are fatal; a run can always be resumed.
func DefaultClassify(err error) Outcome {
	if err == nil {
		return Success
	}

	// An exhausted error wraps the last retryable cause; its budget is spent.
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		return Fatal
	}

	var marked *markedError
	if errors.As(err, &marked) {
		return marked.outcome
	}

	var status *StatusError
	if errors.As(err, &status) {
		if o := ClassifyStatus(status.StatusCode); o != Success {
			return o
		}
		return Fatal
	}

	if errors.Is(err, context.Canceled) {
		return Fatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		// Per-attempt deadlines; a cancelled parent is caught by the wrapper first.
		return Retryable
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return Retryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Retryable
	}

	switch {
	case errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE):
		return Retryable
	}

	return Fatal
}
