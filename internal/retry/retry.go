// Package retry wraps calls to unreliable external services with
// classification and exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	retrygo "github.com/avast/retry-go/v4"
)

// Policy configures how failed calls are retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts uint
	// BaseDelay is the wait before the first retry; it doubles per retry.
	BaseDelay time.Duration
	// MaxDelay caps a single wait.
	MaxDelay time.Duration
	// Jitter adds a random extra wait in [0, Jitter). Zero disables it.
	Jitter time.Duration
	// AttemptTimeout bounds one attempt. Zero means no per-attempt bound.
	AttemptTimeout time.Duration
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 6,
		BaseDelay:   2 * time.Second,
		MaxDelay:    60 * time.Second,
		Jitter:      time.Second,
	}
}

// Delay returns the backoff before retry n (1-based), before jitter.
func (p Policy) Delay(n uint) time.Duration {
	if n == 0 {
		return 0
	}
	d := p.BaseDelay
	for i := uint(1); i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Op       string
	Attempts uint
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Wrapper applies a Policy to external calls. It holds no run state and
// is safe to share.
type Wrapper struct {
	policy   Policy
	classify Classifier
	logger   *slog.Logger
	timer    retrygo.Timer
}

// Option customises a Wrapper.
type Option func(*Wrapper)

// WithClassifier replaces DefaultClassify.
func WithClassifier(c Classifier) Option {
	return func(w *Wrapper) {
		if c != nil {
			w.classify = c
		}
	}
}

// WithLogger sets the logger used for retry messages.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Wrapper) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithTimer replaces the timer used for backoff waits.
func WithTimer(t retrygo.Timer) Option {
	return func(w *Wrapper) {
		w.timer = t
	}
}

// New creates a Wrapper for the given policy.
func New(policy Policy, opts ...Option) *Wrapper {
	if policy.MaxAttempts == 0 {
		policy.MaxAttempts = 1
	}
	w := &Wrapper{
		policy:   policy,
		classify: DefaultClassify,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Policy returns the wrapper's policy.
func (w *Wrapper) Policy() Policy {
	return w.policy
}

// Classify exposes the wrapper's classifier.
func (w *Wrapper) Classify(err error) Outcome {
	return w.classify(err)
}

// Do invokes fn until it succeeds, fails fatally, or the attempt budget is
// spent. Fatal errors are returned unchanged; an exhausted budget returns
// *ExhaustedError wrapping the last failure.
func Do[T any](ctx context.Context, w *Wrapper, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		zero     T
		attempts uint
		lastErr  error
		outcome  Outcome
	)

	attempt := func() (T, error) {
		attempts++
		callCtx, cancel := w.attemptContext(ctx)
		defer cancel()

		result, err := fn(callCtx)
		lastErr = err
		outcome = w.classifyAttempt(ctx, err)

		switch outcome {
		case Success:
			return result, nil
		case Fatal:
			return zero, retrygo.Unrecoverable(err)
		default:
			return zero, err
		}
	}

	opts := []retrygo.Option{
		retrygo.Context(ctx),
		retrygo.Attempts(w.policy.MaxAttempts),
		retrygo.Delay(w.policy.BaseDelay),
		retrygo.MaxDelay(w.policy.MaxDelay),
		retrygo.DelayType(w.delayType()),
		retrygo.LastErrorOnly(true),
		retrygo.RetryIf(func(error) bool { return outcome == Retryable }),
		retrygo.OnRetry(func(n uint, err error) {
			if outcome != Retryable || n+1 >= w.policy.MaxAttempts {
				return
			}
			w.logger.Warn("external call failed, retrying",
				"op", op,
				"attempt", n+1,
				"max_attempts", w.policy.MaxAttempts,
				"backoff", w.policy.Delay(n+1),
				"error", err)
		}),
	}
	if w.policy.Jitter > 0 {
		opts = append(opts, retrygo.MaxJitter(w.policy.Jitter))
	}
	if w.timer != nil {
		opts = append(opts, retrygo.WithTimer(w.timer))
	}

	result, err := retrygo.DoWithData(attempt, opts...)
	if err == nil {
		return result, nil
	}

	switch {
	case ctx.Err() != nil && !errors.Is(lastErr, ctx.Err()):
		return zero, fmt.Errorf("%s: %w (last error: %v)", op, ctx.Err(), lastErr)
	case outcome == Fatal:
		return zero, lastErr
	case lastErr == nil:
		return zero, err
	default:
		w.logger.Error("external call exhausted retries", "op", op, "attempts", attempts, "error", lastErr)
		return zero, &ExhaustedError{Op: op, Attempts: attempts, Err: lastErr}
	}
}

// classifyAttempt runs the classifier, treating cancellation of the caller's
// context as fatal regardless of how the callee reported it.
func (w *Wrapper) classifyAttempt(parent context.Context, err error) Outcome {
	if err == nil {
		return Success
	}
	if parent.Err() != nil {
		return Fatal
	}
	return w.classify(err)
}

func (w *Wrapper) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.policy.AttemptTimeout > 0 {
		return context.WithTimeout(ctx, w.policy.AttemptTimeout)
	}
	return context.WithCancel(ctx)
}

// delayType is exponential backoff, optionally jittered, stretched to honour
// a server-provided Retry-After hint.
func (w *Wrapper) delayType() retrygo.DelayTypeFunc {
	backoff := retrygo.BackOffDelay
	if w.policy.Jitter > 0 {
		backoff = retrygo.CombineDelay(retrygo.BackOffDelay, retrygo.RandomDelay)
	}
	return func(n uint, err error, config *retrygo.Config) time.Duration {
		d := backoff(n, err, config)
		var hinted interface{ RetryAfter() time.Duration }
		if errors.As(err, &hinted) && hinted.RetryAfter() > d {
			d = hinted.RetryAfter()
		}
		return d
	}
}
