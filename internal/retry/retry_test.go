package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"
)

// instantTimer records requested waits and fires immediately.
type instantTimer struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (t *instantTimer) After(d time.Duration) <-chan time.Time {
	t.mu.Lock()
	t.waits = append(t.waits, d)
	t.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func testPolicy(attempts uint) Policy {
	return Policy{
		MaxAttempts: attempts,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    25 * time.Millisecond,
	}
}

func TestDoTransientThenSuccess(t *testing.T) {
	timer := &instantTimer{}
	w := New(testPolicy(5), WithTimer(timer))

	calls := 0
	got, err := Do(context.Background(), w, "extract", func(ctx context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", Transient(fmt.Errorf("rate limited (call %d)", calls))
		}
		return "segment", nil
	})
	if err != nil {
		t.Fatalf("Do() unexpected error: %v", err)
	}
	if got != "segment" {
		t.Errorf("Do() = %q, want %q", got, "segment")
	}
	if calls != 3 {
		t.Errorf("attempts = %d, want 3", calls)
	}
	if len(timer.waits) != 2 {
		t.Errorf("backoff waits = %d, want 2", len(timer.waits))
	}
}

func TestDoFatalOnFirstAttempt(t *testing.T) {
	w := New(testPolicy(5), WithTimer(&instantTimer{}))
	authErr := errors.New("invalid api key")

	calls := 0
	_, err := Do(context.Background(), w, "init", func(ctx context.Context) (int, error) {
		calls++
		return 0, Permanent(authErr)
	})
	if calls != 1 {
		t.Errorf("attempts = %d, want 1", calls)
	}
	if !errors.Is(err, authErr) {
		t.Errorf("Do() error = %v, want %v", err, authErr)
	}
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		t.Error("fatal errors must not be reported as exhausted")
	}
}

func TestNestedDoDoesNotRetryExhaustedCall(t *testing.T) {
	outer := New(testPolicy(3), WithTimer(&instantTimer{}))
	inner := New(testPolicy(2), WithTimer(&instantTimer{}))

	calls := 0
	_, err := Do(context.Background(), outer, "verify", func(ctx context.Context) (int, error) {
		return Do(ctx, inner, "verify page", func(ctx context.Context) (int, error) {
			calls++
			return 0, Transient(&StatusError{StatusCode: http.StatusTooManyRequests})
		})
	})
	if calls != 2 {
		t.Errorf("underlying calls = %d, want 2", calls)
	}
	if DefaultClassify(err) != Fatal {
		t.Errorf("DefaultClassify(%v) = %v, want fatal", err, DefaultClassify(err))
	}
}

func TestDoFatalErrorReturnedUnchanged(t *testing.T) {
	w := New(testPolicy(3), WithTimer(&instantTimer{}))
	sentinel := &StatusError{StatusCode: http.StatusUnauthorized, Message: "bad key"}

	_, err := Do(context.Background(), w, "verify", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, sentinel
	})
	if err != error(sentinel) {
		t.Errorf("Do() error = %#v, want the original error value", err)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	timer := &instantTimer{}
	w := New(testPolicy(4), WithTimer(timer))
	overloaded := &StatusError{StatusCode: http.StatusServiceUnavailable}

	calls := 0
	_, err := Do(context.Background(), w, "extract group 2", func(ctx context.Context) (int, error) {
		calls++
		return 0, overloaded
	})
	if calls != 4 {
		t.Errorf("attempts = %d, want 4", calls)
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Do() error = %v, want *ExhaustedError", err)
	}
	if exhausted.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", exhausted.Attempts)
	}
	if !errors.Is(err, overloaded) {
		t.Error("ExhaustedError should wrap the last failure")
	}
	if DefaultClassify(err) != Fatal {
		t.Error("exhaustion must classify as fatal")
	}

	if len(timer.waits) != 3 {
		t.Fatalf("backoff waits = %d, want 3", len(timer.waits))
	}
	for i := 1; i < len(timer.waits); i++ {
		if timer.waits[i] < timer.waits[i-1] {
			t.Errorf("backoff decreased: %v", timer.waits)
		}
	}
	for _, d := range timer.waits {
		if d > 25*time.Millisecond {
			t.Errorf("wait %v exceeds MaxDelay", d)
		}
	}
	if last := timer.waits[len(timer.waits)-1]; last != 25*time.Millisecond {
		t.Errorf("last wait = %v, want capped at 25ms", last)
	}
}

func TestDoHonoursRetryAfter(t *testing.T) {
	timer := &instantTimer{}
	policy := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Second}
	w := New(policy, WithTimer(timer))

	calls := 0
	_, err := Do(context.Background(), w, "extract", func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, &StatusError{StatusCode: http.StatusTooManyRequests, RetryAfterDelay: 300 * time.Millisecond}
		}
		return 1, nil
	})
	if err != nil {
		t.Fatalf("Do() unexpected error: %v", err)
	}
	if len(timer.waits) != 1 || timer.waits[0] < 300*time.Millisecond {
		t.Errorf("waits = %v, want one wait of at least 300ms", timer.waits)
	}
}

func TestDoCancelledContextIsFatal(t *testing.T) {
	w := New(testPolicy(5), WithTimer(&instantTimer{}))
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := Do(ctx, w, "extract", func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, Transient(errors.New("connection reset"))
	})
	if calls != 1 {
		t.Errorf("attempts = %d, want 1", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
}

func TestDoAttemptTimeoutIsRetryable(t *testing.T) {
	policy := testPolicy(3)
	policy.AttemptTimeout = 20 * time.Millisecond
	w := New(policy, WithTimer(&instantTimer{}))

	calls := 0
	got, err := Do(context.Background(), w, "verify", func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "tree", nil
	})
	if err != nil {
		t.Fatalf("Do() unexpected error: %v", err)
	}
	if got != "tree" || calls != 2 {
		t.Errorf("Do() = %q after %d attempts, want %q after 2", got, calls, "tree")
	}
}

func TestDoCustomClassifier(t *testing.T) {
	flaky := errors.New("flaky")
	classify := func(err error) Outcome {
		if errors.Is(err, flaky) {
			return Retryable
		}
		return Fatal
	}
	w := New(testPolicy(3), WithClassifier(classify), WithTimer(&instantTimer{}))

	calls := 0
	_, err := Do(context.Background(), w, "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, flaky
	})
	if calls != 3 {
		t.Errorf("attempts = %d, want 3", calls)
	}
	if !errors.Is(err, flaky) {
		t.Errorf("Do() error = %v, want wrapped flaky", err)
	}
}

func TestNewNormalisesZeroAttempts(t *testing.T) {
	w := New(Policy{})
	if w.Policy().MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d, want 1", w.Policy().MaxAttempts)
	}
}

func TestPolicyDelay(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	tests := []struct {
		n    uint
		want time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("retry %d", tt.n), func(t *testing.T) {
			if got := p.Delay(tt.n); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.n, got, tt.want)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code int
		want Outcome
	}{
		{http.StatusOK, Success},
		{http.StatusBadRequest, Fatal},
		{http.StatusUnauthorized, Fatal},
		{http.StatusForbidden, Fatal},
		{http.StatusNotFound, Fatal},
		{http.StatusRequestTimeout, Retryable},
		{http.StatusConflict, Retryable},
		{http.StatusTooManyRequests, Retryable},
		{http.StatusInternalServerError, Retryable},
		{http.StatusBadGateway, Retryable},
		{http.StatusServiceUnavailable, Retryable},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			if got := ClassifyStatus(tt.code); got != tt.want {
				t.Errorf("ClassifyStatus(%d) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestDefaultClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"nil", nil, Success},
		{"marked transient", Transient(errors.New("x")), Retryable},
		{"marked permanent", Permanent(io.ErrUnexpectedEOF), Fatal},
		{"wrapped transient", fmt.Errorf("call: %w", Transient(errors.New("x"))), Retryable},
		{"rate limit", &StatusError{StatusCode: 429}, Retryable},
		{"auth", &StatusError{StatusCode: 401}, Fatal},
		{"status below 400", &StatusError{StatusCode: 200}, Fatal},
		{"canceled", context.Canceled, Fatal},
		{"deadline", context.DeadlineExceeded, Retryable},
		{"unexpected eof", io.ErrUnexpectedEOF, Retryable},
		{"dns timeout", &net.DNSError{Err: "timeout", IsTimeout: true}, Retryable},
		{"exhausted", &ExhaustedError{Op: "x", Attempts: 3, Err: Transient(errors.New("x"))}, Fatal},
		{"unknown", errors.New("malformed document"), Fatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultClassify(tt.err); got != tt.want {
				t.Errorf("DefaultClassify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
