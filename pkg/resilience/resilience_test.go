package resilience

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func TestCircuitBreakerLifecycle(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	var transitions []string
	cb := NewCircuitBreaker("cache", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	})
	cb.now = clock.now
	boom := errors.New("boom")
	fail := func() error { return boom }
	ok := func() error { return nil }

	if err := cb.Execute(fail); !errors.Is(err, boom) {
		t.Fatalf("first failure = %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("opened below threshold")
	}
	cb.Execute(fail)
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %s, want open", cb.GetState())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("open breaker ran fn or returned %v", err)
	}

	clock.t = clock.t.Add(time.Minute)
	if err := cb.Execute(fail); !errors.Is(err, boom) {
		t.Fatalf("probe error = %v", err)
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("failed probe left state %s", cb.GetState())
	}

	clock.t = clock.t.Add(time.Minute)
	if err := cb.Execute(ok); err != nil {
		t.Fatalf("probe error = %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("successful probe left state %s", cb.GetState())
	}

	want := []string{"closed>open", "open>half-open", "half-open>open", "open>half-open", "half-open>closed"}
	if diff := cmp.Diff(want, transitions); diff != "" {
		t.Errorf("transitions mismatch (-want +got):\n%s", diff)
	}
}

func TestCircuitBreakerSuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker("cache", CircuitBreakerConfig{FailureThreshold: 2})
	fail := func() error { return errors.New("boom") }
	for i := 0; i < 5; i++ {
		cb.Execute(fail)
		cb.Execute(func() error { return nil })
	}
	if cb.GetState() != StateClosed {
		t.Errorf("state = %s, want closed", cb.GetState())
	}
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker("cache", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	cb.Execute(func() error { return errors.New("boom") })
	cb.Reset()
	if cb.GetState() != StateClosed {
		t.Errorf("state after Reset = %s", cb.GetState())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Errorf("Execute after Reset = %v", err)
	}
}

func noWait(context.Context, time.Duration) error { return nil }

func TestRetry(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		results   []error
		wantCalls int
		wantErr   error
	}{
		{"first try", []error{nil}, 1, nil},
		{"recovers", []error{boom, boom, nil}, 3, nil},
		{"exhausted", []error{boom, boom, boom}, 3, boom},
		{"permanent", []error{Permanent(boom)}, 1, boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := retry(context.Background(), "op", RetryConfig{MaxAttempts: 3}.withDefaults(), func() error {
				calls++
				return tt.results[calls-1]
			}, noWait)
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("Retry() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Retry() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Retry(ctx, "op", RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour}, func() error {
		calls++
		return errors.New("boom")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBackoff(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, JitterFraction: 0.5}
	tests := []struct {
		attempt int
		r       float64
		want    time.Duration
	}{
		{1, 0.5, 100 * time.Millisecond},
		{2, 0.5, 200 * time.Millisecond},
		{3, 1, 600 * time.Millisecond},
		{3, 0, 200 * time.Millisecond},
		{10, 0.5, time.Second},
	}
	for _, tt := range tests {
		if got := backoff(tt.attempt, cfg, tt.r); got != tt.want {
			t.Errorf("backoff(%d, %v) = %v, want %v", tt.attempt, tt.r, got, tt.want)
		}
	}
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "load", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WithTimeout() error = %v, want DeadlineExceeded", err)
	}
	if !strings.HasPrefix(err.Error(), "load: ") {
		t.Errorf("error %q not prefixed with operation name", err)
	}

	if err := WithTimeout(context.Background(), time.Second, "load", func(context.Context) error { return nil }); err != nil {
		t.Errorf("WithTimeout() fast fn error = %v", err)
	}
	if err := WithTimeout(context.Background(), 0, "load", func(context.Context) error { return nil }); err != nil {
		t.Errorf("WithTimeout() without limit error = %v", err)
	}
}
