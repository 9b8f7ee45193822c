package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func fastPolicy(attempts int, retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		Factor:       2,
		Retryable:    retryable,
		Name:         "test",
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	t.Parallel()
	calls := 0
	v, err := Do(context.Background(), fastPolicy(3, nil), func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if v != "ok" || calls != 1 {
		t.Fatalf("v=%q calls=%d", v, calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	t.Parallel()
	calls := 0
	final := errors.New("final failure")
	_, err := Do(context.Background(), fastPolicy(3, nil), func(context.Context) (int, error) {
		calls++
		if calls == 3 {
			return 0, final
		}
		return 0, errBoom
	})
	if calls != 3 {
		t.Fatalf("expected exactly 3 invocations, got %d", calls)
	}
	if !errors.Is(err, final) {
		t.Fatalf("expected last error to propagate, got %v", err)
	}
}

func TestDoNonRetryableStopsImmediately(t *testing.T) {
	t.Parallel()
	fatal := errors.New("fatal")
	calls := 0
	start := time.Now()
	_, err := Do(context.Background(), Policy{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		Retryable:    func(err error) bool { return !errors.Is(err, fatal) },
		Name:         "test",
	}, func(context.Context) (int, error) {
		calls++
		return 0, fatal
	})
	if calls != 1 {
		t.Fatalf("expected exactly 1 invocation, got %d", calls)
	}
	if !errors.Is(err, fatal) {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("non-retryable error waited for a backoff delay")
	}
}

func TestDoRecoversMidway(t *testing.T) {
	t.Parallel()
	calls := 0
	v, err := Do(context.Background(), fastPolicy(4, nil), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errBoom
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if v != 42 || calls != 3 {
		t.Fatalf("v=%d calls=%d", v, calls)
	}
}

func TestDoHonorsContextCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := Do(ctx, Policy{
		MaxAttempts:  10,
		InitialDelay: time.Minute,
		Name:         "test",
	}, func(context.Context) (int, error) {
		calls++
		return 0, errBoom
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 invocation before cancel, got %d", calls)
	}
}
