package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"cshealth/internal/logging"
)

type everySchedule struct {
	every time.Duration
}

func (s everySchedule) Next(t time.Time) time.Time {
	return t.Add(s.every)
}

type neverSchedule struct{}

func (neverSchedule) Next(time.Time) time.Time { return time.Time{} }

func TestRunnerInvokesJobUntilCancelled(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := NewWithSchedule("rescore", everySchedule{every: 5 * time.Millisecond}, func(context.Context) error {
		if calls.Add(1) == 2 {
			return errors.New("transient failure")
		}
		return nil
	}, nil, logging.Discard())

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context cancellation, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("runner did not stop")
	}
	if calls.Load() < 3 {
		t.Fatalf("job errors must not stop the loop, calls=%d", calls.Load())
	}
}

func TestRunnerWithoutActivationsWaitsForCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	runner := NewWithSchedule("never", neverSchedule{}, func(context.Context) error {
		t.Errorf("job must not run")
		return nil
	}, nil, logging.Discard())
	if err := runner.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestNewRejectsInvalidCron(t *testing.T) {
	t.Parallel()

	if _, err := New("bad", "every minute", func(context.Context) error { return nil }, nil, nil); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := New("ok", "*/15 * * * *", func(context.Context) error { return nil }, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
