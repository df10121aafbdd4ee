package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/posefactory/renderq/internal/common"
)

// fastPolicy keeps the retry loop shape but with negligible waits.
func fastPolicy(attempts int) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestExecuteSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Execute(context.Background(), common.GetLogger(), "get", func() error {
		calls++
		if calls < 3 {
			return timeoutErr{}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestExecuteStopsOnNonRetryable(t *testing.T) {
	permanent := errors.New("access denied")
	calls := 0
	err := fastPolicy(5).Execute(context.Background(), common.GetLogger(), "put", func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("Execute() error = %v, want the original", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Execute(context.Background(), common.GetLogger(), "list", func() error {
		calls++
		return timeoutErr{}
	})
	if err == nil {
		t.Fatal("Execute() = nil, want error after exhaustion")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestExecuteHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fastPolicy(5).Execute(ctx, common.GetLogger(), "get", func() error {
		return timeoutErr{}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"cancelled context", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"net timeout", timeoutErr{}, true},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"wrapped timeout", fmt.Errorf("get: %w", timeoutErr{}), true},
		{"plain error", errors.New("no such bucket"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.retryable {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}

func TestCalculateBackoffBounds(t *testing.T) {
	p := NewRetryPolicy(5)
	for attempt := 0; attempt < 10; attempt++ {
		b := p.calculateBackoff(attempt)
		if b <= 0 {
			t.Errorf("attempt %d: backoff %v not positive", attempt, b)
		}
		// Cap plus the 25% jitter ceiling.
		max := time.Duration(float64(p.MaxBackoff) * 1.25)
		if b > max {
			t.Errorf("attempt %d: backoff %v exceeds cap %v", attempt, b, max)
		}
	}
}
