package booking

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryWithBackoff(t *testing.T) {
	transient := errors.New("transient")
	permanent := errors.New("permanent")
	isTransient := func(err error) bool { return errors.Is(err, transient) }

	tests := []struct {
		name      string
		failures  []error
		attempts  int
		wantErr   error
		wantCalls int
	}{
		{"first try", nil, 3, nil, 1},
		{"recovers", []error{transient, transient}, 3, nil, 3},
		{"gives up", []error{transient, transient, transient}, 3, transient, 3},
		{"permanent stops early", []error{permanent}, 3, permanent, 1},
		{"zero attempts still calls once", []error{transient}, 0, transient, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			out, err := retryWithBackoff(context.Background(), tt.attempts, time.Millisecond, isTransient,
				func(context.Context) (string, error) {
					calls++
					if calls <= len(tt.failures) {
						return "", tt.failures[calls-1]
					}
					return "ok", nil
				})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if calls != tt.wantCalls {
				t.Errorf("expected %d calls, got %d", tt.wantCalls, calls)
			}
			if tt.wantErr == nil && out != "ok" {
				t.Errorf("unexpected result %q", out)
			}
		})
	}
}

func TestRetryWithBackoffStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := retryWithBackoff(ctx, 5, time.Hour, func(error) bool { return true },
		func(context.Context) (int, error) {
			calls++
			cancel()
			return 0, errors.New("unavailable")
		})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single call, got %d", calls)
	}
}
