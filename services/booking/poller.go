package booking

import (
	"context"
	"errors"
	"time"

	"mentorbook/models"
)

// ErrReservationClosed is returned when a polled reservation ends without a session.
var ErrReservationClosed = errors.New("reservation closed without confirmation")

// PollPolicy bounds client-side status polling.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

func DefaultPollPolicy() PollPolicy {
	return PollPolicy{Interval: 2 * time.Second, MaxAttempts: 30}
}

// AwaitConfirmation polls fetch until the reservation is confirmed, closes, or the
// policy runs out. It only observes; reconciliation happens server-side on each fetch.
func AwaitConfirmation(ctx context.Context, fetch func(ctx context.Context) (*models.ReservationView, error), policy PollPolicy) (*models.ReservationView, error) {
	defaults := DefaultPollPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = defaults.MaxAttempts
	}
	if policy.Interval <= 0 {
		policy.Interval = defaults.Interval
	}
	ticker := time.NewTicker(policy.Interval)
	defer ticker.Stop()

	var last *models.ReservationView
	for attempt := 1; ; attempt++ {
		view, err := fetch(ctx)
		if err != nil {
			return last, err
		}
		last = view
		switch view.Status {
		case models.ReservationConfirmed:
			return view, nil
		case models.ReservationExpired, models.ReservationCancelled:
			return view, ErrReservationClosed
		}
		if attempt >= policy.MaxAttempts {
			return last, ErrConfirmationTimeout
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}
