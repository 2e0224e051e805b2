package reservationRepo

import (
	"context"
	"errors"
	"time"

	"mentorbook/models"
)

var (
	// ErrNotFound is returned when no reservation matches.
	ErrNotFound = errors.New("reservation not found")
	// ErrStaleTransition means the reservation exists but is no longer in any of the
	// expected source states; callers reload and decide again.
	ErrStaleTransition = errors.New("reservation status changed concurrently")
)

// ReservationRepository is the durable reservation ledger. Every status change is a
// conditional update on the current status.
type ReservationRepository interface {
	// Create inserts r. When (menteeId, idempotencyKey) already exists it returns the
	// stored reservation and created=false.
	Create(ctx context.Context, r *models.Reservation) (*models.Reservation, bool, error)
	GetByID(ctx context.Context, id string) (*models.Reservation, error)
	GetByIdempotencyKey(ctx context.Context, menteeID, key string) (*models.Reservation, error)
	GetByCheckoutHandle(ctx context.Context, handle string) (*models.Reservation, error)
	// AttachCheckout records the gateway handle while the reservation is still pending.
	AttachCheckout(ctx context.Context, id, handle, url string) (*models.Reservation, error)
	Transition(ctx context.Context, id string, from []models.ReservationStatus, to models.ReservationStatus, patch models.ReservationPatch) (*models.Reservation, error)
	// FindActiveClaims lists held/paid reservations of the mentor whose claim is live at
	// now and whose window overlaps [start, end).
	FindActiveClaims(ctx context.Context, mentorID string, start, end, now time.Time, excludeID string) ([]models.Reservation, error)
	// FindExpired lists held/paid reservations whose claim deadline has passed.
	FindExpired(ctx context.Context, now time.Time, limit int64) ([]models.Reservation, error)
}

// ValidateTransition rejects edges that are not part of the state machine.
func ValidateTransition(from []models.ReservationStatus, to models.ReservationStatus) error {
	if len(from) == 0 {
		return errors.New("transition needs at least one source status")
	}
	for _, f := range from {
		if !models.CanTransition(f, to) {
			return &IllegalTransitionError{From: f, To: to}
		}
	}
	return nil
}

type IllegalTransitionError struct {
	From, To models.ReservationStatus
}

func (e *IllegalTransitionError) Error() string {
	return "illegal reservation transition " + string(e.From) + " -> " + string(e.To)
}

// Overlaps applies the half-open interval test used for every conflict decision.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
