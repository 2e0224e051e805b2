package schedulerRepo

import (
	"context"
	"errors"
	"time"

	"mentorbook/models"
)

// ErrNotFound is returned when no session matches.
var ErrNotFound = errors.New("session not found")

// ErrDuplicateSession means a session already exists for the reservation.
var ErrDuplicateSession = errors.New("session already exists for reservation")

type SchedulerRepository interface {
	// WithMentorLock runs fn as one transaction that is serialized against every other
	// WithMentorLock call for the same mentor. The ctx handed to fn carries the
	// transaction; repository calls made with it join the unit of work. An error from
	// fn aborts the transaction and is returned unchanged.
	WithMentorLock(ctx context.Context, mentorID string, fn func(ctx context.Context) error) error
	// FindOverlappingSessions lists the mentor's active sessions intersecting [start, end).
	FindOverlappingSessions(ctx context.Context, mentorID string, start, end time.Time) ([]models.Session, error)
	InsertSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	GetSessionByReservation(ctx context.Context, reservationID string) (*models.Session, error)
}
