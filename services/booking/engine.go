package booking

import (
	"context"
	"errors"
	"time"

	profileRepo "mentorbook/database/repository/profile"
	reservationRepo "mentorbook/database/repository/reservation"
	schedulerRepo "mentorbook/database/repository/scheduler"
	timeslotRepo "mentorbook/database/repository/timeslot"
	"mentorbook/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSchedulingEngine owns the conflict checker, the atomic booking transaction
// and the alternative suggestion generator.
type DefaultSchedulingEngine struct {
	Scheduler    schedulerRepo.SchedulerRepository
	Reservations reservationRepo.ReservationRepository
	Timeslots    timeslotRepo.TimeSlotRepository
	Profiles     profileRepo.ProfileRepository
	Logger       *zap.Logger

	SuggestionLimit int
	SuggestionDays  int

	// Now is the engine clock; nil means time.Now.
	Now func() time.Time
}

func (se *DefaultSchedulingEngine) now() time.Time {
	if se.Now != nil {
		return se.Now().UTC()
	}
	return time.Now().UTC()
}

func (se *DefaultSchedulingEngine) logger() *zap.Logger {
	if se.Logger == nil {
		return zap.NewNop()
	}
	return se.Logger
}

// BookAtomically validates the parties, re-checks the window and creates the session
// in one transaction serialized on the mentor. For a reservation already confirmed it
// returns the existing session.
func (se *DefaultSchedulingEngine) BookAtomically(ctx context.Context, req AtomicBookingRequest) (*models.Session, error) {
	req.StartUTC = req.StartUTC.UTC()
	if err := validateWindow(req.StartUTC, req.DurationMinutes); err != nil {
		return nil, err
	}
	if req.ReservationID == "" && !req.StartUTC.After(se.now()) {
		return nil, invalidRequest("session start %s is in the past", req.StartUTC.Format(time.RFC3339))
	}

	log := se.logger().With(
		zap.String("mentor_id", req.MentorID),
		zap.String("mentee_id", req.MenteeID),
		zap.String("reservation_id", req.ReservationID),
	)

	var booked *models.Session
	err := se.Scheduler.WithMentorLock(ctx, req.MentorID, func(txCtx context.Context) error {
		// The callback may run more than once on transient transaction errors.
		booked = nil

		// Step 0: idempotency on the reservation.
		var res *models.Reservation
		if req.ReservationID != "" {
			r, err := se.Reservations.GetByID(txCtx, req.ReservationID)
			if errors.Is(err, reservationRepo.ErrNotFound) {
				return newError(CodeReservationNotFound, "reservation not found")
			}
			if err != nil {
				return err
			}
			if !matchesReservation(r, req) {
				return invalidRequest("booking request does not match reservation %s", r.ID)
			}
			if r.Status == models.ReservationConfirmed {
				existing, err := se.Scheduler.GetSessionByReservation(txCtx, r.ID)
				if err != nil {
					return err
				}
				log.Debug("bookAtomically: reservation already confirmed", zap.String("session_id", existing.ID))
				booked = existing
				return nil
			}
			if r.Status != models.ReservationPaid {
				return invalidTransition(r, "confirmed")
			}
			res = r
		}

		// Steps 1-3: parties.
		service, err := se.resolveParties(txCtx, req.MenteeID, req.MentorID, req.ServiceID, req.DurationMinutes)
		if err != nil {
			return err
		}
		if res == nil && service.PriceCents > 0 {
			return invalidRequest("paid services must be booked through a reservation")
		}

		// Step 4: authoritative conflict check.
		conflict, err := se.CheckConflict(txCtx, req.MentorID, req.StartUTC, req.DurationMinutes, req.ReservationID)
		if err != nil {
			return err
		}
		if !conflict.Available {
			return conflictError(conflict)
		}

		// Step 5: session row, then the reservation edge.
		session := newSession(req, service, res, se.now())
		if err := se.Scheduler.InsertSession(txCtx, session); err != nil {
			return err
		}
		if res != nil {
			patch := models.ReservationPatch{SessionID: session.ID}
			if _, err := se.Reservations.Transition(txCtx, res.ID,
				[]models.ReservationStatus{models.ReservationPaid}, models.ReservationConfirmed, patch); err != nil {
				return err
			}
		}
		booked = session
		return nil
	})
	if err != nil {
		be := AsBookingError(err, CodeBookingFailed)
		if be.IsConflict() {
			log.Info("bookAtomically: window no longer open", zap.String("code", string(be.Code)))
			be.Alternatives = se.SuggestAlternatives(ctx, req.MentorID, req.StartUTC, req.DurationMinutes)
		} else if be.HTTPStatus() >= 500 {
			log.Error("bookAtomically: transaction failed", zap.Error(err))
		} else {
			log.Info("bookAtomically: rejected", zap.String("code", string(be.Code)))
		}
		return nil, be
	}

	log.Info("bookAtomically: session booked", zap.String("session_id", booked.ID))
	return booked, nil
}

// resolveParties runs steps 1-3 of the transaction. Called with a transaction context
// the reads join the transaction.
func (se *DefaultSchedulingEngine) resolveParties(ctx context.Context, menteeID, mentorID, serviceID string, durationMinutes int) (*models.Service, error) {
	if _, err := se.Profiles.GetMentee(ctx, menteeID); err != nil {
		if errors.Is(err, profileRepo.ErrNotFound) {
			return nil, newError(CodeMenteeNotFound, "mentee not found")
		}
		return nil, err
	}

	mentor, err := se.Profiles.GetMentor(ctx, mentorID)
	if err != nil {
		if errors.Is(err, profileRepo.ErrNotFound) {
			return nil, newError(CodeMentorNotFound, "mentor not found")
		}
		return nil, err
	}
	if !mentor.Active {
		return nil, newError(CodeMentorInactive, "mentor is not accepting bookings")
	}

	service, err := se.Profiles.GetService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, profileRepo.ErrNotFound) {
			return nil, newError(CodeServiceNotFound, "service not found")
		}
		return nil, err
	}
	if service.MentorID != mentorID {
		return nil, newError(CodeServiceNotFound, "service not found for this mentor")
	}
	if !service.Active {
		return nil, newError(CodeServiceInactive, "service is no longer offered")
	}
	if service.DurationMinutes > 0 && service.DurationMinutes != durationMinutes {
		return nil, invalidRequest("service %s lasts %d minutes", service.ID, service.DurationMinutes)
	}
	return service, nil
}

func newSession(req AtomicBookingRequest, service *models.Service, res *models.Reservation, now time.Time) *models.Session {
	s := &models.Session{
		ID:              uuid.NewString(),
		ReservationID:   req.ReservationID,
		MenteeID:        req.MenteeID,
		MentorID:        req.MentorID,
		ServiceID:       req.ServiceID,
		StartUTC:        req.StartUTC,
		EndUTC:          req.StartUTC.Add(time.Duration(req.DurationMinutes) * time.Minute),
		DurationMinutes: req.DurationMinutes,
		PricePaidCents:  service.PriceCents,
		Currency:        service.Currency,
		PaymentStatus:   models.PaymentStatusFree,
		Status:          models.SessionConfirmed,
		Metadata:        req.Metadata,
		CreatedAt:       now,
	}
	if res != nil {
		s.PricePaidCents = res.AmountCents
		s.Currency = res.Currency
		if res.Metadata != nil {
			s.Metadata = res.Metadata
		}
	}
	if s.PricePaidCents > 0 {
		s.PaymentStatus = models.PaymentStatusPaid
	}
	return s
}

func matchesReservation(r *models.Reservation, req AtomicBookingRequest) bool {
	return r.MenteeID == req.MenteeID &&
		r.MentorID == req.MentorID &&
		r.ServiceID == req.ServiceID &&
		r.StartUTC.Equal(req.StartUTC) &&
		r.DurationMinutes == req.DurationMinutes
}

// requestFromReservation builds the atomic booking input from a stored reservation.
func requestFromReservation(r *models.Reservation) AtomicBookingRequest {
	return AtomicBookingRequest{
		MenteeID:        r.MenteeID,
		MentorID:        r.MentorID,
		ServiceID:       r.ServiceID,
		StartUTC:        r.StartUTC,
		DurationMinutes: r.DurationMinutes,
		ReservationID:   r.ID,
		Metadata:        r.Metadata,
	}
}

func validateWindow(start time.Time, durationMinutes int) error {
	if start.IsZero() {
		return invalidRequest("session start is required")
	}
	if !start.Truncate(time.Minute).Equal(start) {
		return invalidRequest("session start must be on a whole minute")
	}
	if durationMinutes <= 0 || durationMinutes > models.MaxSessionMinutes {
		return invalidRequest("duration must be between 1 and %d minutes", models.MaxSessionMinutes)
	}
	return nil
}
