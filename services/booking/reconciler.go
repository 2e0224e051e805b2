package booking

import (
	"context"
	"errors"
	"fmt"

	reservationRepo "mentorbook/database/repository/reservation"
	"mentorbook/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxAdvanceSteps bounds reload loops when concurrent writers keep moving a reservation.
const maxAdvanceSteps = 5

// advance is the one idempotent transition towards confirmed. The webhook, status
// polls, free bookings and the reaper all call it. Both edges are conditional and run
// under the mentor lock, so concurrent callers converge on a single session.
func (s *DefaultBookingService) advance(ctx context.Context, res *models.Reservation) (*models.Reservation, *models.Session, error) {
	log := s.logger().With(zap.String("reservation_id", res.ID))

	for step := 0; step < maxAdvanceSteps; step++ {
		switch res.Status {
		case models.ReservationHeld:
			paid, err := s.markPaid(ctx, res)
			if errors.Is(err, reservationRepo.ErrStaleTransition) {
				if res, err = s.Engine.Reservations.GetByID(ctx, res.ID); err != nil {
					return nil, nil, err
				}
				continue
			}
			var be *BookingError
			if errors.As(err, &be) && be.IsConflict() {
				// The claim lapsed and someone else now holds the window. The payment
				// cannot be honoured, so the reservation closes and the charge needs a refund.
				log.Error("reconcile: payment arrived after the window was taken, needs a refund",
					zap.String("code", string(be.Code)), zap.Time("expired_at", res.ExpiresAt))
				expired, expErr := s.expireHeld(ctx, res, string(be.Code))
				if expErr != nil {
					return nil, nil, expErr
				}
				return expired, nil, be
			}
			if err != nil {
				return nil, nil, err
			}
			log.Info("reconcile: payment recorded")
			res = paid

		case models.ReservationPaid:
			session, err := s.Engine.BookAtomically(ctx, requestFromReservation(res))
			if err != nil {
				return res, nil, err
			}
			confirmed, err := s.Engine.Reservations.GetByID(ctx, res.ID)
			if err != nil {
				return nil, nil, err
			}
			s.cacheTerminal(ctx, confirmed)
			return confirmed, session, nil

		case models.ReservationConfirmed:
			session, err := s.Engine.Scheduler.GetSessionByReservation(ctx, res.ID)
			if err != nil {
				return nil, nil, err
			}
			return res, session, nil

		default:
			return res, nil, invalidTransition(res, "confirmed")
		}
	}
	return res, nil, wrapError(CodeBookingFailed, "reservation kept changing", fmt.Errorf("reservation %s did not settle", res.ID))
}

// markPaid records a payment on a held reservation. It re-runs the conflict check under
// the mentor lock because a lapsed claim stops blocking the window, and another mentee
// may have claimed it before the sweep ran.
func (s *DefaultBookingService) markPaid(ctx context.Context, res *models.Reservation) (*models.Reservation, error) {
	var paid *models.Reservation
	err := s.Engine.Scheduler.WithMentorLock(ctx, res.MentorID, func(txCtx context.Context) error {
		paid = nil
		conflict, err := s.Engine.CheckConflict(txCtx, res.MentorID, res.StartUTC, res.DurationMinutes, res.ID)
		if err != nil {
			return err
		}
		if !conflict.Available {
			return conflictError(conflict)
		}
		patch := models.ReservationPatch{ExpiresAt: s.Engine.now().Add(s.Config.PaidGrace)}
		r, err := s.Engine.Reservations.Transition(txCtx, res.ID,
			[]models.ReservationStatus{models.ReservationHeld}, models.ReservationPaid, patch)
		if err != nil {
			return err
		}
		paid = r
		return nil
	})
	return paid, err
}

// reconcileHeld asks the gateway about a held reservation's checkout and applies what
// it reports. Gateway errors leave the reservation untouched.
func (s *DefaultBookingService) reconcileHeld(ctx context.Context, res *models.Reservation) (*models.Reservation, error) {
	if res.Status != models.ReservationHeld || res.CheckoutHandle == "" {
		return res, nil
	}
	log := s.logger().With(zap.String("reservation_id", res.ID), zap.String("checkout", res.CheckoutHandle))

	checkout, err := s.callGateway(ctx, func(ctx context.Context) (*Checkout, error) {
		return s.Gateway.GetCheckout(ctx, res.CheckoutHandle)
	})
	if err != nil {
		log.Warn("reconcile: checkout lookup failed", zap.Error(err))
		return res, nil
	}

	switch checkout.Status {
	case CheckoutPaid:
		current, _, err := s.advance(ctx, res)
		if err != nil {
			log.Warn("reconcile: paid checkout could not be confirmed yet", zap.Error(err))
			return s.reload(ctx, res)
		}
		return current, nil
	case CheckoutExpired:
		return s.expireHeld(ctx, res, "")
	}
	return res, nil
}

// expireHeld moves held -> expired; a lost race returns the current state.
func (s *DefaultBookingService) expireHeld(ctx context.Context, res *models.Reservation, failureCode string) (*models.Reservation, error) {
	expired, err := s.Engine.Reservations.Transition(ctx, res.ID,
		[]models.ReservationStatus{models.ReservationHeld}, models.ReservationExpired,
		models.ReservationPatch{FailureCode: failureCode})
	if errors.Is(err, reservationRepo.ErrStaleTransition) {
		return s.reload(ctx, res)
	}
	if err != nil {
		return nil, err
	}
	s.logger().Info("reconcile: reservation expired", zap.String("reservation_id", res.ID))
	s.cacheTerminal(ctx, expired)
	return expired, nil
}

// HandleGatewayEvent applies a verified payment callback. Returning an error asks the
// gateway to redeliver, so only failures a retry can fix are returned.
func (s *DefaultBookingService) HandleGatewayEvent(ctx context.Context, event GatewayEvent) error {
	log := s.logger().With(
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("checkout", event.CheckoutHandle),
	)
	if event.Type == EventIgnored {
		return nil
	}

	res, err := s.reservationForCheckout(ctx, event.CheckoutHandle, event.ReservationID)
	if errors.Is(err, reservationRepo.ErrNotFound) {
		log.Warn("webhook: no reservation for checkout")
		return nil
	}
	if err != nil {
		return err
	}
	log = log.With(zap.String("reservation_id", res.ID), zap.String("correlation_id", res.CorrelationID))

	switch event.Type {
	case EventPaid:
		confirmed, session, err := s.advance(ctx, res)
		if err != nil {
			be := AsBookingError(err, CodeBookingFailed)
			if be.HTTPStatus() >= 500 {
				log.Error("webhook: confirmation failed, awaiting redelivery", zap.Error(err))
				return err
			}
			// Payment captured but the booking cannot be honoured; needs a refund.
			log.Error("webhook: paid reservation cannot be confirmed",
				zap.String("code", string(be.Code)), zap.String("status", string(res.Status)))
			return nil
		}
		log.Info("webhook: reservation confirmed",
			zap.String("status", string(confirmed.Status)), zap.String("session_id", session.ID))
	case EventExpired:
		if res.Status == models.ReservationHeld {
			if _, err := s.expireHeld(ctx, res, ""); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetStatus is the server side of the polling path.
func (s *DefaultBookingService) GetStatus(ctx context.Context, menteeID, reservationID string) (*models.ReservationView, error) {
	if s.Cache != nil {
		if view, ok := s.Cache.Get(ctx, reservationID); ok {
			if view.MenteeID != menteeID {
				return nil, newError(CodeReservationNotFound, "reservation not found")
			}
			return view, nil
		}
	}
	res, err := s.loadOwned(ctx, menteeID, reservationID)
	if err != nil {
		return nil, err
	}
	return s.observe(ctx, res)
}

func (s *DefaultBookingService) GetStatusByCheckout(ctx context.Context, menteeID, checkoutHandle string) (*models.ReservationView, error) {
	res, err := s.reservationForCheckout(ctx, checkoutHandle, "")
	if errors.Is(err, reservationRepo.ErrNotFound) {
		return nil, newError(CodeReservationNotFound, "reservation not found")
	}
	if err != nil {
		return nil, wrapError(CodeInternalError, "internal error", err)
	}
	if res.MenteeID != menteeID {
		return nil, newError(CodeReservationNotFound, "reservation not found")
	}
	return s.GetStatus(ctx, menteeID, res.ID)
}

// observe reports the reservation, first applying anything the gateway already knows.
// It never trusts the caller's view of payment.
func (s *DefaultBookingService) observe(ctx context.Context, res *models.Reservation) (*models.ReservationView, error) {
	var err error
	switch res.Status {
	case models.ReservationHeld:
		if res, err = s.reconcileHeld(ctx, res); err != nil {
			return nil, wrapError(CodeInternalError, "internal error", err)
		}
	case models.ReservationPaid:
		if current, _, advErr := s.advance(ctx, res); advErr != nil {
			s.logger().Warn("status: paid reservation not confirmed yet", zap.String("reservation_id", res.ID), zap.Error(advErr))
		} else {
			res = current
		}
	}

	view := models.NewReservationView(res)
	if res.Status == models.ReservationConfirmed {
		details, err := s.sessionDetails(ctx, res)
		if err != nil {
			return nil, wrapError(CodeInternalError, "internal error", err)
		}
		view.Session = details
	}
	if res.Status.IsTerminal() && s.Cache != nil {
		s.Cache.Set(ctx, view)
	}
	return view, nil
}

// sessionDetails renders the confirmed session with mentor and service names.
func (s *DefaultBookingService) sessionDetails(ctx context.Context, res *models.Reservation) (*models.SessionDetails, error) {
	if res.Status != models.ReservationConfirmed {
		return nil, nil
	}
	session, err := s.Engine.Scheduler.GetSessionByReservation(ctx, res.ID)
	if err != nil {
		return nil, fmt.Errorf("load session for reservation %s: %w", res.ID, err)
	}
	details := &models.SessionDetails{
		SessionID:       session.ID,
		SessionDate:     session.StartUTC,
		Status:          string(session.Status),
		PaymentStatus:   session.PaymentStatus,
		Price:           session.PricePaidCents,
		Currency:        session.Currency,
		DurationMinutes: session.DurationMinutes,
	}
	if mentor, err := s.Engine.Profiles.GetMentor(ctx, session.MentorID); err == nil {
		details.MentorName = mentor.Name
	} else {
		s.logger().Warn("status: mentor lookup failed", zap.String("mentor_id", session.MentorID), zap.Error(err))
	}
	if service, err := s.Engine.Profiles.GetService(ctx, session.ServiceID); err == nil {
		details.ServiceTitle = service.Title
	} else {
		s.logger().Warn("status: service lookup failed", zap.String("service_id", session.ServiceID), zap.Error(err))
	}
	return details, nil
}

func (s *DefaultBookingService) reservationForCheckout(ctx context.Context, handle, reservationID string) (*models.Reservation, error) {
	if handle == "" {
		return nil, reservationRepo.ErrNotFound
	}
	if s.Cache != nil {
		if id, ok := s.Cache.ReservationIDForHandle(ctx, handle); ok {
			reservationID = id
		}
	}
	res, err := s.Engine.Reservations.GetByCheckoutHandle(ctx, handle)
	if errors.Is(err, reservationRepo.ErrNotFound) && reservationID != "" {
		res, err = s.Engine.Reservations.GetByID(ctx, reservationID)
		if err == nil && res.CheckoutHandle != handle {
			return nil, reservationRepo.ErrNotFound
		}
	}
	return res, err
}

func (s *DefaultBookingService) loadOwned(ctx context.Context, menteeID, reservationID string) (*models.Reservation, error) {
	if _, err := uuid.Parse(reservationID); err != nil {
		return nil, invalidRequest("reservation id must be a UUID")
	}
	res, err := s.Engine.Reservations.GetByID(ctx, reservationID)
	if errors.Is(err, reservationRepo.ErrNotFound) {
		return nil, newError(CodeReservationNotFound, "reservation not found")
	}
	if err != nil {
		return nil, wrapError(CodeInternalError, "internal error", err)
	}
	if res.MenteeID != menteeID {
		return nil, newError(CodeReservationNotFound, "reservation not found")
	}
	return res, nil
}

func (s *DefaultBookingService) reload(ctx context.Context, res *models.Reservation) (*models.Reservation, error) {
	current, err := s.Engine.Reservations.GetByID(ctx, res.ID)
	if err != nil {
		return nil, err
	}
	return current, nil
}

func (s *DefaultBookingService) cacheTerminal(ctx context.Context, res *models.Reservation) {
	if s.Cache == nil || !res.Status.IsTerminal() || res.Status == models.ReservationConfirmed {
		// Confirmed views carry session details and are cached by observe.
		return
	}
	s.Cache.Set(ctx, models.NewReservationView(res))
}
