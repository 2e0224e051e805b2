package booking

import (
	"context"
	"errors"

	reservationRepo "mentorbook/database/repository/reservation"
	"mentorbook/models"

	"go.uber.org/zap"
)

const sweepBatchSize = 100

// ExpireReservation runs when a reservation's expiry timer fires. Reservations that
// settled, or whose deadline moved (held -> paid extends it), are left alone.
func (s *DefaultBookingService) ExpireReservation(ctx context.Context, reservationID string) error {
	res, err := s.Engine.Reservations.GetByID(ctx, reservationID)
	if errors.Is(err, reservationRepo.ErrNotFound) {
		s.logger().Warn("reaper: reservation vanished", zap.String("reservation_id", reservationID))
		return nil
	}
	if err != nil {
		return err
	}
	if !res.Status.Claims() || res.ClaimActive(s.Engine.now()) {
		return nil
	}
	return s.reap(ctx, res)
}

// SweepExpired expires every lapsed claim. It is the safety net behind the per
// reservation timers and returns how many reservations it processed.
func (s *DefaultBookingService) SweepExpired(ctx context.Context) (int, error) {
	processed := 0
	var errs []error
	for {
		batch, err := s.Engine.Reservations.FindExpired(ctx, s.Engine.now(), sweepBatchSize)
		if err != nil {
			return processed, err
		}
		progressed := 0
		for i := range batch {
			if err := s.reap(ctx, &batch[i]); err != nil {
				s.logger().Warn("reaper: could not expire reservation", zap.String("reservation_id", batch[i].ID), zap.Error(err))
				errs = append(errs, err)
				continue
			}
			progressed++
		}
		processed += progressed
		// Stop when the batch is drained or nothing in it could be moved.
		if len(batch) < sweepBatchSize || progressed == 0 {
			break
		}
	}
	if processed > 0 {
		s.logger().Info("reaper: sweep finished", zap.Int("processed", processed))
	}
	return processed, errors.Join(errs...)
}

func (s *DefaultBookingService) reap(ctx context.Context, res *models.Reservation) error {
	log := s.logger().With(zap.String("reservation_id", res.ID), zap.String("status", string(res.Status)))

	switch res.Status {
	case models.ReservationHeld:
		if res.CheckoutHandle != "" {
			checkout, err := s.callGateway(ctx, func(ctx context.Context) (*Checkout, error) {
				return s.Gateway.GetCheckout(ctx, res.CheckoutHandle)
			})
			switch {
			case err == nil && checkout.Status == CheckoutPaid:
				// The webhook has not arrived yet; the payment wins.
				_, _, advErr := s.advance(ctx, res)
				if advErr != nil {
					var be *BookingError
					if errors.As(advErr, &be) && be.HTTPStatus() < 500 {
						return nil
					}
				}
				return advErr
			case err == nil && checkout.Status == CheckoutOpen:
				s.expireCheckout(ctx, res.CheckoutHandle)
			case err != nil && !errors.Is(err, ErrCheckoutNotFound):
				return err
			}
		}
		_, err := s.expireHeld(ctx, res, "")
		return err

	case models.ReservationPaid:
		_, _, err := s.advance(ctx, res)
		if err == nil {
			return nil
		}
		var be *BookingError
		if !errors.As(err, &be) || be.HTTPStatus() >= 500 {
			return err
		}
		expired, tErr := s.Engine.Reservations.Transition(ctx, res.ID,
			[]models.ReservationStatus{models.ReservationPaid}, models.ReservationExpired,
			models.ReservationPatch{FailureCode: string(be.Code)})
		if errors.Is(tErr, reservationRepo.ErrStaleTransition) {
			return nil
		}
		if tErr != nil {
			return tErr
		}
		// Captured payment without a session; needs a refund.
		log.Error("reaper: paid reservation expired without a session", zap.String("code", string(be.Code)))
		s.cacheTerminal(ctx, expired)
	}
	return nil
}
