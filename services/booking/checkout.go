package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mentorbook/models"

	"go.uber.org/zap"
)

// gatewayAttemptTimeout bounds one gateway call inside the retry loop.
const gatewayAttemptTimeout = 10 * time.Second

// CheckoutIdempotencyKey derives the gateway idempotency key for a reservation. A
// checkout replacing a terminal one gets a key derived from the replaced handle, so
// retries of the replacement stay idempotent as well.
func CheckoutIdempotencyKey(reservationID, replacedHandle string) string {
	if replacedHandle == "" {
		return "checkout_" + reservationID
	}
	return "checkout_" + reservationID + "_after_" + replacedHandle
}

// CreateOrReuseCheckout returns the open checkout already attached to res, or creates
// one for the server-side amount and attaches it while res is still pending.
func (s *DefaultBookingService) CreateOrReuseCheckout(ctx context.Context, res *models.Reservation, expiresAt time.Time) (*Checkout, error) {
	log := s.logger().With(zap.String("reservation_id", res.ID))

	replaced := ""
	if res.CheckoutHandle != "" {
		existing, err := s.callGateway(ctx, func(ctx context.Context) (*Checkout, error) {
			return s.Gateway.GetCheckout(ctx, res.CheckoutHandle)
		})
		switch {
		case err == nil && existing.Status != CheckoutExpired:
			if existing.URL == "" {
				existing.URL = res.CheckoutURL
			}
			log.Debug("checkout: reusing existing checkout", zap.String("checkout", existing.Handle))
			return existing, nil
		case err != nil && !errors.Is(err, ErrCheckoutNotFound):
			return nil, gatewayError(err)
		}
		replaced = res.CheckoutHandle
		log.Info("checkout: existing checkout is no longer usable", zap.String("checkout", replaced))
	}

	req := CheckoutRequest{
		ReservationID:  res.ID,
		IdempotencyKey: CheckoutIdempotencyKey(res.ID, replaced),
		AmountCents:    res.AmountCents,
		Currency:       res.Currency,
		Description:    fmt.Sprintf("Mentorship session on %s (%d min)", res.StartUTC.Format("Jan 2, 2006 15:04 UTC"), res.DurationMinutes),
		MenteeID:       res.MenteeID,
		ExpiresAt:      expiresAt,
	}
	checkout, err := s.callGateway(ctx, func(ctx context.Context) (*Checkout, error) {
		return s.Gateway.CreateCheckout(ctx, req)
	})
	if err != nil {
		log.Warn("checkout: create failed", zap.Error(err))
		return nil, gatewayError(err)
	}

	attached, err := s.Engine.Reservations.AttachCheckout(ctx, res.ID, checkout.Handle, checkout.URL)
	if err != nil {
		return nil, err
	}
	*res = *attached
	if s.Cache != nil {
		s.Cache.RememberHandle(ctx, checkout.Handle, res.ID)
	}
	log.Info("checkout: created", zap.String("checkout", checkout.Handle))
	return checkout, nil
}

// callGateway retries transient gateway failures with exponential backoff. Every
// attempt repeats the same call, so creates always reuse the same idempotency key.
func (s *DefaultBookingService) callGateway(ctx context.Context, fn func(ctx context.Context) (*Checkout, error)) (*Checkout, error) {
	retryable := func(err error) bool {
		if errors.Is(err, ErrGatewayTransient) {
			return true
		}
		return errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil
	}
	return retryWithBackoff(ctx, s.Config.GatewayMaxAttempts, s.Config.GatewayBaseBackoff, retryable,
		func(ctx context.Context) (*Checkout, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, gatewayAttemptTimeout)
			defer cancel()
			return fn(attemptCtx)
		})
}

// expireCheckout closes a checkout at the gateway. Failures are logged only.
func (s *DefaultBookingService) expireCheckout(ctx context.Context, handle string) {
	if handle == "" {
		return
	}
	if err := s.Gateway.ExpireCheckout(ctx, handle); err != nil {
		s.logger().Warn("checkout: expire failed", zap.String("checkout", handle), zap.Error(err))
	}
}

func gatewayError(err error) *BookingError {
	if errors.Is(err, ErrGatewayTransient) || errors.Is(err, context.DeadlineExceeded) {
		return wrapError(CodeGatewayUnavailable, "the payment provider is temporarily unavailable, please retry", err)
	}
	return wrapError(CodeBookingFailed, "checkout could not be created", err)
}
