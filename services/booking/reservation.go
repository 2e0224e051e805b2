package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	reservationRepo "mentorbook/database/repository/reservation"
	"mentorbook/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReservationConfig holds the reservation engine tunables.
type ReservationConfig struct {
	TTL                time.Duration
	PaidGrace          time.Duration
	GatewayMaxAttempts int
	GatewayBaseBackoff time.Duration
	DefaultCurrency    string
}

// DefaultBookingService implements BookingService on top of the scheduling engine.
type DefaultBookingService struct {
	Engine  *DefaultSchedulingEngine
	Gateway PaymentGateway
	Expiry  ExpiryScheduler
	Cache   StatusCache
	Config  ReservationConfig
	Logger  *zap.Logger
}

func (s *DefaultBookingService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// Reserve records a booking attempt, obtains a checkout and claims the window.
// Re-submitting the same idempotency key resumes or replays the original attempt.
func (s *DefaultBookingService) Reserve(ctx context.Context, req ReserveRequest) (*ReserveResult, error) {
	req.StartUTC = req.StartUTC.UTC()
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if err := s.validateReserve(req); err != nil {
		return nil, err
	}
	log := s.logger().With(
		zap.String("request_id", req.CorrelationID),
		zap.String("mentee_id", req.MenteeID),
		zap.String("mentor_id", req.MentorID),
	)

	// Step 1: idempotent replay.
	if req.IdempotencyKey != "" {
		existing, err := s.Engine.Reservations.GetByIdempotencyKey(ctx, req.MenteeID, req.IdempotencyKey)
		switch {
		case err == nil:
			log.Info("reserve: idempotency key matched", zap.String("reservation_id", existing.ID), zap.String("status", string(existing.Status)))
			return s.resume(ctx, existing, req)
		case !errors.Is(err, reservationRepo.ErrNotFound):
			return nil, wrapError(CodeInternalError, "internal error", err)
		}
	} else {
		req.IdempotencyKey = uuid.NewString()
	}

	// Step 2: parties and server-side price.
	service, err := s.Engine.resolveParties(ctx, req.MenteeID, req.MentorID, req.ServiceID, req.DurationMinutes)
	if err != nil {
		return nil, AsBookingError(err, CodeInternalError)
	}

	// Step 3: ledger entry.
	now := s.Engine.now()
	currency := strings.ToLower(service.Currency)
	if currency == "" {
		currency = s.Config.DefaultCurrency
	}
	res := &models.Reservation{
		ID:              uuid.NewString(),
		IdempotencyKey:  req.IdempotencyKey,
		MenteeID:        req.MenteeID,
		MentorID:        req.MentorID,
		ServiceID:       req.ServiceID,
		StartUTC:        req.StartUTC,
		DurationMinutes: req.DurationMinutes,
		AmountCents:     service.PriceCents,
		Currency:        currency,
		Metadata:        req.Metadata,
		Status:          models.ReservationPending,
		CorrelationID:   req.CorrelationID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	stored, created, err := s.Engine.Reservations.Create(ctx, res)
	if err != nil {
		return nil, wrapError(CodeInternalError, "internal error", err)
	}
	if !created {
		// A concurrent retry with the same key won the insert.
		return s.resume(ctx, stored, req)
	}
	log.Info("reserve: reservation created", zap.String("reservation_id", stored.ID), zap.Int64("amount", stored.AmountCents))

	return s.advancePending(ctx, stored)
}

// advancePending moves a pending reservation to held, and for free services straight
// on to confirmed.
func (s *DefaultBookingService) advancePending(ctx context.Context, res *models.Reservation) (*ReserveResult, error) {
	log := s.logger().With(zap.String("reservation_id", res.ID))

	// Step 4: advisory pre-check, so a doomed attempt never reaches the gateway.
	conflict, err := s.Engine.CheckConflict(ctx, res.MentorID, res.StartUTC, res.DurationMinutes, res.ID)
	if err != nil {
		return nil, wrapError(CodeInternalError, "internal error", err)
	}
	if !conflict.Available {
		return nil, s.failPending(ctx, res, conflictError(conflict))
	}

	// Step 5: checkout for paid services.
	expiresAt := s.Engine.now().Add(s.Config.TTL)
	var checkout *Checkout
	if res.AmountCents > 0 {
		checkout, err = s.CreateOrReuseCheckout(ctx, res, expiresAt)
		if err != nil {
			return s.pendingFailure(ctx, res, err)
		}
	}

	// Step 6: claim the window under the mentor lock.
	held, err := s.hold(ctx, res, expiresAt)
	if err != nil {
		be := AsBookingError(err, CodeBookingFailed)
		if be.IsConflict() {
			log.Info("reserve: lost the window while checking out", zap.String("code", string(be.Code)))
			if checkout != nil {
				s.expireCheckout(ctx, checkout.Handle)
			}
			return nil, s.failPending(ctx, res, be)
		}
		return s.pendingFailure(ctx, res, err)
	}
	log.Info("reserve: window held", zap.Time("expires_at", held.ExpiresAt))

	// Step 7: expiry timer. The periodic sweep covers a failed enqueue.
	if s.Expiry != nil {
		if err := s.Expiry.ScheduleExpiry(ctx, held.ID, held.ExpiresAt); err != nil {
			log.Warn("reserve: could not schedule expiry", zap.Error(err))
		}
	}

	if held.AmountCents == 0 || (checkout != nil && checkout.Status == CheckoutPaid) {
		return s.confirmResult(ctx, held)
	}
	return &ReserveResult{Reservation: held}, nil
}

// hold re-runs the conflict check under the lock and moves pending -> held.
func (s *DefaultBookingService) hold(ctx context.Context, res *models.Reservation, expiresAt time.Time) (*models.Reservation, error) {
	var held *models.Reservation
	err := s.Engine.Scheduler.WithMentorLock(ctx, res.MentorID, func(txCtx context.Context) error {
		held = nil
		conflict, err := s.Engine.CheckConflict(txCtx, res.MentorID, res.StartUTC, res.DurationMinutes, res.ID)
		if err != nil {
			return err
		}
		if !conflict.Available {
			return conflictError(conflict)
		}
		patch := models.ReservationPatch{
			CheckoutHandle: res.CheckoutHandle,
			CheckoutURL:    res.CheckoutURL,
			ExpiresAt:      expiresAt,
		}
		r, err := s.Engine.Reservations.Transition(txCtx, res.ID,
			[]models.ReservationStatus{models.ReservationPending}, models.ReservationHeld, patch)
		if err != nil {
			return err
		}
		held = r
		return nil
	})
	return held, err
}

// failPending cancels the attempt with the conflict code so a replay of the same key
// reports the same outcome, and attaches alternatives.
func (s *DefaultBookingService) failPending(ctx context.Context, res *models.Reservation, be *BookingError) *BookingError {
	patch := models.ReservationPatch{FailureCode: string(be.Code)}
	if _, err := s.Engine.Reservations.Transition(ctx, res.ID,
		[]models.ReservationStatus{models.ReservationPending}, models.ReservationCancelled, patch); err != nil {
		s.logger().Warn("reserve: could not record failed attempt", zap.String("reservation_id", res.ID), zap.Error(err))
	}
	if be.IsConflict() && be.Alternatives == nil {
		be.Alternatives = s.Engine.SuggestAlternatives(ctx, res.MentorID, res.StartUTC, res.DurationMinutes)
	}
	return be
}

// pendingFailure handles errors that leave the reservation pending. A lost race on the
// pending edge means a concurrent retry already advanced it; that outcome is replayed.
func (s *DefaultBookingService) pendingFailure(ctx context.Context, res *models.Reservation, err error) (*ReserveResult, error) {
	if errors.Is(err, reservationRepo.ErrStaleTransition) {
		current, getErr := s.Engine.Reservations.GetByID(ctx, res.ID)
		if getErr == nil && current.Status != models.ReservationPending {
			return s.replay(ctx, current)
		}
	}
	be := AsBookingError(err, CodeBookingFailed)
	if be.HTTPStatus() >= 500 {
		s.logger().Error("reserve: attempt left pending", zap.String("reservation_id", res.ID), zap.Error(err))
	}
	return nil, be
}

// resume handles a resubmitted idempotency key.
func (s *DefaultBookingService) resume(ctx context.Context, existing *models.Reservation, req ReserveRequest) (*ReserveResult, error) {
	if !sameAttempt(existing, req) {
		return nil, invalidRequest("idempotency key %q was already used for a different booking", req.IdempotencyKey)
	}
	if existing.Status == models.ReservationPending {
		result, err := s.advancePending(ctx, existing)
		if result != nil {
			result.Replayed = true
		}
		return result, err
	}
	return s.replay(ctx, existing)
}

// replay returns the outcome of an attempt that already left pending.
func (s *DefaultBookingService) replay(ctx context.Context, res *models.Reservation) (*ReserveResult, error) {
	switch res.Status {
	case models.ReservationHeld:
		// Same checkout handle unless the gateway already settled it.
		current, err := s.reconcileHeld(ctx, res)
		if err != nil {
			return nil, err
		}
		if current.Status != models.ReservationHeld {
			return s.replay(ctx, current)
		}
		return &ReserveResult{Reservation: current, Replayed: true}, nil
	case models.ReservationPaid, models.ReservationConfirmed:
		result, err := s.confirmResult(ctx, res)
		if result != nil {
			result.Replayed = true
		}
		return result, err
	case models.ReservationCancelled:
		if code := ErrorCode(res.FailureCode); code != "" {
			be := newError(code, "this booking attempt already failed")
			if IsConflictCode(code) {
				be = conflictError(&models.ConflictResult{Code: res.FailureCode})
				be.Alternatives = s.Engine.SuggestAlternatives(ctx, res.MentorID, res.StartUTC, res.DurationMinutes)
			}
			return nil, be
		}
	}
	return &ReserveResult{Reservation: res, Replayed: true}, nil
}

// confirmResult drives a held/paid reservation to confirmed and renders it.
func (s *DefaultBookingService) confirmResult(ctx context.Context, res *models.Reservation) (*ReserveResult, error) {
	confirmed, _, err := s.advance(ctx, res)
	if err != nil {
		return nil, AsBookingError(err, CodeBookingFailed)
	}
	details, err := s.sessionDetails(ctx, confirmed)
	if err != nil {
		return nil, wrapError(CodeInternalError, "internal error", err)
	}
	return &ReserveResult{Reservation: confirmed, Session: details}, nil
}

// Cancel withdraws a pending or held reservation owned by menteeID.
func (s *DefaultBookingService) Cancel(ctx context.Context, menteeID, reservationID string) (*models.ReservationView, error) {
	res, err := s.loadOwned(ctx, menteeID, reservationID)
	if err != nil {
		return nil, err
	}
	switch res.Status {
	case models.ReservationHeld:
		// The checkout is closed before the reservation so no payment can land on a
		// cancelled reservation. A payment that already went through wins.
		if res, err = s.closeCheckoutForCancel(ctx, res); err != nil {
			return nil, err
		}
	case models.ReservationPending:
		s.expireCheckout(ctx, res.CheckoutHandle)
	}
	if res.Status != models.ReservationPending && res.Status != models.ReservationHeld {
		return nil, invalidTransition(res, "cancelled")
	}

	cancelled, err := s.Engine.Reservations.Transition(ctx, res.ID,
		[]models.ReservationStatus{models.ReservationPending, models.ReservationHeld},
		models.ReservationCancelled, models.ReservationPatch{})
	if errors.Is(err, reservationRepo.ErrStaleTransition) {
		current, getErr := s.Engine.Reservations.GetByID(ctx, res.ID)
		if getErr != nil {
			return nil, wrapError(CodeInternalError, "internal error", getErr)
		}
		return nil, invalidTransition(current, "cancelled")
	}
	if err != nil {
		return nil, wrapError(CodeInternalError, "internal error", err)
	}
	s.logger().Info("cancel: reservation cancelled", zap.String("reservation_id", cancelled.ID))

	view := models.NewReservationView(cancelled)
	if s.Cache != nil {
		s.Cache.Set(ctx, view)
	}
	return view, nil
}

// closeCheckoutForCancel expires a held reservation's checkout and then asks the
// gateway whether it was paid first. A paid checkout advances the reservation, which
// the caller then reports as no longer cancellable.
func (s *DefaultBookingService) closeCheckoutForCancel(ctx context.Context, res *models.Reservation) (*models.Reservation, error) {
	if res.CheckoutHandle == "" {
		return res, nil
	}
	log := s.logger().With(zap.String("reservation_id", res.ID), zap.String("checkout", res.CheckoutHandle))

	_, err := s.callGateway(ctx, func(ctx context.Context) (*Checkout, error) {
		return nil, s.Gateway.ExpireCheckout(ctx, res.CheckoutHandle)
	})
	if err != nil && !errors.Is(err, ErrCheckoutNotFound) {
		log.Warn("cancel: checkout could not be closed", zap.Error(err))
		return nil, wrapError(CodeGatewayUnavailable, "the payment provider is temporarily unavailable, please retry", err)
	}

	checkout, err := s.callGateway(ctx, func(ctx context.Context) (*Checkout, error) {
		return s.Gateway.GetCheckout(ctx, res.CheckoutHandle)
	})
	if errors.Is(err, ErrCheckoutNotFound) {
		return res, nil
	}
	if err != nil {
		log.Warn("cancel: checkout lookup failed", zap.Error(err))
		return nil, wrapError(CodeGatewayUnavailable, "the payment provider is temporarily unavailable, please retry", err)
	}
	if checkout.Status != CheckoutPaid {
		return res, nil
	}

	log.Info("cancel: checkout was already paid")
	current, _, advErr := s.advance(ctx, res)
	if advErr == nil {
		return current, nil
	}
	log.Warn("cancel: paid checkout could not be confirmed yet", zap.Error(advErr))
	if current, err = s.reload(ctx, res); err != nil {
		return nil, wrapError(CodeInternalError, "internal error", err)
	}
	if current.Status == models.ReservationHeld {
		return nil, AsBookingError(advErr, CodeBookingFailed)
	}
	return current, nil
}

// CheckConflict is the advisory public check; it never claims anything.
func (s *DefaultBookingService) CheckConflict(ctx context.Context, mentorID string, start time.Time, durationMinutes int) (*ConflictReport, error) {
	if _, err := uuid.Parse(mentorID); err != nil {
		return nil, invalidRequest("mentorId must be a UUID")
	}
	start = start.UTC()
	if err := validateWindow(start, durationMinutes); err != nil {
		return nil, err
	}
	result, err := s.Engine.CheckConflict(ctx, mentorID, start, durationMinutes, "")
	if err != nil {
		return nil, wrapError(CodeInternalError, "internal error", err)
	}
	report := &ConflictReport{ConflictResult: *result}
	if !result.Available {
		report.Alternatives = s.Engine.SuggestAlternatives(ctx, mentorID, start, durationMinutes)
	}
	return report, nil
}

func (s *DefaultBookingService) validateReserve(req ReserveRequest) error {
	if _, err := uuid.Parse(req.MenteeID); err != nil {
		return newError(CodeUnauthorized, "missing or malformed mentee identity")
	}
	if _, err := uuid.Parse(req.MentorID); err != nil {
		return invalidRequest("mentorId must be a UUID")
	}
	if _, err := uuid.Parse(req.ServiceID); err != nil {
		return invalidRequest("serviceId must be a UUID")
	}
	if len(req.IdempotencyKey) > 255 {
		return invalidRequest("idempotencyKey is too long")
	}
	if err := validateWindow(req.StartUTC, req.DurationMinutes); err != nil {
		return err
	}
	if !req.StartUTC.After(s.Engine.now()) {
		return invalidRequest("session start %s is in the past", req.StartUTC.Format(time.RFC3339))
	}
	return nil
}

func sameAttempt(r *models.Reservation, req ReserveRequest) bool {
	return r.MentorID == req.MentorID &&
		r.ServiceID == req.ServiceID &&
		r.StartUTC.Equal(req.StartUTC) &&
		r.DurationMinutes == req.DurationMinutes
}
