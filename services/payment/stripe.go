package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mentorbook/services/booking"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

// Checkout Sessions must expire between 30 minutes and 24 hours after creation.
const (
	minCheckoutLifetime = 31 * time.Minute
	maxCheckoutLifetime = 24 * time.Hour
)

// StripeConfig configures the Stripe Checkout adapter.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	// BackendURL overrides the API endpoint (used against stripe-mock).
	BackendURL string
}

// StripeGateway implements booking.PaymentGateway and booking.WebhookVerifier on
// Stripe Checkout Sessions.
type StripeGateway struct {
	api    *client.API
	cfg    StripeConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewStripeGateway(cfg StripeConfig, logger *zap.Logger) *StripeGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	// Retries are driven by the booking service with a fixed idempotency key.
	backendCfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if cfg.BackendURL != "" {
		backendCfg.URL = stripe.String(cfg.BackendURL)
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackend(stripe.ConnectBackend),
		Uploads: stripe.GetBackend(stripe.UploadsBackend),
	}
	return &StripeGateway{
		api:    client.New(cfg.SecretKey, backends),
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (g *StripeGateway) CreateCheckout(ctx context.Context, req booking.CheckoutRequest) (*booking.Checkout, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.ReservationID),
		SuccessURL:        stripe.String(withReservation(g.cfg.SuccessURL, req.ReservationID)),
		CancelURL:         stripe.String(withReservation(g.cfg.CancelURL, req.ReservationID)),
		ExpiresAt:         stripe.Int64(g.checkoutExpiry(req.ExpiresAt).Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.AddMetadata("reservationId", req.ReservationID)
	params.AddMetadata("menteeId", req.MenteeID)

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, mapStripeError("create checkout", err)
	}
	g.logger.Debug("stripe: checkout session created", zap.String("checkout", sess.ID), zap.String("reservation_id", req.ReservationID))
	return toCheckout(sess), nil
}

func (g *StripeGateway) GetCheckout(ctx context.Context, handle string) (*booking.Checkout, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := g.api.CheckoutSessions.Get(handle, params)
	if err != nil {
		return nil, mapStripeError("get checkout", err)
	}
	return toCheckout(sess), nil
}

// ExpireCheckout closes an open session. Sessions that are no longer open are left as is.
func (g *StripeGateway) ExpireCheckout(ctx context.Context, handle string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	_, err := g.api.CheckoutSessions.Expire(handle, params)
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusBadRequest {
		g.logger.Debug("stripe: session not open, nothing to expire", zap.String("checkout", handle))
		return nil
	}
	return mapStripeError("expire checkout", err)
}

// ParseEvent verifies the Stripe-Signature header and maps checkout events.
func (g *StripeGateway) ParseEvent(payload []byte, signatureHeader string) (*booking.GatewayEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &booking.GatewayEvent{ID: event.ID, Type: booking.EventIgnored}
	eventType := string(event.Type)
	if !strings.HasPrefix(eventType, "checkout.session.") || event.Data == nil {
		return out, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("decode checkout session from event %s: %w", event.ID, err)
	}
	out.CheckoutHandle = sess.ID
	out.ReservationID = sess.ClientReferenceID
	if out.ReservationID == "" {
		out.ReservationID = sess.Metadata["reservationId"]
	}

	switch eventType {
	case "checkout.session.completed":
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			out.Type = booking.EventPaid
		}
	case "checkout.session.async_payment_succeeded":
		out.Type = booking.EventPaid
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		out.Type = booking.EventExpired
	}
	return out, nil
}

// checkoutExpiry clamps the reservation deadline into the window Stripe accepts.
func (g *StripeGateway) checkoutExpiry(at time.Time) time.Time {
	now := g.now()
	if lo := now.Add(minCheckoutLifetime); at.Before(lo) {
		return lo
	}
	if hi := now.Add(maxCheckoutLifetime); at.After(hi) {
		return hi
	}
	return at
}

func toCheckout(sess *stripe.CheckoutSession) *booking.Checkout {
	return &booking.Checkout{Handle: sess.ID, URL: sess.URL, Status: checkoutStatus(sess)}
}

func checkoutStatus(sess *stripe.CheckoutSession) booking.CheckoutStatus {
	switch {
	case sess.Status == stripe.CheckoutSessionStatusComplete &&
		sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return booking.CheckoutPaid
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		return booking.CheckoutExpired
	default:
		return booking.CheckoutOpen
	}
}

// mapStripeError classifies Stripe failures into the booking gateway sentinels.
func mapStripeError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("stripe %s: %w", op, err)
	}
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		// Transport failure: the request may or may not have landed.
		return fmt.Errorf("stripe %s: %w: %v", op, booking.ErrGatewayTransient, err)
	}
	switch {
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("stripe %s: %w: %s", op, booking.ErrGatewayTransient, stripeErr.Msg)
	case stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing:
		return fmt.Errorf("stripe %s: %w", op, booking.ErrCheckoutNotFound)
	}
	return fmt.Errorf("stripe %s: %w", op, err)
}

func withReservation(url, reservationID string) string {
	return strings.ReplaceAll(url, "{RESERVATION_ID}", reservationID)
}
