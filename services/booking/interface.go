package booking

import (
	"context"
	"time"

	"mentorbook/models"
)

// BookingService is the surface the HTTP handlers depend on.
type BookingService interface {
	Reserve(ctx context.Context, req ReserveRequest) (*ReserveResult, error)
	GetStatus(ctx context.Context, menteeID, reservationID string) (*models.ReservationView, error)
	GetStatusByCheckout(ctx context.Context, menteeID, checkoutHandle string) (*models.ReservationView, error)
	Cancel(ctx context.Context, menteeID, reservationID string) (*models.ReservationView, error)
	CheckConflict(ctx context.Context, mentorID string, start time.Time, durationMinutes int) (*ConflictReport, error)
	HandleGatewayEvent(ctx context.Context, event GatewayEvent) error
}

// ReserveRequest is a mentee's booking attempt. The amount is always resolved from the service.
type ReserveRequest struct {
	MenteeID        string
	MentorID        string
	ServiceID       string
	StartUTC        time.Time
	DurationMinutes int
	IdempotencyKey  string
	Metadata        map[string]string
	CorrelationID   string
}

// ReserveResult carries the reservation and, once confirmed, the session details.
type ReserveResult struct {
	Reservation *models.Reservation
	Session     *models.SessionDetails
	// Replayed is true when the idempotency key matched an existing reservation.
	Replayed bool
}

// ConflictReport is the advisory answer of the public conflict endpoint.
type ConflictReport struct {
	models.ConflictResult
	Alternatives []models.SlotSuggestion `json:"alternatives,omitempty"`
}

// AtomicBookingRequest is the input of BookAtomically. ReservationID is optional.
type AtomicBookingRequest struct {
	MenteeID        string
	MentorID        string
	ServiceID       string
	StartUTC        time.Time
	DurationMinutes int
	ReservationID   string
	Metadata        map[string]string
}

// CheckoutStatus is the gateway-side state of a checkout.
type CheckoutStatus string

const (
	CheckoutOpen    CheckoutStatus = "open"
	CheckoutPaid    CheckoutStatus = "paid"
	CheckoutExpired CheckoutStatus = "expired"
)

// CheckoutRequest describes the external transaction to create for a reservation.
type CheckoutRequest struct {
	ReservationID  string
	IdempotencyKey string
	AmountCents    int64
	Currency       string
	Description    string
	MenteeID       string
	ExpiresAt      time.Time
}

type Checkout struct {
	Handle string
	URL    string
	Status CheckoutStatus
}

// PaymentGateway is the external checkout provider.
type PaymentGateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
	GetCheckout(ctx context.Context, handle string) (*Checkout, error)
	ExpireCheckout(ctx context.Context, handle string) error
}

// GatewayEventType classifies verified gateway callbacks.
type GatewayEventType string

const (
	EventPaid    GatewayEventType = "paid"
	EventExpired GatewayEventType = "expired"
	EventIgnored GatewayEventType = "ignored"
)

// GatewayEvent is a verified payment callback.
type GatewayEvent struct {
	ID             string
	Type           GatewayEventType
	CheckoutHandle string
	ReservationID  string
}

// WebhookVerifier authenticates a raw callback and decodes it.
type WebhookVerifier interface {
	ParseEvent(payload []byte, signatureHeader string) (*GatewayEvent, error)
}

// ExpiryScheduler arranges for a reservation to be swept at its claim deadline.
type ExpiryScheduler interface {
	ScheduleExpiry(ctx context.Context, reservationID string, at time.Time) error
}

// StatusCache stores read-backs of terminal reservations.
type StatusCache interface {
	Get(ctx context.Context, reservationID string) (*models.ReservationView, bool)
	Set(ctx context.Context, view *models.ReservationView)
	ReservationIDForHandle(ctx context.Context, handle string) (string, bool)
	RememberHandle(ctx context.Context, handle, reservationID string)
}
