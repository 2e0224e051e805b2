package models

import "time"

// ReservationStatus is the lifecycle state of a Reservation.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationHeld      ReservationStatus = "held"
	ReservationPaid      ReservationStatus = "paid"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationExpired   ReservationStatus = "expired"
	ReservationCancelled ReservationStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s ReservationStatus) IsTerminal() bool {
	switch s {
	case ReservationConfirmed, ReservationExpired, ReservationCancelled:
		return true
	}
	return false
}

// Claims reports whether a reservation in this status holds its time window.
func (s ReservationStatus) Claims() bool {
	return s == ReservationHeld || s == ReservationPaid
}

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationPending: {ReservationHeld, ReservationCancelled},
	ReservationHeld:    {ReservationPaid, ReservationExpired, ReservationCancelled},
	ReservationPaid:    {ReservationConfirmed, ReservationExpired},
}

// CanTransition reports whether from -> to is an edge of the reservation state machine.
func CanTransition(from, to ReservationStatus) bool {
	for _, next := range reservationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Reservation is a claim on a mentor's time window that progresses through a
// payment-linked lifecycle before becoming a Session.
type Reservation struct {
	ID              string            `bson:"id" json:"id"`
	IdempotencyKey  string            `bson:"idempotencyKey" json:"idempotencyKey"` // unique per mentee
	MenteeID        string            `bson:"menteeId" json:"menteeId"`
	MentorID        string            `bson:"mentorId" json:"mentorId"`
	ServiceID       string            `bson:"serviceId" json:"serviceId"`
	StartUTC        time.Time         `bson:"startUtc" json:"startUtc"`
	DurationMinutes int               `bson:"durationMinutes" json:"durationMinutes"`
	AmountCents     int64             `bson:"amountCents" json:"amountCents"` // resolved from the service, never from the client
	Currency        string            `bson:"currency" json:"currency"`
	Metadata        map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Status          ReservationStatus `bson:"status" json:"status"`
	CheckoutHandle  string            `bson:"checkoutHandle,omitempty" json:"checkoutHandle,omitempty"`
	CheckoutURL     string            `bson:"checkoutUrl,omitempty" json:"checkoutUrl,omitempty"`
	SessionID       string            `bson:"sessionId,omitempty" json:"sessionId,omitempty"`
	FailureCode     string            `bson:"failureCode,omitempty" json:"failureCode,omitempty"`
	CorrelationID   string            `bson:"correlationId,omitempty" json:"correlationId,omitempty"`
	ExpiresAt       time.Time         `bson:"expiresAt,omitempty" json:"expiresAt,omitempty"` // claim deadline while held/paid
	CreatedAt       time.Time         `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time         `bson:"updatedAt" json:"updatedAt"`
}

// EndUTC is the exclusive end of the reserved window.
func (r *Reservation) EndUTC() time.Time {
	return r.StartUTC.Add(time.Duration(r.DurationMinutes) * time.Minute)
}

// ClaimActive reports whether r blocks its window at instant now.
func (r *Reservation) ClaimActive(now time.Time) bool {
	return r.Status.Claims() && r.ExpiresAt.After(now)
}

// ReservationPatch carries the optional fields written alongside a status transition.
// Zero values are left untouched.
type ReservationPatch struct {
	CheckoutHandle string
	CheckoutURL    string
	SessionID      string
	FailureCode    string
	ExpiresAt      time.Time
}
