package models

import "time"

// SessionDetails is the public shape of a confirmed booking.
type SessionDetails struct {
	SessionID       string    `json:"sessionID"`
	SessionDate     time.Time `json:"sessionDate"`
	Status          string    `json:"status"`
	PaymentStatus   string    `json:"paymentStatus"`
	MentorName      string    `json:"mentorName"`
	ServiceTitle    string    `json:"serviceTitle"`
	Price           int64     `json:"price"`
	Currency        string    `json:"currency,omitempty"`
	DurationMinutes int       `json:"durationMinutes"`
}

// ReservationView is what status polls observe.
type ReservationView struct {
	ReservationID  string            `json:"reservationId"`
	MenteeID       string            `json:"-"`
	Status         ReservationStatus `json:"status"`
	CheckoutHandle string            `json:"checkoutHandle,omitempty"`
	CheckoutURL    string            `json:"checkoutUrl,omitempty"`
	ExpiresAt      *time.Time        `json:"expiresAt,omitempty"`
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	FailureCode    string            `json:"failureCode,omitempty"`
	Session        *SessionDetails   `json:"session,omitempty"`
}

// NewReservationView projects r without session details.
func NewReservationView(r *Reservation) *ReservationView {
	v := &ReservationView{
		ReservationID:  r.ID,
		MenteeID:       r.MenteeID,
		Status:         r.Status,
		CheckoutHandle: r.CheckoutHandle,
		CheckoutURL:    r.CheckoutURL,
		Amount:         r.AmountCents,
		Currency:       r.Currency,
		FailureCode:    r.FailureCode,
	}
	if r.Status.Claims() && !r.ExpiresAt.IsZero() {
		exp := r.ExpiresAt
		v.ExpiresAt = &exp
	}
	return v
}

// ConflictResult is the outcome of a conflict check for one candidate window.
type ConflictResult struct {
	Available                 bool     `json:"available"`
	Code                      string   `json:"code,omitempty"`
	ConflictingSessionIDs     []string `json:"conflictingSessionIds"`
	ConflictingReservationIDs []string `json:"conflictingReservationIds,omitempty"`
}
