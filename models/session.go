package models

import "time"

type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionConfirmed SessionStatus = "confirmed"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// ActiveSessionStatuses are the statuses that occupy a mentor's calendar.
var ActiveSessionStatuses = []SessionStatus{SessionScheduled, SessionConfirmed}

const (
	PaymentStatusPaid = "paid"
	PaymentStatusFree = "free"
)

// Session is the confirmed, billable mentorship appointment.
type Session struct {
	ID              string            `bson:"id" json:"id"`
	ReservationID   string            `bson:"reservationId,omitempty" json:"reservationId,omitempty"`
	MenteeID        string            `bson:"menteeId" json:"menteeId"`
	MentorID        string            `bson:"mentorId" json:"mentorId"`
	ServiceID       string            `bson:"serviceId" json:"serviceId"`
	StartUTC        time.Time         `bson:"startUtc" json:"startUtc"`
	EndUTC          time.Time         `bson:"endUtc" json:"endUtc"`
	DurationMinutes int               `bson:"durationMinutes" json:"durationMinutes"`
	PricePaidCents  int64             `bson:"pricePaidCents" json:"pricePaidCents"`
	Currency        string            `bson:"currency" json:"currency"`
	PaymentStatus   string            `bson:"paymentStatus" json:"paymentStatus"`
	Status          SessionStatus     `bson:"status" json:"status"`
	Metadata        map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt       time.Time         `bson:"createdAt" json:"createdAt"`
}

// IsActive reports whether the session still occupies its window.
func (s *Session) IsActive() bool {
	return s.Status == SessionScheduled || s.Status == SessionConfirmed
}
