package models

// Mentee is the booking party. Only the fields the engine reads are mapped.
type Mentee struct {
	ID    string `bson:"id" json:"id"`
	Name  string `bson:"name" json:"name"`
	Email string `bson:"email" json:"email"`
}

type Mentor struct {
	ID     string `bson:"id" json:"id"`
	Name   string `bson:"name" json:"name"`
	Active bool   `bson:"active" json:"active"`
}

// Service is a bookable offering owned by one mentor.
type Service struct {
	ID              string `bson:"id" json:"id"`
	MentorID        string `bson:"mentorId" json:"mentorId"`
	Title           string `bson:"title" json:"title"`
	PriceCents      int64  `bson:"priceCents" json:"priceCents"`
	Currency        string `bson:"currency,omitempty" json:"currency,omitempty"`
	DurationMinutes int    `bson:"durationMinutes" json:"durationMinutes"` // 0 accepts any duration
	Active          bool   `bson:"active" json:"active"`
}
