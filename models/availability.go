package models

import "time"

// MaxSessionMinutes bounds a single booking; it also bounds overlap lookback queries.
const MaxSessionMinutes = 8 * 60

// DateLayout is the calendar-date format used for availability documents.
const DateLayout = "2006-01-02"

// AvailabilitySlot is one bookable window in a mentor's grid for a UTC calendar date.
type AvailabilitySlot struct {
	ID          string `bson:"id" json:"id"`
	MentorID    string `bson:"mentorId" json:"mentorId"`
	Date        string `bson:"date" json:"date"`               // "YYYY-MM-DD", UTC
	StartMinute int    `bson:"startMinute" json:"startMinute"` // minutes from UTC midnight
	EndMinute   int    `bson:"endMinute" json:"endMinute"`     // exclusive
	IsAvailable bool   `bson:"isAvailable" json:"isAvailable"`
}

// Start returns the absolute start instant of the slot.
func (s AvailabilitySlot) Start() (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, s.Date, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(time.Duration(s.StartMinute) * time.Minute), nil
}

// Contains reports whether [startMinute, startMinute+duration) fits inside the slot.
func (s AvailabilitySlot) Contains(startMinute, durationMinutes int) bool {
	return s.StartMinute <= startMinute && startMinute+durationMinutes <= s.EndMinute
}

// SlotSuggestion is an alternative start offered after a conflict.
type SlotSuggestion struct {
	StartUTC        time.Time `json:"startUtc"`
	EndUTC          time.Time `json:"endUtc"`
	Date            string    `json:"date"`
	DurationMinutes int       `json:"durationMinutes"`
}
