package booking

import (
	"context"
	"fmt"
	"time"

	"mentorbook/models"
)

// CheckConflict decides whether [start, start+duration) is open for the mentor.
//
// Inside WithMentorLock the answer is authoritative. Everywhere else (the pre-check
// in Reserve, the public conflicts endpoint, suggestions) it is advisory and must be
// re-verified under the lock before anything is written.
func (se *DefaultSchedulingEngine) CheckConflict(
	ctx context.Context,
	mentorID string,
	start time.Time,
	durationMinutes int,
	excludeReservationID string,
) (*models.ConflictResult, error) {
	start = start.UTC()
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	result := &models.ConflictResult{ConflictingSessionIDs: []string{}}

	slots, err := se.Timeslots.GetByMentorAndDate(ctx, mentorID, start.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}
	startMinute := start.Hour()*60 + start.Minute()
	anyAvailable, fits := false, false
	for _, slot := range slots {
		if !slot.IsAvailable {
			continue
		}
		anyAvailable = true
		if slot.Contains(startMinute, durationMinutes) {
			fits = true
			break
		}
	}

	sessions, err := se.Scheduler.FindOverlappingSessions(ctx, mentorID, start, end)
	if err != nil {
		return nil, fmt.Errorf("load overlapping sessions: %w", err)
	}
	for _, s := range sessions {
		result.ConflictingSessionIDs = append(result.ConflictingSessionIDs, s.ID)
	}

	claims, err := se.Reservations.FindActiveClaims(ctx, mentorID, start, end, se.now(), excludeReservationID)
	if err != nil {
		return nil, fmt.Errorf("load active claims: %w", err)
	}
	for _, r := range claims {
		result.ConflictingReservationIDs = append(result.ConflictingReservationIDs, r.ID)
	}

	switch {
	case !anyAvailable:
		result.Code = string(CodeNoAvailability)
	case !fits:
		result.Code = string(CodeSlotUnavailable)
	case len(sessions) > 0 || len(claims) > 0:
		result.Code = string(CodeTimeConflict)
	default:
		result.Available = true
	}
	return result, nil
}

// conflictError turns a negative check into the matching typed error.
func conflictError(result *models.ConflictResult) *BookingError {
	switch ErrorCode(result.Code) {
	case CodeNoAvailability:
		return newError(CodeNoAvailability, "the mentor has no availability on that date")
	case CodeSlotUnavailable:
		return newError(CodeSlotUnavailable, "the requested time is not an open slot")
	default:
		return newError(CodeTimeConflict, "the requested time overlaps another booking")
	}
}
