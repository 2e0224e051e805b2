package booking

import (
	"context"
	"sort"
	"time"

	reservationRepo "mentorbook/database/repository/reservation"
	"mentorbook/models"

	"go.uber.org/zap"
)

type interval struct {
	start, end time.Time
}

// SuggestAlternatives lists open windows near the requested one: the same date first,
// then SuggestionDays forward, in chronological order, at most SuggestionLimit entries.
// Reads happen outside the mentor lock, so the list is advisory.
func (se *DefaultSchedulingEngine) SuggestAlternatives(ctx context.Context, mentorID string, requested time.Time, durationMinutes int) []models.SlotSuggestion {
	if se.SuggestionLimit <= 0 || durationMinutes <= 0 {
		return nil
	}
	requested = requested.UTC()
	day := time.Date(requested.Year(), requested.Month(), requested.Day(), 0, 0, 0, 0, time.UTC)
	horizon := day.AddDate(0, 0, se.SuggestionDays+1)
	duration := time.Duration(durationMinutes) * time.Minute
	log := se.logger().With(zap.String("mentor_id", mentorID))

	slots, err := se.Timeslots.GetAvailableInRange(ctx, mentorID,
		day.Format(models.DateLayout), day.AddDate(0, 0, se.SuggestionDays).Format(models.DateLayout))
	if err != nil {
		log.Warn("suggestions: availability lookup failed", zap.Error(err))
		return nil
	}

	now := se.now()
	busy, err := se.busyIntervals(ctx, mentorID, day, horizon, now)
	if err != nil {
		log.Warn("suggestions: busy lookup failed", zap.Error(err))
		return nil
	}

	seen := make(map[int64]bool)
	var candidates []models.SlotSuggestion
	for _, slot := range slots {
		if !slot.IsAvailable {
			continue
		}
		slotStart, err := slot.Start()
		if err != nil {
			continue
		}
		for m := slot.StartMinute; m+durationMinutes <= slot.EndMinute; m += durationMinutes {
			start := slotStart.Add(time.Duration(m-slot.StartMinute) * time.Minute)
			end := start.Add(duration)
			if !start.After(now) || start.Equal(requested) || seen[start.Unix()] {
				continue
			}
			if overlapsAny(busy, start, end) {
				continue
			}
			seen[start.Unix()] = true
			candidates = append(candidates, models.SlotSuggestion{
				StartUTC:        start,
				EndUTC:          end,
				Date:            start.Format(models.DateLayout),
				DurationMinutes: durationMinutes,
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].StartUTC.Before(candidates[j].StartUTC)
	})
	if len(candidates) > se.SuggestionLimit {
		candidates = candidates[:se.SuggestionLimit]
	}
	return candidates
}

func (se *DefaultSchedulingEngine) busyIntervals(ctx context.Context, mentorID string, from, to, now time.Time) ([]interval, error) {
	sessions, err := se.Scheduler.FindOverlappingSessions(ctx, mentorID, from, to)
	if err != nil {
		return nil, err
	}
	claims, err := se.Reservations.FindActiveClaims(ctx, mentorID, from, to, now, "")
	if err != nil {
		return nil, err
	}

	busy := make([]interval, 0, len(sessions)+len(claims))
	for _, s := range sessions {
		busy = append(busy, interval{s.StartUTC, s.EndUTC})
	}
	for _, r := range claims {
		busy = append(busy, interval{r.StartUTC, r.EndUTC()})
	}
	return busy, nil
}

func overlapsAny(busy []interval, start, end time.Time) bool {
	for _, b := range busy {
		if reservationRepo.Overlaps(b.start, b.end, start, end) {
			return true
		}
	}
	return false
}
