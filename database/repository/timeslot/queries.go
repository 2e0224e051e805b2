// File: database/repository/timeslot/queries.go
package timeslotRepo

import (
	"context"
	"fmt"
	"time"

	"mentorbook/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GetByMentorAndDate returns every slot of the mentor on date, available or not,
// ordered by start minute.
func (repo *MongoTimeSlotRepo) GetByMentorAndDate(ctx context.Context, mentorID, date string) ([]models.AvailabilitySlot, error) {
	return repo.find(ctx, bson.M{
		"mentorId": mentorID,
		"date":     date,
	})
}

// GetAvailableInRange returns available slots with fromDate <= date <= toDate ordered
// chronologically.
func (repo *MongoTimeSlotRepo) GetAvailableInRange(ctx context.Context, mentorID, fromDate, toDate string) ([]models.AvailabilitySlot, error) {
	return repo.find(ctx, bson.M{
		"mentorId":    mentorID,
		"date":        bson.M{"$gte": fromDate, "$lte": toDate},
		"isAvailable": true,
	})
}

func (repo *MongoTimeSlotRepo) find(ctx context.Context, filter bson.M) ([]models.AvailabilitySlot, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "startMinute", Value: 1}})
	cursor, err := repo.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch availability: %w", err)
	}
	defer cursor.Close(ctx)

	var slots []models.AvailabilitySlot
	if err := cursor.All(ctx, &slots); err != nil {
		return nil, fmt.Errorf("error decoding availability: %w", err)
	}
	return slots, nil
}
