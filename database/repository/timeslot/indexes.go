// FILE: database/repository/timeslot/indexes.go
package timeslotRepo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the necessary indexes on the availability collection.
func (r *MongoTimeSlotRepo) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_id"),
		},
		// Primary query pattern: one mentor, one date, ordered by start.
		{
			Keys:    bson.D{{Key: "mentorId", Value: 1}, {Key: "date", Value: 1}, {Key: "startMinute", Value: 1}},
			Options: options.Index().SetName("mentor_date_start_idx"),
		},
		{
			Keys:    bson.D{{Key: "mentorId", Value: 1}, {Key: "isAvailable", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetName("mentor_available_date_idx"),
		},
	}

	_, err := r.coll.Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		return fmt.Errorf("failed to create availability indexes: %w", err)
	}
	return nil
}
