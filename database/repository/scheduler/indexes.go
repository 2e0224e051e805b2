package schedulerRepo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the session indexes. The partial unique index on
// reservationId is the storage-level guard against a second session per reservation.
func (repo *MongoSchedulerRepo) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_id"),
		},
		{
			Keys: bson.D{{Key: "reservationId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_reservation").
				SetPartialFilterExpression(bson.M{"reservationId": bson.M{"$type": "string"}}),
		},
		{
			Keys:    bson.D{{Key: "mentorId", Value: 1}, {Key: "status", Value: 1}, {Key: "startUtc", Value: 1}, {Key: "endUtc", Value: 1}},
			Options: options.Index().SetName("mentor_status_window_idx"),
		},
	}

	if _, err := repo.sessionColl.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}
	return nil
}
