package reservationRepo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the reservation indexes. The (menteeId, idempotencyKey) index
// is what makes Create idempotent under concurrent retries.
func (repo *MongoReservationRepo) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_id"),
		},
		{
			Keys:    bson.D{{Key: "menteeId", Value: 1}, {Key: "idempotencyKey", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("mentee_idempotency_key"),
		},
		{
			Keys: bson.D{{Key: "checkoutHandle", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("checkout_handle").
				SetPartialFilterExpression(bson.M{"checkoutHandle": bson.M{"$type": "string"}}),
		},
		{
			Keys:    bson.D{{Key: "mentorId", Value: 1}, {Key: "status", Value: 1}, {Key: "startUtc", Value: 1}},
			Options: options.Index().SetName("mentor_status_start_idx"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "expiresAt", Value: 1}},
			Options: options.Index().SetName("status_expires_idx"),
		},
	}

	if _, err := repo.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create reservation indexes: %w", err)
	}
	return nil
}
