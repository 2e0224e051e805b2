package profileRepo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the lookup indexes on the profile collections.
func (r *MongoProfileRepo) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := newContext(ctx, 10*time.Second)
	defer cancel()

	byID := mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("unique_id"),
	}
	for _, coll := range []*mongo.Collection{r.mentees, r.mentors, r.services} {
		if _, err := coll.Indexes().CreateOne(ctx, byID); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", coll.Name(), err)
		}
	}

	_, err := r.services.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "mentorId", Value: 1}, {Key: "active", Value: 1}},
		Options: options.Index().SetName("mentor_active_idx"),
	})
	if err != nil {
		return fmt.Errorf("failed to create services indexes: %w", err)
	}
	return nil
}
