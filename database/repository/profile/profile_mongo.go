package profileRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mentorbook/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoProfileRepo implements ProfileRepository using MongoDB.
type MongoProfileRepo struct {
	mentees  *mongo.Collection
	mentors  *mongo.Collection
	services *mongo.Collection
}

// NewMongoProfileRepo creates a new instance of ProfileRepository using MongoDB.
func NewMongoProfileRepo(db *mongo.Database) *MongoProfileRepo {
	return &MongoProfileRepo{
		mentees:  db.Collection("mentees"),
		mentors:  db.Collection("mentors"),
		services: db.Collection("services"),
	}
}

// newContext derives a bounded context. Deriving from the caller keeps an
// enclosing transaction session attached.
func newContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

func (r *MongoProfileRepo) GetMentee(ctx context.Context, id string) (*models.Mentee, error) {
	var mentee models.Mentee
	if err := r.findOne(ctx, r.mentees, id, &mentee); err != nil {
		return nil, fmt.Errorf("error fetching mentee %s: %w", id, err)
	}
	return &mentee, nil
}

func (r *MongoProfileRepo) GetMentor(ctx context.Context, id string) (*models.Mentor, error) {
	var mentor models.Mentor
	if err := r.findOne(ctx, r.mentors, id, &mentor); err != nil {
		return nil, fmt.Errorf("error fetching mentor %s: %w", id, err)
	}
	return &mentor, nil
}

func (r *MongoProfileRepo) GetService(ctx context.Context, id string) (*models.Service, error) {
	var service models.Service
	if err := r.findOne(ctx, r.services, id, &service); err != nil {
		return nil, fmt.Errorf("error fetching service %s: %w", id, err)
	}
	return &service, nil
}

func (r *MongoProfileRepo) findOne(ctx context.Context, coll *mongo.Collection, id string, out interface{}) error {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	err := coll.FindOne(ctx, bson.M{"id": id}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}
