package schedulerRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mentorbook/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSchedulerRepo implements SchedulerRepository using MongoDB.
type MongoSchedulerRepo struct {
	client      *mongo.Client
	sessionColl *mongo.Collection
	lockColl    *mongo.Collection
}

// NewMongoSchedulerRepo constructs a new instance of MongoSchedulerRepo.
func NewMongoSchedulerRepo(db *mongo.Database) *MongoSchedulerRepo {
	return &MongoSchedulerRepo{
		client:      db.Client(),
		sessionColl: db.Collection("sessions"),
		lockColl:    db.Collection("mentor_locks"),
	}
}

// FindOverlappingSessions uses the half-open test start < end' && end > start'.
func (repo *MongoSchedulerRepo) FindOverlappingSessions(ctx context.Context, mentorID string, start, end time.Time) ([]models.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"mentorId": mentorID,
		"status":   bson.M{"$in": models.ActiveSessionStatuses},
		"startUtc": bson.M{"$lt": end},
		"endUtc":   bson.M{"$gt": start},
	}
	cursor, err := repo.sessionColl.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "startUtc", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("error finding overlapping sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []models.Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("error decoding sessions: %w", err)
	}
	return sessions, nil
}

// InsertSession inserts a new session document.
func (repo *MongoSchedulerRepo) InsertSession(ctx context.Context, s *models.Session) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := repo.sessionColl.InsertOne(ctx, s); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateSession
		}
		return fmt.Errorf("error creating session: %w", err)
	}
	return nil
}

func (repo *MongoSchedulerRepo) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return repo.findOne(ctx, bson.M{"id": id})
}

func (repo *MongoSchedulerRepo) GetSessionByReservation(ctx context.Context, reservationID string) (*models.Session, error) {
	return repo.findOne(ctx, bson.M{"reservationId": reservationID})
}

func (repo *MongoSchedulerRepo) findOne(ctx context.Context, filter bson.M) (*models.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var s models.Session
	err := repo.sessionColl.FindOne(ctx, filter).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching session: %w", err)
	}
	return &s, nil
}
