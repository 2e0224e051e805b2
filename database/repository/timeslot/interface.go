// File: database/repository/timeslot/interface.go
package timeslotRepo

import (
	"context"

	"mentorbook/models"

	"go.mongodb.org/mongo-driver/mongo"
)

// TimeSlotRepository reads the mentor availability grid. It never writes during booking;
// slot consumption is derived from overlapping sessions.
type TimeSlotRepository interface {
	GetByMentorAndDate(ctx context.Context, mentorID, date string) ([]models.AvailabilitySlot, error)
	GetAvailableInRange(ctx context.Context, mentorID, fromDate, toDate string) ([]models.AvailabilitySlot, error)
}

// MongoTimeSlotRepo implements TimeSlotRepository using MongoDB.
type MongoTimeSlotRepo struct {
	coll *mongo.Collection
}

// NewMongoTimeSlotRepo constructs a new MongoDB TimeSlotRepository.
func NewMongoTimeSlotRepo(db *mongo.Database) *MongoTimeSlotRepo {
	return &MongoTimeSlotRepo{
		coll: db.Collection("availability"),
	}
}
