package reservationRepo

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

// MongoReservationRepo implements ReservationRepository using MongoDB.
type MongoReservationRepo struct {
	coll *mongo.Collection
}

func NewMongoReservationRepo(db *mongo.Database) *MongoReservationRepo {
	return &MongoReservationRepo{coll: db.Collection("reservations")}
}

func (repo *MongoReservationRepo) Create(ctx context.Context, r *models.Reservation) (*models.Reservation, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := repo.coll.InsertOne(ctx, r)
	if err == nil {
		return r, true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return nil, false, fmt.Errorf("error creating reservation: %w", err)
	}

	existing, getErr := repo.GetByIdempotencyKey(ctx, r.MenteeID, r.IdempotencyKey)
	if getErr != nil {
		return nil, false, fmt.Errorf("duplicate reservation could not be read back: %w", getErr)
	}
	return existing, false, nil
}

func (repo *MongoReservationRepo) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	return repo.findOne(ctx, bson.M{"id": id})
}

func (repo *MongoReservationRepo) GetByIdempotencyKey(ctx context.Context, menteeID, key string) (*models.Reservation, error) {
	return repo.findOne(ctx, bson.M{"menteeId": menteeID, "idempotencyKey": key})
}

func (repo *MongoReservationRepo) GetByCheckoutHandle(ctx context.Context, handle string) (*models.Reservation, error) {
	return repo.findOne(ctx, bson.M{"checkoutHandle": handle})
}

func (repo *MongoReservationRepo) AttachCheckout(ctx context.Context, id, handle, url string) (*models.Reservation, error) {
	return repo.update(ctx, id, []models.ReservationStatus{models.ReservationPending}, bson.M{
		"checkoutHandle": handle,
		"checkoutUrl":    url,
		"updatedAt":      time.Now().UTC(),
	})
}

func (repo *MongoReservationRepo) Transition(
	ctx context.Context,
	id string,
	from []models.ReservationStatus,
	to models.ReservationStatus,
	patch models.ReservationPatch,
) (*models.Reservation, error) {
	if err := ValidateTransition(from, to); err != nil {
		return nil, err
	}

	set := bson.M{
		"status":    to,
		"updatedAt": time.Now().UTC(),
	}
	if patch.CheckoutHandle != "" {
		set["checkoutHandle"] = patch.CheckoutHandle
	}
	if patch.CheckoutURL != "" {
		set["checkoutUrl"] = patch.CheckoutURL
	}
	if patch.SessionID != "" {
		set["sessionId"] = patch.SessionID
	}
	if patch.FailureCode != "" {
		set["failureCode"] = patch.FailureCode
	}
	if !patch.ExpiresAt.IsZero() {
		set["expiresAt"] = patch.ExpiresAt
	}
	return repo.update(ctx, id, from, set)
}

func (repo *MongoReservationRepo) update(ctx context.Context, id string, from []models.ReservationStatus, set bson.M) (*models.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{"id": id, "status": bson.M{"$in": from}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Reservation
	err := repo.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&updated)
	if err == nil {
		return &updated, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("error updating reservation %s: %w", id, err)
	}

	// Distinguish a missing document from a lost race.
	if _, getErr := repo.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrStaleTransition
}

func (repo *MongoReservationRepo) FindActiveClaims(
	ctx context.Context,
	mentorID string,
	start, end, now time.Time,
	excludeID string,
) ([]models.Reservation, error) {
	filter := bson.M{
		"mentorId":  mentorID,
		"status":    bson.M{"$in": []models.ReservationStatus{models.ReservationHeld, models.ReservationPaid}},
		"expiresAt": bson.M{"$gt": now},
		"startUtc": bson.M{
			"$lt": end,
			"$gt": start.Add(-models.MaxSessionMinutes * time.Minute),
		},
	}
	if excludeID != "" {
		filter["id"] = bson.M{"$ne": excludeID}
	}

	candidates, err := repo.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "startUtc", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("error finding active claims: %w", err)
	}

	claims := candidates[:0]
	for _, r := range candidates {
		if Overlaps(r.StartUTC, r.EndUTC(), start, end) {
			claims = append(claims, r)
		}
	}
	return claims, nil
}

func (repo *MongoReservationRepo) FindExpired(ctx context.Context, now time.Time, limit int64) ([]models.Reservation, error) {
	filter := bson.M{
		"status":    bson.M{"$in": []models.ReservationStatus{models.ReservationHeld, models.ReservationPaid}},
		"expiresAt": bson.M{"$lte": now},
	}
	opts := options.Find().SetSort(bson.D{{Key: "expiresAt", Value: 1}}).SetLimit(limit)
	expired, err := repo.find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error finding expired reservations: %w", err)
	}
	return expired, nil
}

func (repo *MongoReservationRepo) findOne(ctx context.Context, filter bson.M) (*models.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var r models.Reservation
	err := repo.coll.FindOne(ctx, filter).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching reservation: %w", err)
	}
	return &r, nil
}

func (repo *MongoReservationRepo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cursor, err := repo.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []models.Reservation
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
