package schedulerRepo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// WithMentorLock serializes on the mentor's lock document. The first write of the
// transaction bumps that document, so a concurrent transaction for the same mentor
// hits a write conflict, is aborted, and is retried by WithTransaction after the
// winner commits. The retry then reads the winner's writes.
func (repo *MongoSchedulerRepo) WithMentorLock(ctx context.Context, mentorID string, fn func(ctx context.Context) error) error {
	if err := repo.ensureLockDocument(ctx, mentorID); err != nil {
		return err
	}

	sess, err := repo.client.StartSession()
	if err != nil {
		return fmt.Errorf("could not start mongo session: %w", err)
	}
	defer sess.EndSession(context.Background())

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		update := bson.M{
			"$inc": bson.M{"version": 1},
			"$set": bson.M{"lockedAt": time.Now().UTC()},
		}
		if _, err := repo.lockColl.UpdateOne(sc, bson.M{"_id": mentorID}, update); err != nil {
			return nil, fmt.Errorf("acquire mentor lock: %w", err)
		}
		return nil, fn(sc)
	}, txnOpts)
	return err
}

// ensureLockDocument creates the lock document outside any transaction so that the
// in-transaction write is always an update rather than a racing upsert.
func (repo *MongoSchedulerRepo) ensureLockDocument(ctx context.Context, mentorID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := repo.lockColl.UpdateOne(ctx,
		bson.M{"_id": mentorID},
		bson.M{"$setOnInsert": bson.M{"version": 0}},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("ensure mentor lock document: %w", err)
	}
	return nil
}
