package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeReservationExpire = "reservation:expire"
	TypeReservationSweep  = "reservation:sweep"
)

// ExpirePayload identifies the reservation whose claim deadline was reached.
type ExpirePayload struct {
	ReservationID string `json:"reservationId"`
}

// NewExpireReservationTask schedules an expiry check at fireAt. The task ID is derived
// from the reservation, so re-scheduling the same reservation is a no-op.
func NewExpireReservationTask(reservationID string, fireAt time.Time) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(ExpirePayload{ReservationID: reservationID})
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeReservationExpire, b)
	opts := []asynq.Option{
		asynq.ProcessAt(fireAt),
		asynq.TaskID("expire:" + reservationID),
		asynq.MaxRetry(5),
		// Kept around so a re-schedule within the TTL still dedupes.
		asynq.Retention(time.Hour),
	}
	return task, opts, nil
}

func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TypeReservationSweep, nil)
}

// ParseExpirePayload decodes an expiry task payload.
func ParseExpirePayload(task *asynq.Task) (ExpirePayload, error) {
	var p ExpirePayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return p, fmt.Errorf("invalid expire payload: %w", err)
	}
	if p.ReservationID == "" {
		return p, errors.New("expire payload without reservation id")
	}
	return p, nil
}

// Enqueuer schedules reservation expiry tasks on asynq.
type Enqueuer struct {
	Client *asynq.Client
}

func NewEnqueuer(redisOpt asynq.RedisClientOpt) *Enqueuer {
	return &Enqueuer{Client: asynq.NewClient(redisOpt)}
}

func (e *Enqueuer) ScheduleExpiry(ctx context.Context, reservationID string, at time.Time) error {
	task, opts, err := NewExpireReservationTask(reservationID, at)
	if err != nil {
		return err
	}
	_, err = e.Client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

func (e *Enqueuer) Close() error {
	return e.Client.Close()
}
