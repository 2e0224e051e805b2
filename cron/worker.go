package cron

import (
	"context"
	"fmt"
	"time"

	"mentorbook/config"
	"mentorbook/services/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// ReservationReaper is what the background worker drives.
type ReservationReaper interface {
	ExpireReservation(ctx context.Context, reservationID string) error
	SweepExpired(ctx context.Context) (int, error)
}

// Worker runs reservation expiry tasks and the periodic sweep on asynq.
type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	interval  time.Duration
	logger    *zap.Logger
}

// RedisOpt builds the asynq connection used by both the worker and the enqueuer.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisQueueDB,
	}
}

func NewWorker(cfg *config.Config, reaper ReservationReaper, logger *zap.Logger) *Worker {
	redisOpt := RedisOpt(cfg)
	log := logger.Named("worker")

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				"default": 1,
			},
			Logger: log.Sugar(),
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Warn("task failed", zap.String("type", task.Type()), zap.ByteString("payload", task.Payload()), zap.Error(err))
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeReservationExpire, handleExpireTask(reaper, log))
	mux.HandleFunc(tasks.TypeReservationSweep, handleSweepTask(reaper, log))

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   log.Sugar(),
	})

	return &Worker{
		server:    srv,
		scheduler: scheduler,
		mux:       mux,
		interval:  cfg.SweepInterval,
		logger:    log,
	}
}

// Start launches the task server (with startup retries) and registers the sweep.
func (w *Worker) Start() error {
	// Unique keeps several instances from stacking sweeps.
	cronspec := fmt.Sprintf("@every %s", w.interval)
	if _, err := w.scheduler.Register(cronspec, tasks.NewSweepTask(), asynq.Unique(w.interval)); err != nil {
		return fmt.Errorf("register sweep: %w", err)
	}

	const maxAttempts = 5
	var err error
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		if err = w.server.Start(w.mux); err == nil {
			break
		}
		w.logger.Warn("failed to start task server", zap.Int("attempt", attempts), zap.Int("max_attempts", maxAttempts), zap.Error(err))
		if attempts == maxAttempts {
			return fmt.Errorf("start task server: %w", err)
		}
		time.Sleep(time.Duration(attempts*2) * time.Second)
	}

	if err := w.scheduler.Start(); err != nil {
		w.server.Shutdown()
		return fmt.Errorf("start scheduler: %w", err)
	}
	w.logger.Info("worker started", zap.Duration("sweep_interval", w.interval))
	return nil
}

func (w *Worker) Shutdown() {
	w.scheduler.Shutdown()
	w.server.Shutdown()
	w.logger.Info("worker stopped")
}

func handleExpireTask(reaper ReservationReaper, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		p, err := tasks.ParseExpirePayload(task)
		if err != nil {
			logger.Error("invalid expire task", zap.Error(err))
			// A malformed payload will never succeed.
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return reaper.ExpireReservation(ctx, p.ReservationID)
	}
}

func handleSweepTask(reaper ReservationReaper, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		n, err := reaper.SweepExpired(ctx)
		if err != nil {
			logger.Warn("sweep incomplete", zap.Int("processed", n), zap.Error(err))
		}
		return err
	}
}
