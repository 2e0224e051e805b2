package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mentorbook/config"
	"mentorbook/cron"
	"mentorbook/database"
	profileRepo "mentorbook/database/repository/profile"
	reservationRepo "mentorbook/database/repository/reservation"
	schedulerRepo "mentorbook/database/repository/scheduler"
	timeslotRepo "mentorbook/database/repository/timeslot"
	"mentorbook/services/booking"
	"mentorbook/services/payment"
	"mentorbook/services/tasks"
	"mentorbook/utils"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// app is the wired process: stores, gateway, and the booking service on top.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	mongo    *mongo.Client
	redis    *redis.Client
	gateway  *payment.StripeGateway
	enqueuer *tasks.Enqueuer
	service  *booking.DefaultBookingService
}

type indexer interface {
	EnsureIndexes(ctx context.Context) error
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	mongoClient, db, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	redisClient, err := utils.NewCacheClient(ctx, cfg)
	if err != nil {
		_ = mongoClient.Disconnect(context.Background())
		return nil, err
	}

	profiles := profileRepo.NewMongoProfileRepo(db)
	timeslots := timeslotRepo.NewMongoTimeSlotRepo(db)
	reservations := reservationRepo.NewMongoReservationRepo(db)
	scheduler := schedulerRepo.NewMongoSchedulerRepo(db)

	indexCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	for _, repo := range []indexer{profiles, timeslots, reservations, scheduler} {
		if err := repo.EnsureIndexes(indexCtx); err != nil {
			_ = mongoClient.Disconnect(context.Background())
			_ = redisClient.Close()
			return nil, fmt.Errorf("ensure indexes: %w", err)
		}
	}

	engine := &booking.DefaultSchedulingEngine{
		Scheduler:       scheduler,
		Reservations:    reservations,
		Timeslots:       timeslots,
		Profiles:        profiles,
		Logger:          logger.Named("engine"),
		SuggestionLimit: cfg.SuggestionLimit,
		SuggestionDays:  cfg.SuggestionDays,
	}

	gateway := payment.NewStripeGateway(payment.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		SuccessURL:    cfg.CheckoutSuccessURL,
		CancelURL:     cfg.CheckoutCancelURL,
	}, logger.Named("stripe"))

	enqueuer := tasks.NewEnqueuer(cron.RedisOpt(cfg))

	service := &booking.DefaultBookingService{
		Engine:  engine,
		Gateway: gateway,
		Expiry:  enqueuer,
		Cache:   booking.NewRedisStatusCache(redisClient, cfg.StatusCacheTTL, logger.Named("cache")),
		Config: booking.ReservationConfig{
			TTL:                cfg.ReservationTTL,
			PaidGrace:          cfg.PaidGrace,
			GatewayMaxAttempts: cfg.GatewayMaxAttempts,
			GatewayBaseBackoff: cfg.GatewayBaseBackoff,
			DefaultCurrency:    cfg.DefaultCurrency,
		},
		Logger: logger.Named("booking"),
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		mongo:    mongoClient,
		redis:    redisClient,
		gateway:  gateway,
		enqueuer: enqueuer,
		service:  service,
	}, nil
}

func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(
		a.enqueuer.Close(),
		a.redis.Close(),
		a.mongo.Disconnect(ctx),
	)
}
