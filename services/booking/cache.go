package booking

import (
	"context"
	"encoding/json"
	"time"

	"mentorbook/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	statusKeyPrefix   = "reservation:status:"
	checkoutKeyPrefix = "reservation:checkout:"
)

// cachedView keeps the owner next to the view, which hides it from JSON.
type cachedView struct {
	MenteeID string                  `json:"menteeId"`
	View     *models.ReservationView `json:"view"`
}

// RedisStatusCache caches read-backs of terminal reservations and the checkout
// handle -> reservation mapping used by webhooks and status-by-checkout lookups.
// Cache failures degrade to a database read; they are never returned.
type RedisStatusCache struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *zap.Logger
}

func NewRedisStatusCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisStatusCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStatusCache{Client: client, TTL: ttl, Logger: logger}
}

func (c *RedisStatusCache) Get(ctx context.Context, reservationID string) (*models.ReservationView, bool) {
	data, err := c.Client.Get(ctx, statusKeyPrefix+reservationID).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.Logger.Warn("status cache: get failed", zap.String("reservation_id", reservationID), zap.Error(err))
		}
		return nil, false
	}
	var entry cachedView
	if err := json.Unmarshal(data, &entry); err != nil || entry.View == nil {
		c.Logger.Warn("status cache: dropping undecodable entry", zap.String("reservation_id", reservationID))
		c.Client.Del(ctx, statusKeyPrefix+reservationID)
		return nil, false
	}
	entry.View.MenteeID = entry.MenteeID
	return entry.View, true
}

// Set stores terminal views only; live reservations must always be reconciled.
func (c *RedisStatusCache) Set(ctx context.Context, view *models.ReservationView) {
	if view == nil || !view.Status.IsTerminal() {
		return
	}
	data, err := json.Marshal(cachedView{MenteeID: view.MenteeID, View: view})
	if err != nil {
		c.Logger.Warn("status cache: marshal failed", zap.Error(err))
		return
	}
	if err := c.Client.Set(ctx, statusKeyPrefix+view.ReservationID, data, c.TTL).Err(); err != nil {
		c.Logger.Warn("status cache: set failed", zap.String("reservation_id", view.ReservationID), zap.Error(err))
	}
}

func (c *RedisStatusCache) ReservationIDForHandle(ctx context.Context, handle string) (string, bool) {
	id, err := c.Client.Get(ctx, checkoutKeyPrefix+handle).Result()
	if err != nil {
		if err != redis.Nil {
			c.Logger.Warn("status cache: handle lookup failed", zap.String("checkout", handle), zap.Error(err))
		}
		return "", false
	}
	return id, true
}

func (c *RedisStatusCache) RememberHandle(ctx context.Context, handle, reservationID string) {
	// Handles outlive the status TTL; a day covers any checkout lifetime.
	if err := c.Client.Set(ctx, checkoutKeyPrefix+handle, reservationID, 24*time.Hour).Err(); err != nil {
		c.Logger.Warn("status cache: remember handle failed", zap.String("checkout", handle), zap.Error(err))
	}
}
