package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/mohamedkhairy/chat-relay/internal/config"
	"github.com/mohamedkhairy/chat-relay/internal/models"
	"github.com/mohamedkhairy/chat-relay/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// RedisPresence implements PresenceStore backed by Redis.
// Each user gets a hash under presence:<userID> with status and last_seen
// fields, expiring after the configured TTL so crashed relays do not leave
// users online forever.
type RedisPresence struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPresence creates a new Redis presence store and verifies connectivity
func NewRedisPresence(cfg config.RedisConfig) (*RedisPresence, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis",
		logger.String("host", cfg.Host),
		logger.Int("port", cfg.Port),
	)

	return &RedisPresence{client: rdb, ttl: cfg.PresenceTTL}, nil
}

func presenceKey(userID string) string {
	return "presence:" + userID
}

// SetPresence records a user's current status and last-seen timestamp
func (r *RedisPresence) SetPresence(ctx context.Context, userID string, status models.Status, lastSeen time.Time) error {
	key := presenceKey(userID)

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"status":    string(status),
		"last_seen": lastSeen.UTC().Format(time.RFC3339),
	})
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mirror presence for user %s: %w", userID, err)
	}
	return nil
}

// GetPresence retrieves a user's mirrored status, or StatusOffline if absent
func (r *RedisPresence) GetPresence(ctx context.Context, userID string) (models.Status, error) {
	value, err := r.client.HGet(ctx, presenceKey(userID), "status").Result()
	if err == redis.Nil {
		return models.StatusOffline, nil
	}
	if err != nil {
		return models.StatusOffline, fmt.Errorf("failed to read presence for user %s: %w", userID, err)
	}

	status := models.Status(value)
	if !status.Valid() {
		return models.StatusOffline, nil
	}
	return status, nil
}

// Close closes the Redis connection
func (r *RedisPresence) Close() error {
	return r.client.Close()
}
