package broadcast

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Presence mirrors room membership into shared storage so membership is
// observable across gateway instances. Mirror failures are logged by the
// broadcaster and never affect in-process delivery.
type Presence interface {
	Add(ctx context.Context, auctionID, userID string) error
	Remove(ctx context.Context, auctionID, userID string) error
	Members(ctx context.Context, auctionID string) ([]string, error)
}

// RedisPresence keeps one Redis set per auction room.
type RedisPresence struct {
	client *redis.Client
}

// NewRedisPresence connects to Redis and verifies the connection.
func NewRedisPresence(ctx context.Context, addr, password string, db int) (*RedisPresence, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisPresence{client: rdb}, nil
}

func presenceKey(auctionID string) string {
	return "auction:" + auctionID + ":members"
}

func (p *RedisPresence) Add(ctx context.Context, auctionID, userID string) error {
	return p.client.SAdd(ctx, presenceKey(auctionID), userID).Err()
}

func (p *RedisPresence) Remove(ctx context.Context, auctionID, userID string) error {
	return p.client.SRem(ctx, presenceKey(auctionID), userID).Err()
}

func (p *RedisPresence) Members(ctx context.Context, auctionID string) ([]string, error) {
	return p.client.SMembers(ctx, presenceKey(auctionID)).Result()
}

// Close closes the Redis client.
func (p *RedisPresence) Close() error {
	return p.client.Close()
}
