// Package bidcache keeps the current highest bid per auction in Redis so
// obviously-low bids can be rejected without touching the store. The
// cache is advisory: a miss or a stale value only costs a store round
// trip, never correctness.
package bidcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/auctionhub/coin-auction/internal/config"
)

// ErrMiss is returned when the auction has no cached bid.
var ErrMiss = errors.New("bid not cached")

// Cache stores current bids keyed by auction ID.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, cfg config.CacheConfig) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Cache{client: rdb, ttl: time.Hour}, nil
}

func key(auctionID string) string {
	return fmt.Sprintf("auction:%s:current_bid", auctionID)
}

// CurrentBid returns the cached current bid for the auction, or ErrMiss.
func (c *Cache) CurrentBid(ctx context.Context, auctionID string) (int, error) {
	val, err := c.client.Get(ctx, key(auctionID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, ErrMiss
	}
	if err != nil {
		return 0, fmt.Errorf("reading cached bid: %w", err)
	}
	return val, nil
}

// SetCurrentBid records the auction's current bid after a successful
// placement.
func (c *Cache) SetCurrentBid(ctx context.Context, auctionID string, amount int) error {
	if err := c.client.Set(ctx, key(auctionID), amount, c.ttl).Err(); err != nil {
		return fmt.Errorf("caching bid: %w", err)
	}
	return nil
}

// Invalidate drops the cached bid, e.g. when an auction settles.
func (c *Cache) Invalidate(ctx context.Context, auctionID string) error {
	if err := c.client.Del(ctx, key(auctionID)).Err(); err != nil {
		return fmt.Errorf("invalidating cached bid: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
