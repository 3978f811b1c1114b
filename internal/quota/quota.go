// Package quota guards the metered places API against overuse. Calls
// are recorded in a redis sorted set scored by timestamp; the trailing
// 24-hour count trips the guard at 95% of the daily limit, leaving
// headroom instead of waiting for a hard upstream failure.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	windowKey = "leadharvester:quota:places"
	window    = 24 * time.Hour
	headroom  = 0.95
)

type Guard struct {
	rdb        *redis.Client
	dailyLimit int
	logger     *slog.Logger
	now        func() time.Time
}

func NewGuard(rdb *redis.Client, dailyLimit int, logger *slog.Logger) *Guard {
	return &Guard{
		rdb:        rdb,
		dailyLimit: dailyLimit,
		logger:     logger.With("component", "quota_guard"),
		now:        time.Now,
	}
}

// Record logs one metered call, successful or not; everything is
// recorded for visibility. Entries older than the window are trimmed on
// every write to bound memory.
func (g *Guard) Record(ctx context.Context, endpoint, status string) error {
	now := g.now()
	member := fmt.Sprintf("%d:%s:%s", now.UnixNano(), endpoint, status)

	pipe := g.rdb.TxPipeline()
	pipe.ZAdd(ctx, windowKey, redis.Z{Score: float64(now.UnixMilli()), Member: member})
	pipe.ZRemRangeByScore(ctx, windowKey, "0", fmt.Sprintf("%d", now.Add(-window).UnixMilli()))
	pipe.Expire(ctx, windowKey, window+time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record quota entry: %w", err)
	}
	return nil
}

// Used returns the number of metered calls in the trailing 24 hours.
func (g *Guard) Used(ctx context.Context) (int, error) {
	now := g.now()
	count, err := g.rdb.ZCount(ctx, windowKey,
		fmt.Sprintf("%d", now.Add(-window).UnixMilli()),
		fmt.Sprintf("%d", now.UnixMilli()),
	).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count quota window: %w", err)
	}
	return int(count), nil
}

// Exceeded reports whether the trailing-24h call count has reached 95%
// of the daily limit.
func (g *Guard) Exceeded(ctx context.Context) (bool, error) {
	used, err := g.Used(ctx)
	if err != nil {
		return false, err
	}
	threshold := int(float64(g.dailyLimit) * headroom)
	if used >= threshold {
		g.logger.Warn("quota threshold reached", "used", used, "limit", g.dailyLimit)
		return true, nil
	}
	return false, nil
}

// Remaining returns how many calls are left before the guard trips.
func (g *Guard) Remaining(ctx context.Context) (int, error) {
	used, err := g.Used(ctx)
	if err != nil {
		return 0, err
	}
	left := int(float64(g.dailyLimit)*headroom) - used
	if left < 0 {
		left = 0
	}
	return left, nil
}
