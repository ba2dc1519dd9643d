package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "stylegen:quota"

// RedisStore shares windows across replicas through INCR with an expiry set
// by the first request of each window.
type RedisStore struct {
	rdb    redis.Cmdable
	limit  int
	period time.Duration
	prefix string
	now    func() time.Time
}

func NewRedisStore(rdb redis.Cmdable, limit int, period time.Duration) *RedisStore {
	return &RedisStore{
		rdb:    rdb,
		limit:  limit,
		period: period,
		prefix: defaultKeyPrefix,
		now:    time.Now,
	}
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func (s *RedisStore) Allow(ctx context.Context, key string) (Decision, error) {
	k := s.prefix + ":" + key
	count, err := s.rdb.Incr(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("quota incr: %w", err)
	}
	ttl, err := s.rdb.PTTL(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("quota ttl: %w", err)
	}
	// A negative ttl means the first request never set an expiry.
	if count == 1 || ttl < 0 {
		if err := s.rdb.PExpire(ctx, k, s.period).Err(); err != nil {
			return Decision{}, fmt.Errorf("quota expire: %w", err)
		}
		ttl = s.period
	}
	return decide(count, s.limit, s.now().Add(ttl)), nil
}

var _ Store = (*RedisStore)(nil)
