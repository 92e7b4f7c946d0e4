package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/hiiliketocode/polycopy-sub018/internal/config"
	"github.com/redis/go-redis/v9"
)

// RedisLedger is a dedup guard on Redis SET NX, used by paper
// deployments that run without Postgres. Key expiry doubles as ledger
// retention.
type RedisLedger struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisClient(cfg *config.Config) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return rdb, nil
}

func NewRedisLedger(client *redis.Client, ttl time.Duration) *RedisLedger {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisLedger{
		client: client,
		ttl:    ttl,
		prefix: "ledger:",
	}
}

func (l *RedisLedger) key(strategyID, signalID string) string {
	return l.prefix + strategyID + ":" + signalID
}

func (l *RedisLedger) Record(ctx context.Context, strategyID, signalID string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(strategyID, signalID), time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("ledger write failed: %w", err)
	}
	return ok, nil
}
