package champion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Snapshot is one complete champion table for a feed version.
type Snapshot struct {
	Version   string         `json:"version"`
	Names     map[int]string `json:"names"`
	FetchedAt time.Time      `json:"fetchedAt"`
}

// Store persists the last good snapshot between runs.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, s Snapshot) error
}

var ErrNoSnapshot = errors.New("no stored champion snapshot")

const redisKey = "lcu-client:champions"

// RedisStore keeps the snapshot under a single key. A store without a
// reachable server is disabled and reports ErrNoSnapshot.
type RedisStore struct {
	client  *redis.Client
	enabled bool
	key     string
}

func NewRedisStore(ctx context.Context, redisURL string, logger *zap.Logger) *RedisStore {
	if redisURL == "" {
		logger.Debug("redis not configured, champion snapshots stay in memory")
		return &RedisStore{key: redisKey}
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("failed to parse redis url", zap.Error(err))
		return &RedisStore{key: redisKey}
	}
	opt.PoolSize = 2
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis connection failed", zap.Error(err))
		_ = client.Close()
		return &RedisStore{key: redisKey}
	}

	logger.Info("redis connected", zap.String("addr", opt.Addr))
	return &RedisStore{client: client, enabled: true, key: redisKey}
}

func (r *RedisStore) Enabled() bool { return r.enabled }

func (r *RedisStore) Load(ctx context.Context) (*Snapshot, error) {
	if !r.enabled {
		return nil, ErrNoSnapshot
	}
	val, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s Snapshot) error {
	if !r.enabled {
		return nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key, b, 0).Err()
}

func (r *RedisStore) Close() error {
	if !r.enabled {
		return nil
	}
	return r.client.Close()
}
