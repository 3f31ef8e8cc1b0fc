package optimization

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ducminhle1904/regime-optimizer/internal/errors"
)

// MemoryStorage keeps trials in process memory
type MemoryStorage struct {
	mu     sync.RWMutex
	trials map[string][]FrozenTrial
}

// NewMemoryStorage creates an empty store
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{trials: make(map[string][]FrozenTrial)}
}

// LoadTrials implements Storage
func (m *MemoryStorage) LoadTrials(_ context.Context, study string) ([]FrozenTrial, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]FrozenTrial(nil), m.trials[study]...), nil
}

// SaveTrial implements Storage
func (m *MemoryStorage) SaveTrial(_ context.Context, study string, t FrozenTrial) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trials[study] = append(m.trials[study], t)
	return nil
}

// DeleteStudy implements Storage
func (m *MemoryStorage) DeleteStudy(_ context.Context, study string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.trials, study)
	return nil
}

// RedisConfig holds connection settings for RedisStorage
type RedisConfig struct {
	Addr     string        `json:"addr" yaml:"addr" default:"localhost:6379" validate:"required"`
	Password string        `json:"-" yaml:"password"`
	DB       int           `json:"db" yaml:"db" validate:"gte=0"`
	Prefix   string        `json:"prefix" yaml:"prefix" default:"regime-optimizer:"`
	TTL      time.Duration `json:"ttl" yaml:"ttl"`
}

// RedisStorage appends trials as JSON entries of a Redis list per study
type RedisStorage struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStorage wraps an existing client
func NewRedisStorage(client *redis.Client, prefix string, ttl time.Duration) *RedisStorage {
	return &RedisStorage{client: client, prefix: prefix, ttl: ttl}
}

// DialRedisStorage connects and pings the server
func DialRedisStorage(ctx context.Context, cfg RedisConfig) (*RedisStorage, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.CategorizeDataError(fmt.Errorf("redis connection failed: %w", err), "storage", "ping")
	}
	return NewRedisStorage(rdb, cfg.Prefix, cfg.TTL), nil
}

// Close releases the client
func (r *RedisStorage) Close() error {
	return r.client.Close()
}

func (r *RedisStorage) key(study string) string {
	return r.prefix + "study:" + study + ":trials"
}

// LoadTrials implements Storage
func (r *RedisStorage) LoadTrials(ctx context.Context, study string) ([]FrozenTrial, error) {
	entries, err := r.client.LRange(ctx, r.key(study), 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, errors.CategorizeDataError(fmt.Errorf("redis lrange: %w", err), "storage", "load")
	}

	trials := make([]FrozenTrial, 0, len(entries))
	for i, e := range entries {
		var t FrozenTrial
		if err := json.Unmarshal([]byte(e), &t); err != nil {
			return nil, fmt.Errorf("decode trial entry %d of %s: %w", i, study, err)
		}
		trials = append(trials, t)
	}
	return trials, nil
}

// SaveTrial implements Storage
func (r *RedisStorage) SaveTrial(ctx context.Context, study string, t FrozenTrial) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode trial %d: %w", t.Number, err)
	}
	key := r.key(study)
	if err := r.client.RPush(ctx, key, string(data)).Err(); err != nil {
		return errors.CategorizeDataError(fmt.Errorf("redis rpush: %w", err), "storage", "save")
	}
	if r.ttl > 0 {
		if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
			return errors.CategorizeDataError(fmt.Errorf("redis expire: %w", err), "storage", "save")
		}
	}
	return nil
}

// DeleteStudy implements Storage
func (r *RedisStorage) DeleteStudy(ctx context.Context, study string) error {
	if err := r.client.Del(ctx, r.key(study)).Err(); err != nil {
		return errors.CategorizeDataError(fmt.Errorf("redis delete: %w", err), "storage", "delete")
	}
	return nil
}
