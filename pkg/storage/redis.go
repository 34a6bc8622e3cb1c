package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix is prepended to the stream name to form the Redis key.
const KeyPrefix = "spikewatch:report:"

// DefaultRedisTTL applies when RedisOptions.TTL is zero.
const DefaultRedisTTL = 30 * time.Minute

var errStoreClosed = errors.New("redis store is closed")

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisStore shares reports between detector replicas. Each report is stored
// as JSON under KeyPrefix+stream and expires after the TTL.
type RedisStore struct {
	mu     sync.RWMutex
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and pings it before returning.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if opts.DB < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}
	if opts.TTL < 0 {
		return nil, errors.New("redis TTL must be >= 0")
	}
	if opts.TTL == 0 {
		opts.TTL = DefaultRedisTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}

	return &RedisStore{client: client, ttl: opts.TTL}, nil
}

func (r *RedisStore) conn() (*redis.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return nil, errStoreClosed
	}
	return r.client, nil
}

// Put stores rep under its stream key, resetting the TTL.
func (r *RedisStore) Put(ctx context.Context, rep Report) error {
	if err := ValidateStream(rep.Stream); err != nil {
		return err
	}
	client, err := r.conn()
	if err != nil {
		return err
	}

	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := client.Set(ctx, KeyPrefix+rep.Stream, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("store report in redis: %w", err)
	}
	return nil
}

// GetLatest returns the stored report of stream. A missing or expired key is
// not an error.
func (r *RedisStore) GetLatest(ctx context.Context, stream string) (Report, bool, error) {
	if err := ValidateStream(stream); err != nil {
		return Report{}, false, err
	}
	client, err := r.conn()
	if err != nil {
		return Report{}, false, err
	}

	data, err := client.Get(ctx, KeyPrefix+stream).Bytes()
	if errors.Is(err, redis.Nil) {
		return Report{}, false, nil
	}
	if err != nil {
		return Report{}, false, fmt.Errorf("get report from redis: %w", err)
	}

	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return Report{}, false, fmt.Errorf("unmarshal report: %w", err)
	}
	return rep, true, nil
}

// Ping checks the connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	client, err := r.conn()
	if err != nil {
		return err
	}
	return client.Ping(ctx).Err()
}

// Close releases the client. Calling it again is a no-op.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}
