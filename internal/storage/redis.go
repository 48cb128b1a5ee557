package storage

import (
	"context"
	"fmt"

	"datarecorder/internal/model"
	"datarecorder/internal/utils"

	"github.com/redis/go-redis/v9"
)

// RedisStore appends documents to one redis list per series, keyed
// "<store>:<series>".
type RedisStore struct {
	client redis.UniversalClient
}

// OpenRedis connects to the redis server described by url and checks it with PING.
func OpenRedis(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStore(client), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Insert implements Store.
func (r *RedisStore) Insert(ctx context.Context, store, series string, rec model.Record) error {
	body, err := Encode(rec)
	if err != nil {
		return err
	}
	return r.client.RPush(ctx, utils.SeriesKey(store, series), body).Err()
}

// Close implements Store.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
