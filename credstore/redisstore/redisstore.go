package redisstore

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-auth-client/credstore"
	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/redis/go-redis/v9"
)

var _ credstore.Store = (*RedisStore)(nil)

// RedisStore keeps tokens in Redis under "<prefix>:<key>", letting several
// processes on one machine (or a shared workstation profile) see the same session.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

func New(rdb redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (r *RedisStore) redisKey(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := r.rdb.Get(ctx, r.redisKey(key)).Result()
	if autherrors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("[redisstore Get] %s: %w", key, autherrors.Join(autherrors.ErrStoreUnavailable, err))
	}
	return v, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := r.rdb.Set(ctx, r.redisKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("[redisstore Set] %s: %w", key, autherrors.Join(autherrors.ErrStoreUnavailable, err))
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("[redisstore Delete] %s: %w", key, autherrors.Join(autherrors.ErrStoreUnavailable, err))
	}
	return nil
}
