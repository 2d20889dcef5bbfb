package cache

import (
	"context"
	"time"

	"trade_core/internal/models"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const snapshotKeyPrefix = "strategy:snapshot:"

type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(addr string, ttl time.Duration) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

func (r *Redis) Put(ctx context.Context, id string, snap models.InstanceSnapshot) error {
	raw, err := sonic.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "cache.Put marshal")
	}
	return errors.Wrap(
		r.client.Set(ctx, snapshotKeyPrefix+id, raw, r.ttl).Err(),
		"cache.Put",
	)
}

func (r *Redis) Get(ctx context.Context, id string) (models.InstanceSnapshot, bool, error) {
	var snap models.InstanceSnapshot
	raw, err := r.client.Get(ctx, snapshotKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, errors.Wrap(err, "cache.Get")
	}
	if err := sonic.Unmarshal(raw, &snap); err != nil {
		return snap, false, errors.Wrap(err, "cache.Get unmarshal")
	}
	return snap, true, nil
}

func (r *Redis) Evict(ctx context.Context, id string) error {
	return errors.Wrap(r.client.Del(ctx, snapshotKeyPrefix+id).Err(), "cache.Evict")
}

func (r *Redis) Close() error { return r.client.Close() }
