package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares pending flows between backend instances. GETDEL makes
// consumption single use across the cluster.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "oauth_flow:",
		now:    time.Now,
	}
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

func (r *RedisStore) stateKey(state string) string {
	return r.prefix + "state:" + state
}

func (r *RedisStore) Put(ctx context.Context, f *Flow) error {
	if f.ID == "" || f.State == "" {
		return fmt.Errorf("flow: missing id or state")
	}

	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("flow: failed to marshal: %w", err)
	}

	old, err := r.get(ctx, f.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	ttl := keepFor(f, r.now())
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if old != nil {
			pipe.Del(ctx, r.stateKey(old.State))
		}
		pipe.Set(ctx, r.key(f.ID), data, ttl)
		pipe.Set(ctx, r.stateKey(f.State), f.ID, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("flow: store: %w", err)
	}
	return nil
}

func (r *RedisStore) get(ctx context.Context, id string) (*Flow, error) {
	val, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("flow: get: %w", err)
	}
	return decode(val)
}

func (r *RedisStore) Consume(ctx context.Context, id string) (*Flow, error) {
	val, err := r.client.GetDel(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("flow: consume: %w", err)
	}

	f, err := decode(val)
	if err != nil {
		return nil, err
	}
	if err := r.client.Del(ctx, r.stateKey(f.State)).Err(); err != nil {
		return nil, fmt.Errorf("flow: drop state index: %w", err)
	}
	return f, nil
}

func (r *RedisStore) ConsumeByState(ctx context.Context, state string) (*Flow, error) {
	id, err := r.client.GetDel(ctx, r.stateKey(state)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("flow: consume by state: %w", err)
	}

	f, err := r.Consume(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.State != state {
		return nil, ErrNotFound
	}
	return f, nil
}

func decode(val []byte) (*Flow, error) {
	var f Flow
	if err := json.Unmarshal(val, &f); err != nil {
		return nil, fmt.Errorf("flow: failed to unmarshal: %w", err)
	}
	return &f, nil
}
