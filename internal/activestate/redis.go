package activestate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// stateKey is the single entry holding the active snippet id.
const stateKey = "tracklight:active_script"

// RedisState keeps the active snippet in a Redis key, for deployments where
// the visitor store and the realtime instances do not share a database.
type RedisState struct {
	client *redis.Client
}

// NewRedisState connects to Redis and verifies connectivity immediately.
func NewRedisState(ctx context.Context, addr, password string, dbNum int) (*RedisState, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       dbNum,
		// Timeouts prevent a slow Redis from stalling the tracking path.
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisState{client: client}, nil
}

func (r *RedisState) Activate(ctx context.Context, snippetID string) error {
	if err := r.client.Set(ctx, stateKey, snippetID, 0).Err(); err != nil {
		return fmt.Errorf("activate snippet: %w", err)
	}
	return nil
}

func (r *RedisState) Active(ctx context.Context) (string, bool, error) {
	id, err := r.client.Get(ctx, stateKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read active snippet: %w", err)
	}
	return id, true, nil
}

func (r *RedisState) Deactivate(ctx context.Context, snippetID string) error {
	// Compare-and-delete so a concurrent activation of another snippet is
	// not clobbered.
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) end return 0`
	if err := r.client.Eval(ctx, script, []string{stateKey}, snippetID).Err(); err != nil {
		return fmt.Errorf("deactivate snippet: %w", err)
	}
	return nil
}

func (r *RedisState) Close() error { return r.client.Close() }
