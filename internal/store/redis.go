package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// snapshotTTL keeps stale snapshots from outliving a dead daemon.
const snapshotTTL = 30 * time.Second

// RedisSnapshots mirrors the state publisher's latest snapshots into Redis
// so dashboards can seed their view without an MQTT session.
type RedisSnapshots struct {
	rdb    *redis.Client
	prefix string
}

// OpenRedisSnapshots connects and validates the client with a ping.
func OpenRedisSnapshots(ctx context.Context, addr, password string, db int, prefix string) (*RedisSnapshots, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisSnapshots{rdb: rdb, prefix: prefix}, nil
}

func (r *RedisSnapshots) key(name string) string {
	return r.prefix + ":snapshot:" + name
}

// Set stores the JSON snapshot under the given name.
func (r *RedisSnapshots) Set(ctx context.Context, name string, payload []byte) error {
	if err := r.rdb.Set(ctx, r.key(name), payload, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("writing snapshot %s: %w", name, err)
	}
	return nil
}

// Get fetches a snapshot; a missing key returns nil with no error.
func (r *RedisSnapshots) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := r.rdb.Get(ctx, r.key(name)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", name, err)
	}
	return data, nil
}

// Close closes the client.
func (r *RedisSnapshots) Close() error {
	return r.rdb.Close()
}
