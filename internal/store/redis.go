package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps the redis client shared by the token store and the sync queue.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts. A bad address surfaces on
// first use, not here.
func NewRedis(addr, password string, db int) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
