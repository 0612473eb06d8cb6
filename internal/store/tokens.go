package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrTokenNotFound is returned when no bearer token is stored for a key.
var ErrTokenNotFound = errors.New("token not found")

// TokenStore persists upstream bearer tokens across restarts.
type TokenStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, token string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisTokens keeps tokens under "<prefix><key>" with an expiry.
type RedisTokens struct {
	client *redis.Client
	prefix string
}

// NewRedisTokens builds a token store on an existing client.
func NewRedisTokens(client *redis.Client, prefix string) *RedisTokens {
	if prefix == "" {
		prefix = "presensi:token:"
	}
	return &RedisTokens{client: client, prefix: prefix}
}

func (s *RedisTokens) Get(ctx context.Context, key string) (string, error) {
	tok, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTokenNotFound
	}
	return tok, err
}

// Set stores token; a zero ttl keeps it until deleted.
func (s *RedisTokens) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, token, ttl).Err()
}

func (s *RedisTokens) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

// MemoryTokens is a process-local TokenStore for dev and tests.
type MemoryTokens struct {
	mu     sync.Mutex
	tokens map[string]memoryToken
	now    func() time.Time
}

type memoryToken struct {
	value     string
	expiresAt time.Time
}

// NewMemoryTokens creates an empty in-memory store.
func NewMemoryTokens() *MemoryTokens {
	return &MemoryTokens{tokens: make(map[string]memoryToken), now: time.Now}
}

func (s *MemoryTokens) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[key]
	if !ok {
		return "", ErrTokenNotFound
	}
	if !t.expiresAt.IsZero() && !s.now().Before(t.expiresAt) {
		delete(s.tokens, key)
		return "", ErrTokenNotFound
	}
	return t.value, nil
}

func (s *MemoryTokens) Set(_ context.Context, key, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := memoryToken{value: token}
	if ttl > 0 {
		t.expiresAt = s.now().Add(ttl)
	}
	s.tokens[key] = t
	return nil
}

func (s *MemoryTokens) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, key)
	return nil
}
