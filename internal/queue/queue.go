package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Job kinds understood by the sync worker.
const (
	KindSyncClass   = "sync_class"
	KindSyncHistory = "sync_history"
)

// Job asks the worker to refresh part of the mirror using the upstream token
// stored under UserKey.
type Job struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	UserKey    string    `json:"user_key"`
	ClassID    int64     `json:"class_id,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewJob stamps a job with a fresh id.
func NewJob(kind, userKey string, classID int64, now time.Time) Job {
	return Job{ID: uuid.NewString(), Kind: kind, UserKey: userKey, ClassID: classID, EnqueuedAt: now.UTC()}
}

// ErrFull is returned by InMemory.Publish when the buffer has no room.
var ErrFull = errors.New("queue full")

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, job Job) error
	Consume(ctx context.Context) (<-chan Job, error)
}

// InMemory is a minimal channel-backed queue for dev/testing.
type InMemory struct {
	ch chan Job
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Job, size)}
}

// Publish enqueues a job without waiting. A full buffer yields ErrFull.
func (q *InMemory) Publish(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.ch <- job:
		return nil
	default:
		return ErrFull
	}
}

// Consume returns a channel closed when ctx is done.
func (q *InMemory) Consume(ctx context.Context) (<-chan Job, error) {
	out := make(chan Job)
	go func() {
		defer close(out)
		for {
			select {
			case job := <-q.ch:
				select {
				case out <- job:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue implements a Redis list-backed queue.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "presensi:sync"
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues a job.
func (q *RedisQueue) Publish(ctx context.Context, job Job) error {
	b, err := encode(job)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, b).Err()
}

// Consume streams jobs using BRPOP. Undecodable entries are skipped.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Job, error) {
	out := make(chan Job)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, redis.Nil) {
					select {
					case <-ctx.Done():
						return
					case <-time.After(time.Second):
					}
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			job, err := decode(res[1])
			if err != nil {
				continue
			}
			select {
			case out <- job:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func encode(job Job) (string, error) {
	b, err := json.Marshal(job)
	return string(b), err
}

func decode(s string) (Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(s), &job); err != nil {
		return Job{}, err
	}
	if job.Kind == "" {
		return Job{}, errors.New("job kind missing")
	}
	return job, nil
}
