package queue

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemory_PublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	jobs, err := q.Consume(ctx)
	require.NoError(t, err)

	now := time.Date(2024, 3, 20, 8, 0, 0, 0, time.UTC)
	require.NoError(t, q.Publish(ctx, NewJob(KindSyncClass, "7", 3, now)))
	require.NoError(t, q.Publish(ctx, NewJob(KindSyncHistory, "7", 0, now)))

	first := <-jobs
	second := <-jobs
	assert.Equal(t, KindSyncClass, first.Kind)
	assert.Equal(t, int64(3), first.ClassID)
	assert.Equal(t, KindSyncHistory, second.Kind)
	assert.NotEqual(t, first.ID, second.ID)

	cancel()
	_, open := <-jobs
	assert.False(t, open, "channel closes with context")
}

func TestInMemory_PublishFull(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Job{Kind: KindSyncClass}))

	start := time.Now()
	assert.ErrorIs(t, q.Publish(context.Background(), Job{Kind: KindSyncClass}), ErrFull)
	assert.Less(t, time.Since(start), 100*time.Millisecond, "publish does not wait for room")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.Publish(ctx, Job{Kind: KindSyncClass}), context.Canceled)
}

func TestRedisQueue_ConsumeStopsWithContext(t *testing.T) {
	// Nothing listens on this address, so every BRPOP fails and the
	// consumer sits in its retry wait.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 10 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	jobs, err := NewRedisQueue(client, "").Consume(ctx)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case _, open := <-jobs:
		assert.False(t, open)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("consumer kept waiting after cancel")
	}
}

func TestEncodeDecode(t *testing.T) {
	job := NewJob(KindSyncClass, "7", 3, time.Date(2024, 3, 20, 8, 0, 0, 0, time.UTC))
	s, err := encode(job)
	require.NoError(t, err)

	got, err := decode(s)
	require.NoError(t, err)
	assert.Equal(t, job, got)

	_, err = decode(`{"id":"x"}`)
	assert.Error(t, err)
	_, err = decode("checkin|abc")
	assert.Error(t, err)
}
