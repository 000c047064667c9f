package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRetriesUntilSuccess(t *testing.T) {
	var calls int32
	done := make(chan Task, 1)
	q := NewQueue("test", func(ctx context.Context, task Task) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("not yet")
		}
		done <- task
		return nil
	}, QueueConfig{MaxRetries: 3, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Task{Target: "books"}))

	select {
	case task := <-done:
		assert.Equal(t, "books", task.Target)
		assert.Equal(t, 2, task.Attempt)
		assert.NotEmpty(t, task.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("task never succeeded")
	}
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	gaveUp := make(chan Task, 1)
	q := NewQueue("test", func(ctx context.Context, task Task) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("down")
	}, QueueConfig{
		MaxRetries: 1,
		RetryDelay: 5 * time.Millisecond,
		OnGiveUp:   func(task Task, err error) { gaveUp <- task },
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Task{Target: "students"}))

	select {
	case task := <-gaveUp:
		assert.Equal(t, "students", task.Target)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	case <-time.After(2 * time.Second):
		t.Fatal("queue never gave up")
	}
}

func TestQueueRejectsTasksBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(ctx context.Context, task Task) error { return nil }, QueueConfig{})
	assert.Error(t, q.Enqueue(Task{Target: "books"}))
	q.Stop()
}
