package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDispatchesByType(t *testing.T) {
	q := NewQueue("test", QueueConfig{Workers: 2, BufferSize: 8})

	var mu sync.Mutex
	seen := map[string]int{}
	record := func(ctx context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		seen[job.Type]++
		return nil
	}
	q.Register("a", record)
	q.Register("b", record)

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1", Type: "a"}))
	require.NoError(t, q.Enqueue(Job{ID: "2", Type: "b"}))
	require.NoError(t, q.Enqueue(Job{ID: "3", Type: "a"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen["a"] == 2 && seen["b"] == 1
	}, time.Second, 10*time.Millisecond)
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	q := NewQueue("test", QueueConfig{
		Workers:    1,
		MaxRetries: 2,
		RetryDelay: 5 * time.Millisecond,
	})

	var attempts atomic.Int32
	q.Register("flaky", func(ctx context.Context, job Job) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1", Type: "flaky"}))

	require.Eventually(t, func() bool {
		return attempts.Load() == 3
	}, time.Second, 10*time.Millisecond)
}

func TestQueueRecoversFromPanickingHandler(t *testing.T) {
	q := NewQueue("test", QueueConfig{Workers: 1})

	var done atomic.Bool
	q.Register("boom", func(ctx context.Context, job Job) error {
		panic("handler exploded")
	})
	q.Register("ok", func(ctx context.Context, job Job) error {
		done.Store(true)
		return nil
	})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1", Type: "boom"}))
	require.NoError(t, q.Enqueue(Job{ID: "2", Type: "ok"}))

	require.Eventually(t, done.Load, time.Second, 10*time.Millisecond)
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("test", QueueConfig{})
	err := q.Enqueue(Job{ID: "1", Type: "a"})
	assert.Error(t, err)
}

func TestQueueEnqueueAfter(t *testing.T) {
	q := NewQueue("test", QueueConfig{Workers: 1})

	var ran atomic.Bool
	q.Register("delayed", func(ctx context.Context, job Job) error {
		ran.Store(true)
		return nil
	})

	q.Start(context.Background())
	defer q.Stop()

	q.EnqueueAfter(Job{ID: "1", Type: "delayed"}, 10*time.Millisecond)
	assert.False(t, ran.Load())

	require.Eventually(t, ran.Load, time.Second, 5*time.Millisecond)
}

func TestRunnerRunsTasksImmediately(t *testing.T) {
	r := NewRunner(nil)

	var runs atomic.Int32
	r.Add(Task{
		Name:     "tick",
		Interval: time.Hour,
		Run: func(ctx context.Context) {
			runs.Add(1)
		},
	})

	r.Start(context.Background())
	defer r.Stop()

	require.Eventually(t, func() bool {
		return runs.Load() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestRunnerIsolatesPanickingTask(t *testing.T) {
	r := NewRunner(nil)

	var healthy atomic.Int32
	r.Add(Task{
		Name:     "faulty",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) {
			panic("task exploded")
		},
	})
	r.Add(Task{
		Name:     "healthy",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) {
			healthy.Add(1)
		},
	})

	r.Start(context.Background())
	defer r.Stop()

	require.Eventually(t, func() bool {
		return healthy.Load() >= 2
	}, time.Second, 5*time.Millisecond)
}
