package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigballadanny/dwschatbot/pkg/logger"
)

func newTestLogger() *logger.Logger {
	return logger.New("test", "", "")
}

func TestPoolRunsSubmittedTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := NewPool(3, 8, newTestLogger())
	pool.Start(ctx)

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(ctx, func(context.Context) {
			defer wg.Done()
			ran.Add(1)
		}))
	}
	wg.Wait()

	assert.Equal(t, int32(20), ran.Load())
}

func TestTrySubmitReportsFullQueue(t *testing.T) {
	// Never started, so nothing drains the queue.
	pool := NewPool(1, 2, newTestLogger())

	assert.True(t, pool.TrySubmit(func(context.Context) {}))
	assert.True(t, pool.TrySubmit(func(context.Context) {}))
	assert.False(t, pool.TrySubmit(func(context.Context) {}), "third task exceeds the queue capacity")
}

func TestSubmitUnblocksWhenContextEnds(t *testing.T) {
	pool := NewPool(1, 1, newTestLogger())
	require.True(t, pool.TrySubmit(func(context.Context) {}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pool.Submit(ctx, func(context.Context) {})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorkersStopWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(2, 2, newTestLogger())
	pool.Start(ctx)

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, pool.Submit(ctx, func(context.Context) {
		close(started)
		<-release
	}))

	<-started
	cancel()
	close(release)

	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("workers did not stop after context cancellation")
	}
}

func TestTaskReceivesPoolContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(1, 1, newTestLogger())
	pool.Start(ctx)

	got := make(chan context.Context, 1)
	require.NoError(t, pool.Submit(ctx, func(taskCtx context.Context) {
		got <- taskCtx
	}))

	taskCtx := <-got
	require.NoError(t, taskCtx.Err())
	cancel()
	assert.Eventually(t, func() bool { return taskCtx.Err() != nil }, time.Second, 10*time.Millisecond,
		"cancelling the pool context should cancel the task context")
}
