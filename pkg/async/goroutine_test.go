package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeGo_Success(t *testing.T) {
	executed := atomic.Bool{}

	SafeGo(context.Background(), time.Second, "test task", func(ctx context.Context) error {
		executed.Store(true)
		return nil
	})

	assert.Eventually(t, executed.Load, time.Second, 10*time.Millisecond)
}

func TestSafeGo_WithError(t *testing.T) {
	executed := atomic.Bool{}

	SafeGo(context.Background(), time.Second, "test task", func(ctx context.Context) error {
		executed.Store(true)
		return errors.New("test error")
	})

	assert.Eventually(t, executed.Load, time.Second, 10*time.Millisecond)
}

func TestSafeGo_Timeout(t *testing.T) {
	timedOut := make(chan error, 1)

	SafeGo(context.Background(), 50*time.Millisecond, "test task", func(ctx context.Context) error {
		select {
		case <-time.After(2 * time.Second):
			timedOut <- nil
		case <-ctx.Done():
			timedOut <- ctx.Err()
		}
		return nil
	})

	select {
	case err := <-timedOut:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("task was not canceled by its timeout")
	}
}

func TestSafeGo_PanicRecovery(t *testing.T) {
	executed := atomic.Bool{}

	SafeGo(context.Background(), time.Second, "test task", func(ctx context.Context) error {
		executed.Store(true)
		panic("test panic")
	})

	assert.Eventually(t, executed.Load, time.Second, 10*time.Millisecond)
}

func TestSafeGo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	result := make(chan error, 1)

	SafeGo(ctx, 5*time.Second, "test task", func(ctx context.Context) error {
		close(started)
		select {
		case <-time.After(2 * time.Second):
			result <- nil
		case <-ctx.Done():
			result <- ctx.Err()
		}
		return nil
	})

	<-started
	cancel()
	assert.ErrorIs(t, <-result, context.Canceled)
}

func TestWorkerPool_Basic(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 2, "test pool", time.Second)

	executed := atomic.Int32{}
	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(func(ctx context.Context) error {
			executed.Add(1)
			return nil
		}))
	}

	require.NoError(t, pool.Shutdown(time.Second))
	assert.Equal(t, int32(10), executed.Load())
}

func TestWorkerPool_WithErrors(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 2, "test pool", time.Second)

	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Submit(func(ctx context.Context) error {
			return errors.New("test error")
		}))
	}
	require.NoError(t, pool.Submit(func(ctx context.Context) error {
		panic("boom")
	}))
	require.NoError(t, pool.Shutdown(time.Second))

	errorCount := 0
	for {
		select {
		case <-pool.Errors():
			errorCount++
			continue
		default:
		}
		break
	}
	assert.Equal(t, 6, errorCount, "panics are reported as errors")
}

func TestWorkerPool_Shutdown(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 2, "test pool", time.Second)

	executed := atomic.Int32{}
	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Submit(func(ctx context.Context) error {
			time.Sleep(20 * time.Millisecond)
			executed.Add(1)
			return nil
		}))
	}

	require.NoError(t, pool.Shutdown(time.Second))
	assert.Equal(t, int32(5), executed.Load(), "queued tasks drain before shutdown returns")

	assert.Error(t, pool.Submit(func(ctx context.Context) error { return nil }))
	assert.NoError(t, pool.Shutdown(time.Second), "second shutdown is a no-op")
}

func TestWorkerPool_Timeout(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1, "test pool", 50*time.Millisecond)

	require.NoError(t, pool.Submit(func(ctx context.Context) error {
		select {
		case <-time.After(2 * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}))
	require.NoError(t, pool.Shutdown(time.Second))

	select {
	case err := <-pool.Errors():
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	default:
		t.Fatal("expected the timed out task to report an error")
	}
}

func TestBatch(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	executed := atomic.Int32{}

	errs := Batch(context.Background(), items, 2, "test batch", time.Second, func(ctx context.Context, item int) error {
		executed.Add(1)
		return nil
	})

	require.Len(t, errs, len(items))
	assert.Empty(t, Failed(errs))
	assert.Equal(t, int32(5), executed.Load())
}

func TestBatch_ErrorsKeepTheirIndex(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	errs := Batch(context.Background(), items, 3, "test batch", time.Second, func(ctx context.Context, item int) error {
		switch {
		case item == 5:
			panic("five")
		case item%2 == 0:
			return errors.New("even number")
		}
		return nil
	})

	require.Len(t, errs, 5)
	assert.Equal(t, []int{1, 3, 4}, Failed(errs))
	assert.EqualError(t, errs[1], "even number")
	assert.Contains(t, errs[4].Error(), "panic: five")
	assert.NoError(t, errs[0])
}

func TestBatch_Empty(t *testing.T) {
	errs := Batch(context.Background(), []string(nil), 2, "test batch", time.Second, func(ctx context.Context, s string) error {
		t.Error("should not run")
		return nil
	})
	assert.Empty(t, errs)
}

func TestBatch_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	items := make([]int, 50)

	errs := Batch(ctx, items, 2, "test batch", time.Second, func(ctx context.Context, item int) error {
		return ctx.Err()
	})

	require.Len(t, errs, 50)
	for i, err := range errs {
		assert.Error(t, err, "item %d", i)
	}
	notRun := 0
	for _, err := range errs {
		if errors.Is(err, ErrNotRun) {
			notRun++
		}
	}
	assert.Positive(t, notRun, "a canceled batch leaves items unstarted")
}
