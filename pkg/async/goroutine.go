package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/edpsych-connect/connect/pkg/observability"
)

// ErrNotRun is reported for batch items that never started because the
// context ended first
var ErrNotRun = errors.New("not run")

// SafeGo executes a function in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement
// - Error logging
//
// Use this instead of bare `go func()` to prevent goroutine leaks and crashes.
// The logger is taken from ctx.
//
// Example:
//
//	SafeGo(ctx, 10*time.Second, "invitation delivery", func(ctx context.Context) error {
//	    return notifier.DeliverInvitation(ctx, invitation)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	logger := observability.FromContext(parentCtx).WithField("task", taskName)

	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()
		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			// logged only; the caller has already returned
			logger.WithError(err).Warn("Background task failed")
		}
	}()
}

// WorkerPool manages a pool of workers that process tasks from a channel.
// Provides graceful shutdown and error collection.
type WorkerPool struct {
	workers      int
	taskName     string
	timeout      time.Duration
	logger       *observability.Logger
	workCh       chan func(context.Context) error
	doneCh       chan struct{}
	errCh        chan error
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
	shutdownOnce sync.Once
}

// NewWorkerPool creates a new worker pool.
//
// Example:
//
//	pool := NewWorkerPool(ctx, 4, "bulk user import", 30*time.Second)
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//	    return store.CreateUser(ctx, user)
//	})
func NewWorkerPool(ctx context.Context, workers int, taskName string, timeout time.Duration) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	logger := observability.FromContext(ctx).WithField("task", taskName)
	ctx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		workers:  workers,
		taskName: taskName,
		timeout:  timeout,
		logger:   logger,
		workCh:   make(chan func(context.Context) error, workers*2),
		doneCh:   make(chan struct{}),
		errCh:    make(chan error, workers*10),
		ctx:      ctx,
		cancel:   cancel,
	}

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				pool.worker(id)
			}(i)
		}
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// Submit adds a task to the worker pool.
// Returns error if pool is shut down.
func (p *WorkerPool) Submit(fn func(context.Context) error) (err error) {
	select {
	case <-p.doneCh:
		return fmt.Errorf("worker pool shut down")
	default:
	}

	// a concurrent Shutdown may close workCh under us
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker pool shut down")
		}
	}()

	select {
	case p.workCh <- fn:
		return nil
	case <-p.doneCh:
		return fmt.Errorf("worker pool shut down")
	}
}

// Shutdown gracefully shuts down the worker pool.
// Waits up to timeout for workers to finish current tasks.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	var shutdownErr error

	p.shutdownOnce.Do(func() {
		p.closeWork()

		select {
		case <-p.doneCh:
			p.cancel()
		case <-time.After(timeout):
			p.cancel()
			shutdownErr = fmt.Errorf("worker pool shutdown timed out after %v", timeout)
		}
	})

	return shutdownErr
}

// Errors returns a channel that receives worker errors.
// Non-blocking, use select to check for errors.
func (p *WorkerPool) Errors() <-chan error {
	return p.errCh
}

func (p *WorkerPool) closeWork() {
	p.closeOnce.Do(func() { close(p.workCh) })
}

func (p *WorkerPool) worker(id int) {
	defer observability.RecoverPanic(p.logger.WithField("worker", id), p.taskName)

	for {
		select {
		case <-p.ctx.Done():
			return

		case fn, ok := <-p.workCh:
			if !ok {
				return
			}
			p.run(fn)
		}
	}
}

func (p *WorkerPool) run(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	var err error
	func() {
		defer observability.RecoverPanicWithCallback(p.logger, p.taskName, func(r interface{}) {
			err = observability.PanicError(r)
		})
		err = fn(ctx)
	}()

	if err != nil {
		select {
		case p.errCh <- err:
		default:
			p.logger.WithError(err).Warn("Error channel full, dropping error")
		}
	}
}

// Batch runs fn for every item on a worker pool and returns one error slot per
// item, in input order: nil for items that succeeded. Items that never ran
// because ctx ended report ErrNotRun wrapped with the context error. A panic
// inside fn is reported as that item's error.
//
// Example:
//
//	errs := Batch(ctx, users, 4, "bulk user create", 10*time.Second, func(ctx context.Context, u User) error {
//	    return store.CreateUser(ctx, u)
//	})
//	for i, err := range errs {
//	    if err != nil {
//	        failures = append(failures, Failure{Index: i, Error: err.Error()})
//	    }
//	}
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	errs := make([]error, len(items))
	ran := make([]bool, len(items))
	if len(items) == 0 {
		return errs
	}

	pool := NewWorkerPool(ctx, workers, taskName, timeout)

	for i, item := range items {
		i, item := i, item
		if err := pool.Submit(func(ctx context.Context) (err error) {
			ran[i] = true
			defer func() {
				if r := recover(); r != nil {
					err = observability.PanicError(r)
				}
				errs[i] = err
			}()
			return fn(ctx, item)
		}); err != nil {
			break
		}
	}

	// drain everything submitted, then stop the pool
	pool.closeWork()
	<-pool.doneCh
	pool.cancel()

	for i := range items {
		if !ran[i] {
			cause := ctx.Err()
			if cause == nil {
				cause = errors.New("worker pool shut down")
			}
			errs[i] = fmt.Errorf("%w: %v", ErrNotRun, cause)
		}
	}
	return errs
}

// Failed returns the indexes of the non-nil errors of a Batch result
func Failed(errs []error) []int {
	var idx []int
	for i, err := range errs {
		if err != nil {
			idx = append(idx, i)
		}
	}
	return idx
}
