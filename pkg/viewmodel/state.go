package viewmodel

import (
	"context"
	"sync"
)

// Snapshot is a point-in-time copy of a State
type Snapshot[T any] struct {
	Value     T
	IsLoading bool
	Err       error
}

// Listener is notified with a fresh snapshot after every state change
type Listener[T any] func(Snapshot[T])

// State is a mutex-guarded value shared between a view model and its
// subscribers
type State[T any] struct {
	mu        sync.Mutex
	value     T
	err       error
	inFlight  int
	closed    bool
	nextID    int
	listeners map[int]Listener[T]

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a State bound to parent. Cancelling parent cancels in-flight
// calls the same way Close does, without freezing the state.
func New[T any](parent context.Context, initial T) *State[T] {
	ctx, cancel := context.WithCancel(parent)
	return &State[T]{
		value:     initial,
		listeners: make(map[int]Listener[T]),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Context is cancelled when the state is closed
func (s *State[T]) Context() context.Context {
	return s.ctx
}

// Snapshot returns the current state
func (s *State[T]) Snapshot() Snapshot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *State[T]) snapshotLocked() Snapshot[T] {
	return Snapshot[T]{
		Value:     s.value,
		IsLoading: s.inFlight > 0,
		Err:       s.err,
	}
}

// Subscribe registers fn for change notifications and returns a function that
// removes it. Listeners run synchronously on the goroutine that changed the
// state and must not call back into Run.
func (s *State[T]) Subscribe(fn Listener[T]) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Close cancels in-flight calls and detaches all listeners. Results that
// arrive afterwards are discarded.
func (s *State[T]) Close() {
	s.mu.Lock()
	s.closed = true
	s.listeners = make(map[int]Listener[T])
	s.mu.Unlock()
	s.cancel()
}

// Closed reports whether Close has been called
func (s *State[T]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Set replaces the value outside of a call
func (s *State[T]) Set(value T) {
	s.update(func() { s.value = value })
}

func (s *State[T]) update(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	fn()
	s.notifyAndUnlock()
}

// notifyAndUnlock must be called with mu held
func (s *State[T]) notifyAndUnlock() {
	snap := s.snapshotLocked()
	listeners := make([]Listener[T], 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}

// Run performs call while the state reports IsLoading. The context handed
// to call is ctx, additionally cancelled when the state is closed. On success
// apply folds the result into the current value and the error is cleared; on
// failure the error is recorded. Either way the result and error are returned
// to the caller unchanged. A nil apply leaves the value untouched.
func Run[T, R any](ctx context.Context, s *State[T], call func(ctx context.Context) (R, error), apply func(current T, result R) T) (R, error) {
	s.begin()
	return finish(ctx, s, call, apply)
}

// Start is Run in the background. The state reports IsLoading before Start
// returns; the returned channel is closed once the call has settled.
func Start[T, R any](ctx context.Context, s *State[T], call func(ctx context.Context) (R, error), apply func(current T, result R) T) <-chan struct{} {
	s.begin()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = finish(ctx, s, call, apply)
	}()
	return done
}

func (s *State[T]) begin() {
	s.mu.Lock()
	s.inFlight++
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.err = nil
	s.notifyAndUnlock()
}

func finish[T, R any](ctx context.Context, s *State[T], call func(ctx context.Context) (R, error), apply func(current T, result R) T) (R, error) {
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()
	if s.ctx.Err() != nil {
		cancel()
	}

	result, err := call(callCtx)

	s.mu.Lock()
	s.inFlight--
	if s.closed {
		s.mu.Unlock()
		return result, err
	}
	if err != nil {
		s.err = err
	} else if apply != nil {
		s.value = apply(s.value, result)
	}
	s.notifyAndUnlock()

	return result, err
}
