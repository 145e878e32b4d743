// Package singleton holds long-lived clients that are built on first use.
//
// A Lazy value is constructed at most once at a time: the first caller starts the
// constructor and every concurrent caller waits on that in-flight construction
// instead of starting its own. The construction runs detached from the caller
// that started it, so a cancelled request never fails the build for the others.
// A failed or panicking construction is never cached and never leaves the guard
// held, so the next caller retries.
package singleton

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrClosed      = errors.New("singleton closed")
	ErrCoolingDown = errors.New("singleton construction cooling down")
	ErrUnhealthy   = errors.New("singleton unhealthy")
	ErrNotBuilt    = errors.New("singleton not built")
)

const DefaultBuildTimeout = 30 * time.Second

type Constructor[T any] func(ctx context.Context) (T, error)

type Option[T any] func(*Lazy[T])

// WithClose registers how an instance is released on Reset and Close.
func WithClose[T any](fn func(T) error) Option[T] {
	return func(l *Lazy[T]) { l.closeFn = fn }
}

// WithHealthCheck registers a liveness probe used by Check.
func WithHealthCheck[T any](fn func(context.Context, T) error) Option[T] {
	return func(l *Lazy[T]) { l.healthFn = fn }
}

// WithRetryCooldown makes callers fail fast for d after a failed construction.
func WithRetryCooldown[T any](d time.Duration) Option[T] {
	return func(l *Lazy[T]) { l.cooldown = d }
}

// WithBuildTimeout bounds a single construction. Defaults to DefaultBuildTimeout.
func WithBuildTimeout[T any](d time.Duration) Option[T] {
	return func(l *Lazy[T]) { l.buildTimeout = d }
}

// WithObserver is called after every construction attempt.
func WithObserver[T any](fn func(name string, took time.Duration, err error)) Option[T] {
	return func(l *Lazy[T]) { l.observe = fn }
}

type call[T any] struct {
	done  chan struct{}
	value T
	err   error
}

type Lazy[T any] struct {
	name         string
	construct    Constructor[T]
	closeFn      func(T) error
	healthFn     func(context.Context, T) error
	cooldown     time.Duration
	buildTimeout time.Duration
	observe      func(string, time.Duration, error)
	now          func() time.Time

	attempts atomic.Int64

	mu       sync.Mutex
	value    T
	ready    bool
	closed   bool
	inflight *call[T]
	failedAt time.Time
	lastErr  error
}

func New[T any](name string, construct Constructor[T], opts ...Option[T]) *Lazy[T] {
	l := &Lazy[T]{
		name:         name,
		construct:    construct,
		buildTimeout: DefaultBuildTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Lazy[T]) Name() string {
	return l.name
}

// Attempts reports how many times the constructor has been invoked.
func (l *Lazy[T]) Attempts() int64 {
	return l.attempts.Load()
}

// Ready reports whether an instance is cached.
func (l *Lazy[T]) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ready
}

// Peek returns the cached instance without constructing one.
func (l *Lazy[T]) Peek() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.ready
}

// Get returns the cached instance, joining or starting a construction when none
// exists. The context bounds only this caller's wait: the constructor keeps
// its values but not its cancellation, and is bounded by the build timeout.
func (l *Lazy[T]) Get(ctx context.Context) (T, error) {
	var zero T

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return zero, fmt.Errorf("%s: %w", l.name, ErrClosed)
	}
	if l.ready {
		v := l.value
		l.mu.Unlock()
		return v, nil
	}
	if c := l.inflight; c != nil {
		l.mu.Unlock()
		return l.wait(ctx, c)
	}
	if l.cooldown > 0 && l.lastErr != nil && l.now().Sub(l.failedAt) < l.cooldown {
		lastErr := l.lastErr
		l.mu.Unlock()
		return zero, fmt.Errorf("%s: %w: %v", l.name, ErrCoolingDown, lastErr)
	}
	c := &call[T]{done: make(chan struct{})}
	l.inflight = c
	l.mu.Unlock()

	go l.lead(context.WithoutCancel(ctx), c)
	return l.wait(ctx, c)
}

func (l *Lazy[T]) wait(ctx context.Context, c *call[T]) (T, error) {
	select {
	case <-c.done:
		return c.value, c.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (l *Lazy[T]) lead(ctx context.Context, c *call[T]) {
	start := l.now()
	var discard *T

	defer func() {
		l.mu.Lock()
		switch {
		case c.err != nil:
			if !errors.Is(c.err, context.Canceled) {
				l.failedAt = l.now()
				l.lastErr = c.err
			}
		case l.closed:
			v := c.value
			discard = &v
			var zero T
			c.value = zero
			c.err = fmt.Errorf("%s: %w", l.name, ErrClosed)
		default:
			l.value = c.value
			l.ready = true
			l.lastErr = nil
			l.failedAt = time.Time{}
		}
		l.inflight = nil
		l.mu.Unlock()

		if l.observe != nil {
			l.observe(l.name, l.now().Sub(start), c.err)
		}
		close(c.done)

		if discard != nil && l.closeFn != nil {
			_ = l.closeFn(*discard)
		}
	}()

	buildCtx, cancel := context.WithTimeout(ctx, l.buildTimeout)
	defer cancel()
	c.value, c.err = l.build(buildCtx)
}

func (l *Lazy[T]) build(ctx context.Context) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v = zero
			err = fmt.Errorf("init %s: constructor panic: %v", l.name, r)
		}
	}()

	l.attempts.Add(1)
	v, err = l.construct(ctx)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("init %s: %w", l.name, err)
	}
	return v, nil
}

// Check builds the instance if needed and runs the health probe against it.
// Probe failures wrap ErrUnhealthy.
func (l *Lazy[T]) Check(ctx context.Context) error {
	v, err := l.Get(ctx)
	if err != nil {
		return err
	}
	if l.healthFn == nil {
		return nil
	}
	if err := l.healthFn(ctx, v); err != nil {
		return fmt.Errorf("%s: %w: %v", l.name, ErrUnhealthy, err)
	}
	return nil
}

// Reset forgets and releases the cached instance so the next Get rebuilds it.
func (l *Lazy[T]) Reset() error {
	l.mu.Lock()
	v, had := l.value, l.ready
	var zero T
	l.value = zero
	l.ready = false
	l.lastErr = nil
	l.failedAt = time.Time{}
	l.mu.Unlock()

	if had && l.closeFn != nil {
		if err := l.closeFn(v); err != nil {
			return fmt.Errorf("close %s: %w", l.name, err)
		}
	}
	return nil
}

// Close releases the instance and makes every later Get fail with ErrClosed.
func (l *Lazy[T]) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return l.Reset()
}
