// Package ratelimit implements a fixed-window request counter on Redis.
//
// The limiter fails open: when the cache cannot be reached it allows the request
// and flags the result instead of returning an error, so an outage of the cache
// never locks users out of signing in.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	keyPrefix      = "rl:"
	commandTimeout = 500 * time.Millisecond
)

// Result of one check. Error is set when the cache was unavailable and the
// request was allowed without counting.
type Result struct {
	Limited    bool          `json:"limited"`
	Remaining  int           `json:"remaining"`
	RetryAfter time.Duration `json:"retryAfter"`
	Error      bool          `json:"error"`
}

// ClientProvider hands out the shared Redis client.
type ClientProvider interface {
	Get(ctx context.Context) (*redis.Client, error)
}

// Observer receives limiter outcomes, e.g. for metrics.
type Observer interface {
	RateLimited(scope string)
	RateLimitFailOpen(scope string)
}

type Limiter struct {
	clients  ClientProvider
	scope    string
	limit    int
	window   time.Duration
	log      zerolog.Logger
	observer Observer
}

type Option func(*Limiter)

func WithObserver(o Observer) Option {
	return func(l *Limiter) { l.observer = o }
}

// New counts at most limit hits per key in each window under the given scope.
func New(clients ClientProvider, scope string, limit int, window time.Duration, log zerolog.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		clients: clients,
		scope:   scope,
		limit:   limit,
		window:  window,
		log:     log.With().Str("component", "ratelimit").Str("scope", scope).Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) Scope() string {
	return l.scope
}

// Allow records a hit for key and reports whether the caller is over the limit.
func (l *Limiter) Allow(ctx context.Context, key string) Result {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	client, err := l.clients.Get(ctx)
	if err != nil {
		return l.failOpen(err)
	}

	redisKey := keyPrefix + l.scope + ":" + key
	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	_, err = client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pttl = pipe.PTTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		return l.failOpen(err)
	}

	count := int(incr.Val())
	ttl := pttl.Val()
	// A key without expiry is a fresh window, or one whose expire was lost.
	if ttl < 0 {
		if err := client.PExpire(ctx, redisKey, l.window).Err(); err != nil {
			return l.failOpen(err)
		}
		ttl = l.window
	}

	if count > l.limit {
		if l.observer != nil {
			l.observer.RateLimited(l.scope)
		}
		return Result{Limited: true, Remaining: 0, RetryAfter: ttl}
	}
	return Result{Limited: false, Remaining: l.limit - count}
}

// Reset clears the window for key, e.g. after a successful sign-in.
func (l *Limiter) Reset(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	client, err := l.clients.Get(ctx)
	if err != nil {
		return
	}
	if err := client.Del(ctx, keyPrefix+l.scope+":"+key).Err(); err != nil {
		l.log.Warn().Err(err).Msg("rate limit reset failed")
	}
}

func (l *Limiter) failOpen(err error) Result {
	l.log.Warn().Err(err).Msg("rate limiter unavailable; allowing request")
	if l.observer != nil {
		l.observer.RateLimitFailOpen(l.scope)
	}
	return Result{Limited: false, Remaining: l.limit, Error: true}
}
