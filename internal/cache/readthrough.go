package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/walletscope/walletscope/internal/logging"
	"github.com/walletscope/walletscope/internal/metrics"
	"github.com/walletscope/walletscope/internal/traces"
)

// DefaultComputeTimeout bounds a compute when no timeout is configured.
const DefaultComputeTimeout = 10 * time.Second

// Option configures ReadThrough and StaleTolerant.
type Option func(*core)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *core) { c.now = now }
}

// WithComputeTimeout bounds every compute call.
func WithComputeTimeout(d time.Duration) Option {
	return func(c *core) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// core holds what ReadThrough and StaleTolerant share.
type core struct {
	name    string
	backend Backend
	group   singleflight.Group
	now     func() time.Time
	timeout time.Duration
}

func newCore(name string, backend Backend, opts []Option) *core {
	c := &core{name: name, backend: backend, now: time.Now, timeout: DefaultComputeTimeout}
	for _, o := range opts {
		o(c)
	}
	return c
}

// lookup returns the stored entry or nil. Backend errors are logged and
// treated as a miss so a cache outage degrades to computing.
func (c *core) lookup(ctx context.Context, key string) *Entry {
	e, err := c.backend.Get(ctx, key)
	if err == nil {
		return e
	}
	if !errors.Is(err, ErrMiss) {
		metrics.CacheLookupsTotal.WithLabelValues(c.name, "error").Inc()
		logging.L(ctx).Warn("cache backend read failed", "cache", c.name, "key", key, "error", err)
	}
	return nil
}

// compute runs fn once per key across concurrent callers and stores the
// result. The compute is detached from the first caller's cancellation so
// one departing caller cannot fail the others; it is bounded by c.timeout.
func (c *core) compute(ctx context.Context, key string, ttl, retain time.Duration, fn func(context.Context) (json.RawMessage, error)) (*Entry, error) {
	if floor := time.Duration(TTLSeconds(ttl)) * time.Second; retain < floor {
		retain = floor
	}
	ch := c.group.DoChan(key, func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		cctx, span := traces.StartSpan(cctx, "cache.compute", traces.CacheKey(key))
		defer span.End()

		raw, err := fn(cctx)
		if err != nil {
			traces.Fail(span, err)
			return nil, err
		}
		e := &Entry{
			Key:        key,
			Value:      raw,
			StoredAt:   c.now().UTC(),
			TTLSeconds: TTLSeconds(ttl),
		}
		if err := c.backend.Set(cctx, e, retain); err != nil {
			metrics.CacheLookupsTotal.WithLabelValues(c.name, "error").Inc()
			logging.L(ctx).Warn("cache backend write failed", "cache", c.name, "key", key, "error", err)
		}
		return e, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Entry), nil
	}
}

func decode[T any](e *Entry) (T, error) {
	var v T
	if err := json.Unmarshal(e.Value, &v); err != nil {
		return v, fmt.Errorf("decode cached %s: %w", e.Key, err)
	}
	return v, nil
}

func encode[T any](fn func(context.Context) (T, error)) func(context.Context) (json.RawMessage, error) {
	return func(ctx context.Context) (json.RawMessage, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	}
}

// ReadThrough memoises a compute for ttl. Only fresh entries are served;
// a compute failure is returned to the caller.
type ReadThrough[T any] struct {
	c *core
}

// NewReadThrough creates a fresh-only cache. name labels metrics.
func NewReadThrough[T any](name string, backend Backend, opts ...Option) *ReadThrough[T] {
	return &ReadThrough[T]{c: newCore(name, backend, opts)}
}

// GetOrCompute returns the cached value for key if it is younger than ttl,
// otherwise computes, stores and returns a new value.
func (r *ReadThrough[T]) GetOrCompute(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if e := r.c.lookup(ctx, key); e != nil && e.FreshAt(r.c.now()) {
		if v, err := decode[T](e); err == nil {
			metrics.CacheLookupsTotal.WithLabelValues(r.c.name, "hit").Inc()
			return v, nil
		}
	}
	metrics.CacheLookupsTotal.WithLabelValues(r.c.name, "miss").Inc()

	e, err := r.c.compute(ctx, key, ttl, ttl, encode(fn))
	if err != nil {
		var zero T
		return zero, err
	}
	return decode[T](e)
}

// Result is a StaleTolerant read. Stale is true when the origin failed and
// a retained entry past its TTL was served instead.
type Result[T any] struct {
	Value    T
	Stale    bool
	StoredAt time.Time
	TTL      time.Duration
}

// Age returns how old the served value is at now.
func (r Result[T]) Age(now time.Time) time.Duration {
	return now.Sub(r.StoredAt)
}

// StaleTolerant memoises origin lookups. Entries are retained for
// ttl + staleWindow; past ttl they are only served when the origin fails.
type StaleTolerant[T any] struct {
	c           *core
	staleWindow time.Duration
}

// NewStaleTolerant creates an origin-backed cache. name labels metrics.
func NewStaleTolerant[T any](name string, backend Backend, staleWindow time.Duration, opts ...Option) *StaleTolerant[T] {
	return &StaleTolerant[T]{c: newCore(name, backend, opts), staleWindow: staleWindow}
}

// GetOrCompute serves a fresh entry, or computes a new one, or on compute
// failure falls back to a retained stale entry. With nothing retained the
// error wraps ErrOriginUnavailable.
func (s *StaleTolerant[T]) GetOrCompute(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) (T, error)) (Result[T], error) {
	prev := s.c.lookup(ctx, key)
	if prev != nil && prev.FreshAt(s.c.now()) {
		if v, err := decode[T](prev); err == nil {
			metrics.CacheLookupsTotal.WithLabelValues(s.c.name, "hit").Inc()
			return Result[T]{Value: v, StoredAt: prev.StoredAt, TTL: prev.TTL()}, nil
		}
		prev = nil
	}

	e, err := s.c.compute(ctx, key, ttl, ttl+s.staleWindow, encode(fn))
	if err == nil {
		metrics.CacheLookupsTotal.WithLabelValues(s.c.name, "miss").Inc()
		v, err := decode[T](e)
		if err != nil {
			return Result[T]{}, err
		}
		return Result[T]{Value: v, StoredAt: e.StoredAt, TTL: e.TTL()}, nil
	}
	if ctx.Err() != nil {
		return Result[T]{}, ctx.Err()
	}

	if prev != nil {
		if v, derr := decode[T](prev); derr == nil {
			metrics.CacheLookupsTotal.WithLabelValues(s.c.name, "stale").Inc()
			logging.L(ctx).Warn("origin failed, serving stale entry",
				"cache", s.c.name, "key", key,
				"age", s.c.now().Sub(prev.StoredAt).String(), "error", err)
			return Result[T]{Value: v, Stale: true, StoredAt: prev.StoredAt, TTL: prev.TTL()}, nil
		}
	}
	metrics.CacheLookupsTotal.WithLabelValues(s.c.name, "error").Inc()
	return Result[T]{}, fmt.Errorf("%w: %w", ErrOriginUnavailable, err)
}
