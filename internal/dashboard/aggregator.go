// Package dashboard builds the role-specific dashboards: it fans out to the downstream
// services of a role, merges whatever answered into one payload, and keeps that payload
// in a TTL cache.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrSnakeDoc/concierge/internal/cache"
	"github.com/MrSnakeDoc/concierge/internal/downstream"
	"github.com/MrSnakeDoc/concierge/internal/logger"
)

// Fetcher performs one downstream call. Implementations never fail past the Result.
type Fetcher interface {
	Fetch(ctx context.Context, service, path string) downstream.Result
}

// Caller is the authenticated identity behind a dashboard request.
type Caller struct {
	UserID string
	Role   Role
}

// Result is a dashboard and whether it was served from the cache.
type Result struct {
	Payload Payload
	Cached  bool
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the time source used for lastUpdated.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithRoles overrides the role table.
func WithRoles(roles map[Role]Definition) Option {
	return func(a *Aggregator) { a.roles = roles }
}

// Aggregator serves dashboards through a cache it owns.
type Aggregator struct {
	cache   cache.Cache
	fetcher Fetcher
	log     logger.Logger
	now     func() time.Time
	roles   map[Role]Definition

	// builds coalesces concurrent misses on the same cache key.
	builds singleflight.Group
}

// NewAggregator creates an aggregator reading through c and calling downstreams with f.
func NewAggregator(c cache.Cache, f Fetcher, log logger.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		cache:   c,
		fetcher: f,
		log:     log,
		now:     time.Now,
		roles:   Roles,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Dashboard returns the dashboard of role for caller.
//
// Downstream failures never fail the call; they show up as null fields and "down"
// health entries. Errors are ErrUnknownRole, ErrAuthenticationMissing (per-user role
// without a caller id, before any fetch) or ErrAggregationFailure.
func (a *Aggregator) Dashboard(ctx context.Context, role Role, caller Caller) (Result, error) {
	def, ok := a.roles[role]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}

	userID := strings.TrimSpace(caller.UserID)
	if def.PerUser && userID == "" {
		return Result{}, ErrAuthenticationMissing
	}

	if !def.Cached() {
		p, err := a.build(ctx, def, userID)
		if err != nil {
			return Result{}, err
		}
		return Result{Payload: p}, nil
	}

	key := def.CacheKey(userID)
	if p, ok := a.lookup(ctx, def, key); ok {
		return Result{Payload: p, Cached: true}, nil
	}

	// The shared build must not die with the first caller's request.
	shared := context.WithoutCancel(ctx)
	v, err, _ := a.builds.Do(key, func() (any, error) {
		// A build that finished between our miss and now already filled the cache.
		if p, ok := a.peek(shared, key); ok {
			return Result{Payload: p, Cached: true}, nil
		}
		p, err := a.build(shared, def, userID)
		if err != nil {
			return nil, err
		}
		a.store(shared, def, key, p)
		return Result{Payload: p}, nil
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

// ClearCache evicts every cached dashboard.
func (a *Aggregator) ClearCache(ctx context.Context) error {
	if err := a.cache.Flush(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrCacheClearFailure, err)
	}
	a.log.Info("dashboard cache cleared")
	return nil
}

// build fans out to every source of def and merges the results.
func (a *Aggregator) build(ctx context.Context, def Definition, userID string) (p Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("dashboard aggregation panicked",
				logger.String("role", string(def.Role)),
				logger.String("panic", fmt.Sprint(r)),
			)
			err = fmt.Errorf("%w: %v", ErrAggregationFailure, r)
		}
	}()

	start := time.Now()
	results := a.fanOut(ctx, def, userID)
	buildDuration.WithLabelValues(string(def.Role)).Observe(time.Since(start).Seconds())

	return a.merge(def, results), nil
}

// fanOut issues every call of def concurrently and waits for all of them.
// results[i] belongs to def.Sources[i].
func (a *Aggregator) fanOut(ctx context.Context, def Definition, userID string) []downstream.Result {
	results := make([]downstream.Result, len(def.Sources))

	var wg sync.WaitGroup
	for i, src := range def.Sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = a.fetch(ctx, src, userID)
		}()
	}
	wg.Wait()

	return results
}

func (a *Aggregator) fetch(ctx context.Context, src Source, userID string) (r downstream.Result) {
	defer func() {
		if p := recover(); p != nil {
			r = downstream.Result{
				Status: downstream.StatusDown,
				Err:    fmt.Errorf("fetch of %s panicked: %v", src.Service, p),
			}
		}
	}()
	return a.fetcher.Fetch(ctx, src.Service, src.ResolvePath(userID))
}

func (a *Aggregator) merge(def Definition, results []downstream.Result) Payload {
	p := Payload{
		Role:        def.Role,
		HealthKey:   def.HealthKey,
		Fields:      make(map[string]json.RawMessage, len(def.Sources)),
		Health:      make(map[string]downstream.Status, len(def.Sources)),
		LastUpdated: formatTimestamp(a.now()),
	}

	for i, src := range def.Sources {
		r := results[i]
		if r.Status == downstream.StatusHealthy && r.Data != nil {
			p.Fields[src.Field] = r.Data
			// A service backing several fields stays down once any of its calls failed.
			if p.Health[src.Service] != downstream.StatusDown {
				p.Health[src.Service] = downstream.StatusHealthy
			}
			continue
		}

		p.Fields[src.Field] = nil
		p.Health[src.Service] = downstream.StatusDown
		degradedFields.WithLabelValues(string(def.Role), src.Field).Inc()
		a.log.Warn("downstream service unavailable",
			logger.String("role", string(def.Role)),
			logger.String("service", src.Service),
			logger.String("field", src.Field),
			logger.Error(r.Err),
		)
	}

	return p
}

// lookup reads key from the cache. Backend and decode errors count as a miss.
func (a *Aggregator) lookup(ctx context.Context, def Definition, key string) (Payload, bool) {
	role := string(def.Role)

	raw, ok, err := a.cache.Get(ctx, key)
	if err != nil {
		cacheLookups.WithLabelValues(role, cacheError).Inc()
		a.log.Warn("dashboard cache read failed, rebuilding",
			logger.String("key", key),
			logger.Error(err),
		)
		return Payload{}, false
	}
	if !ok {
		cacheLookups.WithLabelValues(role, cacheMiss).Inc()
		return Payload{}, false
	}

	p, err := decodeEntry(raw)
	if err != nil {
		cacheLookups.WithLabelValues(role, cacheError).Inc()
		a.log.Warn("dashboard cache entry unreadable, rebuilding",
			logger.String("key", key),
			logger.Error(err),
		)
		return Payload{}, false
	}

	cacheLookups.WithLabelValues(role, cacheHit).Inc()
	return p, true
}

// peek is lookup without metrics or logs.
func (a *Aggregator) peek(ctx context.Context, key string) (Payload, bool) {
	raw, ok, err := a.cache.Get(ctx, key)
	if err != nil || !ok {
		return Payload{}, false
	}
	p, err := decodeEntry(raw)
	if err != nil {
		return Payload{}, false
	}
	return p, true
}

func (a *Aggregator) store(ctx context.Context, def Definition, key string, p Payload) {
	raw, err := encodeEntry(p)
	if err != nil {
		a.log.Error("failed to encode dashboard for cache", logger.String("key", key), logger.Error(err))
		return
	}
	if err := a.cache.Set(ctx, key, raw, def.TTL); err != nil {
		a.log.Warn("dashboard cache write failed",
			logger.String("key", key),
			logger.Error(err),
		)
	}
}
