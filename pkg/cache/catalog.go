package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	appErrors "github.com/noah-isme/academic-desk/pkg/errors"
)

// Fetcher loads the complete remote collection for a catalog.
type Fetcher[T any] func(ctx context.Context) ([]T, error)

// RefreshObserver receives refresh timings and lookup outcomes from a Catalog.
type RefreshObserver interface {
	ObserveCatalogRefresh(catalog string, duration time.Duration, err error)
	RecordCatalogLookup(catalog string, hit bool)
}

// CatalogOptions configures a Catalog. A zero TTL keeps a loaded snapshot valid
// until Invalidate is called.
type CatalogOptions[T any] struct {
	Name          string
	TTL           time.Duration
	SlowThreshold time.Duration
	// LoadTimeout bounds one shared remote fetch, which is detached from the
	// context of the caller that started it.
	LoadTimeout time.Duration
	// Key returns the identifier used by Get. Entries with a zero key are not indexed.
	Key func(T) int64
	// Fallback is consulted when a read finds no snapshot and the remote fetch
	// fails. Its data is served but left stale so the next read retries upstream.
	Fallback Fetcher[T]
	Observer RefreshObserver
	Logger   *zap.Logger
	Now      func() time.Time
}

type snapshot[T any] struct {
	items      []T
	index      map[int64]int
	loadedAt   time.Time
	generation uint64
}

// Catalog holds a point-in-time copy of one remote collection with time based expiry.
// Snapshots are replaced as a whole, so readers never observe a partial refresh.
type Catalog[T any] struct {
	name     string
	fetch    Fetcher[T]
	key      func(T) int64
	fallback Fetcher[T]
	ttl      time.Duration
	slow     time.Duration
	timeout  time.Duration
	observer RefreshObserver
	logger   *zap.Logger
	now      func() time.Time

	mu          sync.RWMutex
	snap        *snapshot[T]
	invalidated bool
	group       singleflight.Group
}

// NewCatalog constructs a catalog cache around fetch.
func NewCatalog[T any](fetch Fetcher[T], opts CatalogOptions[T]) *Catalog[T] {
	if opts.Name == "" {
		opts.Name = "catalog"
	}
	if opts.SlowThreshold <= 0 {
		opts.SlowThreshold = 3 * time.Second
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Catalog[T]{
		name:     opts.Name,
		fetch:    fetch,
		key:      opts.Key,
		fallback: opts.Fallback,
		ttl:      opts.TTL,
		slow:     opts.SlowThreshold,
		timeout:  opts.LoadTimeout,
		observer: opts.Observer,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

// Name returns the catalog label used in logs and metrics.
func (c *Catalog[T]) Name() string {
	return c.name
}

// Refresh fetches the remote collection and swaps it in. On failure the
// previous snapshot is kept and an UPSTREAM_UNAVAILABLE error is returned.
func (c *Catalog[T]) Refresh(ctx context.Context) ([]T, error) {
	snap, err := c.refresh(ctx)
	if err != nil {
		return nil, err
	}
	return cloneItems(snap.items), nil
}

// Get returns the entry with the given id. The boolean is false when the
// entry is absent from a fresh snapshot.
func (c *Catalog[T]) Get(ctx context.Context, id int64) (T, bool, error) {
	var zero T
	snap, err := c.ensure(ctx)
	if err != nil {
		return zero, false, err
	}
	i, ok := snap.index[id]
	if !ok {
		c.logger.Debug("catalog entry missing", zap.String("catalog", c.name), zap.Int64("id", id))
		return zero, false, nil
	}
	return snap.items[i], true, nil
}

// List returns a copy of the current collection, refreshing first when stale.
func (c *Catalog[T]) List(ctx context.Context) ([]T, error) {
	snap, err := c.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return cloneItems(snap.items), nil
}

// IsExpired reports whether the next read will trigger a refresh.
func (c *Catalog[T]) IsExpired() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expiredLocked()
}

// Invalidate marks the current snapshot stale without discarding it.
func (c *Catalog[T]) Invalidate() {
	c.mu.Lock()
	c.invalidated = true
	c.mu.Unlock()
}

// LoadedAt returns when the current snapshot was fetched, zero if never.
func (c *Catalog[T]) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return time.Time{}
	}
	return c.snap.loadedAt
}

// Generation increments on every successful refresh. Derived caches use it
// to detect that the underlying collection changed.
func (c *Catalog[T]) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return 0
	}
	return c.snap.generation
}

// Len returns the size of the current snapshot without refreshing.
func (c *Catalog[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return 0
	}
	return len(c.snap.items)
}

func (c *Catalog[T]) ensure(ctx context.Context) (*snapshot[T], error) {
	c.mu.RLock()
	current := c.snap
	expired := c.expiredLocked()
	c.mu.RUnlock()

	if !expired {
		c.recordLookup(true)
		c.logger.Debug("catalog cache hit", zap.String("catalog", c.name))
		return current, nil
	}
	c.recordLookup(false)

	snap, err := c.refresh(ctx)
	if err != nil {
		if current != nil {
			c.logger.Warn("serving stale catalog snapshot",
				zap.String("catalog", c.name),
				zap.Time("loaded_at", current.loadedAt),
				zap.Error(err))
			return current, nil
		}
		if fallback, ok := c.loadFallback(ctx); ok {
			return fallback, nil
		}
		return nil, err
	}
	return snap, nil
}

func (c *Catalog[T]) refresh(ctx context.Context) (*snapshot[T], error) {
	ch := c.group.DoChan("refresh", func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.load(loadCtx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*snapshot[T]), nil
	case <-ctx.Done():
		return nil, appErrors.Wrap(ctx.Err(), appErrors.ErrUpstreamUnavailable.Code, appErrors.ErrUpstreamUnavailable.Status,
			fmt.Sprintf("%s catalog refresh abandoned", c.name))
	}
}

func (c *Catalog[T]) load(ctx context.Context) (*snapshot[T], error) {
	start := time.Now()
	items, err := c.fetch(ctx)
	duration := time.Since(start)

	if c.observer != nil {
		c.observer.ObserveCatalogRefresh(c.name, duration, err)
	}
	if duration > c.slow {
		c.logger.Warn("slow catalog refresh",
			zap.String("catalog", c.name),
			zap.Duration("duration", duration),
			zap.Duration("threshold", c.slow))
	}
	if err != nil {
		c.logger.Error("catalog refresh failed", zap.String("catalog", c.name), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrUpstreamUnavailable.Code, appErrors.ErrUpstreamUnavailable.Status,
			fmt.Sprintf("%s catalog unavailable", c.name))
	}

	next := c.install(items, false)
	c.logger.Info("catalog refreshed",
		zap.String("catalog", c.name),
		zap.Int("entries", len(next.items)),
		zap.Duration("duration", duration))
	return next, nil
}

func (c *Catalog[T]) loadFallback(ctx context.Context) (*snapshot[T], bool) {
	if c.fallback == nil {
		return nil, false
	}
	items, err := c.fallback(ctx)
	if err != nil {
		c.logger.Debug("catalog fallback unavailable", zap.String("catalog", c.name), zap.Error(err))
		return nil, false
	}
	c.logger.Warn("serving catalog from fallback", zap.String("catalog", c.name), zap.Int("entries", len(items)))
	return c.install(items, true), true
}

func (c *Catalog[T]) install(items []T, stale bool) *snapshot[T] {
	next := &snapshot[T]{
		items:    cloneItems(items),
		index:    make(map[int64]int, len(items)),
		loadedAt: c.now(),
	}
	if c.key != nil {
		for i, item := range next.items {
			id := c.key(item)
			if id == 0 {
				continue
			}
			if _, dup := next.index[id]; !dup {
				next.index[id] = i
			}
		}
	}

	c.mu.Lock()
	if c.snap != nil {
		next.generation = c.snap.generation
	}
	next.generation++
	c.snap = next
	c.invalidated = stale
	c.mu.Unlock()
	return next
}

func (c *Catalog[T]) expiredLocked() bool {
	if c.snap == nil || c.invalidated {
		return true
	}
	if c.ttl <= 0 {
		return false
	}
	return c.now().Sub(c.snap.loadedAt) >= c.ttl
}

func (c *Catalog[T]) recordLookup(hit bool) {
	if c.observer != nil {
		c.observer.RecordCatalogLookup(c.name, hit)
	}
}

func cloneItems[T any](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	return out
}
