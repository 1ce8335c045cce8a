package cache

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/trailhound/trailhound/internal/models"
)

// FetchFunc performs the single upstream call for a cache miss
type FetchFunc func(ctx context.Context) ([]models.RawResult, error)

// Mirror is an optional external KV copy of the cache. Its unavailability
// silently degrades the cache to memory-only.
type Mirror interface {
	Get(ctx context.Context, key string) ([]models.RawResult, bool, error)
	Set(ctx context.Context, key string, results []models.RawResult, ttl time.Duration) error
}

// Outcome describes how a lookup was satisfied
type Outcome struct {
	Hit       bool // served from memory or mirror without an upstream call
	Coalesced bool // waited on another caller's in-flight fetch
}

type entry struct {
	key      string
	results  []models.RawResult
	storedAt time.Time
	ttl      time.Duration
}

// ResultCache maps (source, query fingerprint) to raw results with TTL,
// an LRU size cap, and at-most-one concurrent upstream fetch per key.
type ResultCache struct {
	mu        sync.Mutex
	entries   map[string]*list.Element
	lru       *list.List // front = most recently used
	cap       int
	ttl       time.Duration
	perSource map[string]time.Duration

	group  singleflight.Group
	mirror Mirror
	logger *slog.Logger
	now    func() time.Time

	hits, misses uint64
}

// New creates a result cache. maxEntries must be positive: the size cap
// is mandatory.
func New(maxEntries int, defaultTTL time.Duration, perSource map[string]time.Duration, mirror Mirror) *ResultCache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &ResultCache{
		entries:   make(map[string]*list.Element),
		lru:       list.New(),
		cap:       maxEntries,
		ttl:       defaultTTL,
		perSource: perSource,
		mirror:    mirror,
		logger:    slog.Default().With("component", "cache"),
		now:       time.Now,
	}
}

// TTLFor returns the TTL applied to a source's entries
func (c *ResultCache) TTLFor(source string) time.Duration {
	if ttl, ok := c.perSource[source]; ok && ttl > 0 {
		return ttl
	}
	return c.ttl
}

// GetOrFetch returns cached results for the fingerprint or performs
// exactly one upstream call, shared among all concurrent callers for the
// same key. Coalesced callers observe the same value and the same error.
// Errors are not cached; the next caller retries.
func (c *ResultCache) GetOrFetch(ctx context.Context, source, key string, fetch FetchFunc) ([]models.RawResult, Outcome, error) {
	if results, ok := c.lookup(key); ok {
		return results, Outcome{Hit: true}, nil
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		// Re-check under the flight: a racing caller may have filled the
		// entry between our miss and acquiring the flight.
		if results, ok := c.lookup(key); ok {
			return results, nil
		}

		if c.mirror != nil {
			if results, ok, merr := c.mirror.Get(ctx, key); merr != nil {
				c.logger.Debug("mirror read failed, degrading to memory-only", "error", merr)
			} else if ok {
				c.store(source, key, results)
				return results, nil
			}
		}

		results, ferr := fetch(ctx)
		if ferr != nil {
			return nil, ferr
		}
		c.store(source, key, results)

		if c.mirror != nil {
			if merr := c.mirror.Set(ctx, key, results, c.TTLFor(source)); merr != nil {
				c.logger.Debug("mirror write failed", "error", merr)
			}
		}
		return results, nil
	})
	if err != nil {
		return nil, Outcome{Coalesced: shared}, err
	}
	return v.([]models.RawResult), Outcome{Coalesced: shared}, nil
}

// lookup returns a live entry, evicting it if expired
func (c *ResultCache) lookup(key string) ([]models.RawResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	e := el.Value.(*entry)
	if c.now().Sub(e.storedAt) > e.ttl {
		c.removeLocked(el)
		c.misses++
		return nil, false
	}
	c.lru.MoveToFront(el)
	c.hits++
	return e.results, true
}

func (c *ResultCache) store(source, key string, results []models.RawResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry)
		e.results = results
		e.storedAt = c.now()
		e.ttl = c.TTLFor(source)
		c.lru.MoveToFront(el)
		return
	}

	el := c.lru.PushFront(&entry{
		key:      key,
		results:  results,
		storedAt: c.now(),
		ttl:      c.TTLFor(source),
	})
	c.entries[key] = el

	for len(c.entries) > c.cap {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}
}

func (c *ResultCache) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	c.lru.Remove(el)
	delete(c.entries, e.key)
}

// Len reports the number of live entries
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats reports hit and miss counters
func (c *ResultCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
