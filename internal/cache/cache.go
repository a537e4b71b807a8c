// Package cache is an in-memory TTL cache for fetched upstream resources.
// Storage and background expiry come from go-common/cache; this package
// adds hit and miss counters, flushing and size totals.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/clambin/go-common/cache"
)

const (
	DefaultTTL         = 600 * time.Second
	DefaultCheckPeriod = 120 * time.Second
)

// forever stands in for "no expiry" and "no cleanup" in the backing store.
const forever = 100 * 365 * 24 * time.Hour

// Entry is a cached resource. Entries are never modified after insertion;
// callers must not write to Payload.
type Entry struct {
	Key         string
	Payload     []byte
	ContentType string
	InsertedAt  time.Time

	expiresAt time.Time
}

// IsExpired reports whether the entry is no longer valid at now.
func (e *Entry) IsExpired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Stats mirrors the counters reported on /status.
type Stats struct {
	Keys      int    `json:"keys"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	KeySize   int64  `json:"ksize"`
	ValueSize int64  `json:"vsize"`
}

type Option func(*Cache)

// WithTTL sets the entry lifetime. A non-positive ttl disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithCheckPeriod sets the sweep interval. A non-positive period disables
// the sweeper; expired entries are then only dropped on access.
func WithCheckPeriod(d time.Duration) Option {
	return func(c *Cache) { c.checkPeriod = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Cache maps upstream URLs to fetched bytes.
type Cache struct {
	mu    sync.RWMutex
	store *gocache.Cache[string, *Entry]
	keys  map[string]struct{}

	ttl         time.Duration
	checkPeriod time.Duration
	now         func() time.Time

	hits   atomic.Uint64
	misses atomic.Uint64

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a cache and starts its sweeper. Call Close to stop it.
func New(opts ...Option) *Cache {
	c := &Cache{
		ttl:         DefaultTTL,
		checkPeriod: DefaultCheckPeriod,
		now:         time.Now,
		stop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.store = c.newStore()
	c.keys = make(map[string]struct{})
	if c.checkPeriod > 0 {
		go c.sweepLoop()
	}
	return c
}

func (c *Cache) newStore() *gocache.Cache[string, *Entry] {
	expiry, cleanup := c.ttl, c.checkPeriod
	if expiry <= 0 {
		expiry = forever
	}
	if cleanup <= 0 {
		cleanup = forever
	}
	return gocache.New[string, *Entry](expiry, cleanup)
}

// lookup returns the live entry for key. Callers hold mu.
func (c *Cache) lookup(key string, now time.Time) (*Entry, bool) {
	e, ok := c.store.Get(key)
	if !ok || e == nil || e.IsExpired(now) {
		return nil, false
	}
	return e, true
}

// Get returns the live entry stored under key and counts a hit or a miss.
func (c *Cache) Get(key string) (*Entry, bool) {
	c.mu.RLock()
	e, ok := c.lookup(key, c.now())
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e, true
}

// RecordMiss counts a lookup that was answered without consulting the store.
func (c *Cache) RecordMiss() {
	c.misses.Add(1)
}

// Set stores payload under key, replacing any previous entry and
// restarting its expiry clock.
func (c *Cache) Set(key string, payload []byte, contentType string) {
	now := c.now()
	e := &Entry{
		Key:         key,
		Payload:     payload,
		ContentType: contentType,
		InsertedAt:  now,
	}
	if c.ttl > 0 {
		e.expiresAt = now.Add(c.ttl)
	}

	c.mu.Lock()
	c.store.Add(key, e)
	c.keys[key] = struct{}{}
	c.mu.Unlock()
}

// FlushAll drops every entry and returns how many live ones there were,
// the same number Stats reports as Keys. Hit and miss counters are kept.
func (c *Cache) FlushAll() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k := range c.keys {
		if _, ok := c.lookup(k, now); ok {
			n++
		}
	}
	c.store = c.newStore()
	c.keys = make(map[string]struct{})
	return n
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	return c.Stats().Keys
}

// Stats reports the counters and the size of the live entries.
func (c *Cache) Stats() Stats {
	now := c.now()
	s := Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for k := range c.keys {
		e, ok := c.lookup(k, now)
		if !ok {
			continue
		}
		s.Keys++
		s.KeySize += int64(len(k))
		s.ValueSize += int64(len(e.Payload) + len(e.ContentType))
	}
	return s
}

// Sweep forgets expired entries and returns how many were dropped.
func (c *Cache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k := range c.keys {
		if _, ok := c.lookup(k, now); !ok {
			c.store.Add(k, nil)
			delete(c.keys, k)
			n++
		}
	}
	return n
}

// Close stops the sweeper. The cache stays usable.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(c.checkPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.stop:
			return
		}
	}
}
