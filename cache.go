package remparo

import (
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// CacheEntry is a stored value with its expiry bookkeeping.
type CacheEntry struct {
	Value     any
	CreatedAt time.Time
	ExpiresAt time.Time
	hits      int64 // guarded by the owning shard's lock
}

// CacheStats is a point-in-time copy of the cache counters.
type CacheStats struct {
	Hits           int64
	Misses         int64
	Sets           int64
	Deletes        int64
	Evictions      int64
	Entries        int
	HitRatePercent float64
}

type cacheShard struct {
	mu    sync.RWMutex
	store map[string]*CacheEntry
}

// Cache is a sharded in-memory TTL cache. Expired entries are removed lazily
// on lookup and in bulk by the background sweeper. It is safe for concurrent
// use.
type Cache struct {
	shards    []*cacheShard
	numShards int

	defaultTTL    time.Duration
	sweepInterval time.Duration
	now           NowFunc
	logger        *zap.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	deletes   atomic.Int64
	evictions atomic.Int64

	sweepMu   sync.Mutex
	sweepStop chan struct{}
	sweepDone chan struct{}
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithDefaultTTL sets the TTL applied when Set is called without one.
func WithDefaultTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		c.defaultTTL = ttl
	}
}

// WithSweepInterval sets how often the background sweeper scans for expired entries.
func WithSweepInterval(d time.Duration) CacheOption {
	return func(c *Cache) {
		c.sweepInterval = d
	}
}

// WithCacheShards sets the number of shards (rounded up to at least 1).
func WithCacheShards(n int) CacheOption {
	return func(c *Cache) {
		if n > 0 {
			c.numShards = n
		}
	}
}

// WithCacheLogger sets the structured logger.
func WithCacheLogger(logger *zap.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithCacheNow sets the time source.
func WithCacheNow(now NowFunc) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a TTL cache with a 5 minute default TTL and a 60 second
// sweep interval. The sweeper does not run until StartSweeper is called.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		numShards:     16,
		defaultTTL:    5 * time.Minute,
		sweepInterval: 60 * time.Second,
		now:           time.Now,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.shards = make([]*cacheShard, c.numShards)
	for i := range c.shards {
		c.shards[i] = &cacheShard{store: make(map[string]*CacheEntry)}
	}

	c.logger.Info("cache initialized",
		zap.Duration("default_ttl", c.defaultTTL),
		zap.Duration("sweep_interval", c.sweepInterval),
		zap.Int("shards", c.numShards))

	return c
}

func (c *Cache) getShard(key string) *cacheShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%uint32(c.numShards)]
}

// Set stores value under key. The optional ttl overrides the default; a
// zero or negative override falls back to the default. Overwrites any
// existing entry.
func (c *Cache) Set(key string, value any, ttl ...time.Duration) {
	d := c.defaultTTL
	if len(ttl) > 0 && ttl[0] > 0 {
		d = ttl[0]
	}

	now := c.now()
	entry := &CacheEntry{
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(d),
	}

	shard := c.getShard(key)
	shard.mu.Lock()
	shard.store[key] = entry
	shard.mu.Unlock()

	c.sets.Inc()
	c.logger.Debug("cache set", zap.String("key", key), zap.Duration("ttl", d))
}

// Get returns the value for key if present and unexpired. An expired entry
// discovered here is deleted and counted as both a miss and an eviction.
// A fresh hit increments the entry's hit counter.
func (c *Cache) Get(key string) (any, bool) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, exists := shard.store[key]
	if !exists {
		c.misses.Inc()
		return nil, false
	}

	if c.now().After(entry.ExpiresAt) {
		delete(shard.store, key)
		c.misses.Inc()
		c.evictions.Inc()
		return nil, false
	}

	entry.hits++
	c.hits.Inc()
	return entry.Value, true
}

// Delete removes key and reports whether it existed.
func (c *Cache) Delete(key string) bool {
	shard := c.getShard(key)
	shard.mu.Lock()
	_, existed := shard.store[key]
	if existed {
		delete(shard.store, key)
	}
	shard.mu.Unlock()

	if existed {
		c.deletes.Inc()
		c.logger.Debug("cache delete", zap.String("key", key))
	}
	return existed
}

// Clear removes all entries. Counters are preserved.
func (c *Cache) Clear() {
	removed := 0
	for _, shard := range c.shards {
		shard.mu.Lock()
		removed += len(shard.store)
		shard.store = make(map[string]*CacheEntry)
		shard.mu.Unlock()
	}
	c.logger.Info("cache cleared", zap.Int("entries_removed", removed))
}

// Exists reports whether key is present and unexpired. It does not touch
// hit counters or stats.
func (c *Cache) Exists(key string) bool {
	shard := c.getShard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	entry, exists := shard.store[key]
	return exists && !c.now().After(entry.ExpiresAt)
}

// KeysWithPrefix returns all unexpired keys beginning with prefix.
func (c *Cache) KeysWithPrefix(prefix string) []string {
	now := c.now()
	var keys []string
	for _, shard := range c.shards {
		shard.mu.RLock()
		for key, entry := range shard.store {
			if strings.HasPrefix(key, prefix) && !now.After(entry.ExpiresAt) {
				keys = append(keys, key)
			}
		}
		shard.mu.RUnlock()
	}
	return keys
}

// InvalidatePrefix deletes every key beginning with prefix and returns the
// number removed. Used to bulk-invalidate related entries, e.g. all cached
// list queries for one user.
func (c *Cache) InvalidatePrefix(prefix string) int {
	keys := c.KeysWithPrefix(prefix)
	count := 0
	for _, key := range keys {
		if c.Delete(key) {
			count++
		}
	}

	c.logger.Info("cache prefix invalidated",
		zap.String("prefix", prefix), zap.Int("count", count))
	return count
}

// Len returns the number of stored entries, expired ones included until
// they are swept or touched.
func (c *Cache) Len() int {
	n := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		n += len(shard.store)
		shard.mu.RUnlock()
	}
	return n
}

// Stats returns a copy of the cache counters. Hit rate is a percentage
// rounded to two decimals, 0 when nothing has been looked up yet.
func (c *Cache) Stats() CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	rate := 0.0
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total) * 100
		rate = float64(int64(rate*100+0.5)) / 100
	}

	return CacheStats{
		Hits:           hits,
		Misses:         misses,
		Sets:           c.sets.Load(),
		Deletes:        c.deletes.Load(),
		Evictions:      c.evictions.Load(),
		Entries:        c.Len(),
		HitRatePercent: rate,
	}
}

// StartSweeper launches the background eviction loop. Calling it again
// while running is a no-op.
func (c *Cache) StartSweeper() {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()

	if c.sweepStop != nil {
		return
	}
	c.sweepStop = make(chan struct{})
	c.sweepDone = make(chan struct{})

	go c.sweepLoop(c.sweepStop, c.sweepDone)
	c.logger.Info("cache sweeper started", zap.Duration("interval", c.sweepInterval))
}

// StopSweeper cancels the eviction loop and waits for an in-flight cycle to
// finish. Safe to call when the sweeper is not running.
func (c *Cache) StopSweeper() {
	c.sweepMu.Lock()
	stop, done := c.sweepStop, c.sweepDone
	c.sweepStop, c.sweepDone = nil, nil
	c.sweepMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	c.logger.Info("cache sweeper stopped")
}

// sweepLoop runs cycles on a ticker until stopped. Cycles never overlap:
// the loop itself is the only goroutine that sweeps.
func (c *Cache) sweepLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweepExpired()
		case <-stop:
			return
		}
	}
}

// sweepExpired removes every expired entry, counting each as an eviction.
func (c *Cache) sweepExpired() {
	now := c.now()
	removed := 0
	for _, shard := range c.shards {
		shard.mu.Lock()
		for key, entry := range shard.store {
			if now.After(entry.ExpiresAt) {
				delete(shard.store, key)
				c.evictions.Inc()
				removed++
			}
		}
		shard.mu.Unlock()
	}

	if removed > 0 {
		c.logger.Debug("swept expired cache entries", zap.Int("count", removed))
	}
}
