// Package cache memoizes verdicts across jobs. It is an accelerator only:
// a cold or lost cache changes latency, never results.
package cache

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Moxx-Company/validator-pro/internal/metrics"
	"github.com/Moxx-Company/validator-pro/internal/validation"
)

const (
	defaultTTL        = time.Hour
	defaultMaxEntries = 100_000
	evictFraction     = 10
)

// Config controls cache sizing.
type Config struct {
	TTL        time.Duration
	MaxEntries int
	Hasher     validation.Hasher
	Logger     *zap.Logger
}

type entry struct {
	verdict    validation.Verdict
	writtenAt  time.Time
	lastAccess time.Time
}

// ResultCache is a TTL cache with batch eviction by last access.
type ResultCache struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	max     int
	hasher  validation.Hasher
	logger  *zap.Logger
	now     func() time.Time
}

// New constructs a ResultCache.
func New(cfg Config) *ResultCache {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultMaxEntries
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultCache{
		entries: make(map[string]*entry),
		ttl:     cfg.TTL,
		max:     cfg.MaxEntries,
		hasher:  cfg.Hasher,
		logger:  logger,
		now:     time.Now,
	}
}

// Get returns the cached verdict for the normalized input, marked Cached.
func (c *ResultCache) Get(kind validation.Kind, normalized string) (validation.Verdict, bool) {
	key, ok := c.key(kind, normalized)
	if !ok {
		return validation.Verdict{}, false
	}
	now := c.now()

	c.mu.Lock()
	e, found := c.entries[key]
	if found && now.Sub(e.writtenAt) > c.ttl {
		delete(c.entries, key)
		found = false
	}
	if !found {
		c.mu.Unlock()
		metrics.ObserveCache(false)
		return validation.Verdict{}, false
	}
	e.lastAccess = now
	verdict := e.verdict.Clone()
	c.mu.Unlock()

	metrics.ObserveCache(true)
	verdict.Cached = true
	return verdict, true
}

// Set stores a verdict. Timeouts and processing errors are not cached since
// they describe this run, not the item.
func (c *ResultCache) Set(kind validation.Kind, normalized string, verdict validation.Verdict) {
	if verdict.Reason == validation.ReasonTimeout || verdict.Reason == validation.ReasonProcessingError {
		return
	}
	key, ok := c.key(kind, normalized)
	if !ok {
		return
	}
	now := c.now()
	stored := verdict.Clone()
	stored.Cached = false

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.max {
		c.evictLocked()
	}
	c.entries[key] = &entry{verdict: stored, writtenAt: now, lastAccess: now}
}

// Len returns the number of stored entries, expired ones included.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked drops the least recently accessed tenth of the entries.
func (c *ResultCache) evictLocked() {
	n := len(c.entries) / evictFraction
	if n < 1 {
		n = 1
	}
	type aged struct {
		key        string
		lastAccess time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{key: k, lastAccess: e.lastAccess})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].lastAccess.Before(all[j].lastAccess) })
	for _, a := range all[:n] {
		delete(c.entries, a.key)
	}
	metrics.ObserveCacheEvictions(n)
	c.logger.Debug("cache eviction", zap.Int("evicted", n), zap.Int("remaining", len(c.entries)))
}

func (c *ResultCache) key(kind validation.Kind, normalized string) (string, bool) {
	raw := string(kind) + ":" + normalized
	if c.hasher == nil {
		return raw, true
	}
	key, err := c.hasher.Hash([]byte(raw))
	if err != nil {
		c.logger.Warn("cache key hash failed", zap.Error(err))
		return "", false
	}
	return key, true
}
