package lru

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/navlock/internal/navlock/domain"
	"github.com/haukened/navlock/internal/navlock/repos/ruleengine"
)

// decisionCache is an LRU-backed implementation of ruleengine.DecisionCache.
// It tracks basic metrics: hits, misses, and evictions.
type decisionCache struct {
	lru       *lru.Cache[string, domain.Decision]
	capacity  int
	hits      uint64
	misses    uint64
	evictions uint64
}

// disabledCache is a no-op DecisionCache used when size <= 0.
type disabledCache struct {
	misses uint64
}

// newLRU is swappable in tests.
var newLRU = lru.NewWithEvict[string, domain.Decision]

// New creates a new DecisionCache with the given capacity. If size <= 0, a
// disabled cache is returned that always misses.
func New(size int) (ruleengine.DecisionCache, error) {
	if size <= 0 {
		return &disabledCache{}, nil
	}

	dc := &decisionCache{capacity: size}
	// Purge-induced evictions are counted too.
	cache, err := newLRU(size, func(_ string, _ domain.Decision) {
		atomic.AddUint64(&dc.evictions, 1)
	})
	if err != nil {
		return nil, err
	}
	dc.lru = cache
	return dc, nil
}

// Get looks up a decision by request key.
func (c *decisionCache) Get(key string) (domain.Decision, bool) {
	if val, ok := c.lru.Get(key); ok {
		atomic.AddUint64(&c.hits, 1)
		return val, true
	}
	atomic.AddUint64(&c.misses, 1)
	return domain.Decision{}, false
}

func (c *decisionCache) Put(key string, d domain.Decision) {
	c.lru.Add(key, d)
}

func (c *decisionCache) Len() int { return c.lru.Len() }

func (c *decisionCache) Purge() { c.lru.Purge() }

func (c *decisionCache) Stats() ruleengine.CacheStats {
	return ruleengine.CacheStats{
		Capacity:  c.capacity,
		Size:      c.lru.Len(),
		Hits:      atomic.LoadUint64(&c.hits),
		Misses:    atomic.LoadUint64(&c.misses),
		Evictions: atomic.LoadUint64(&c.evictions),
	}
}

// disabledCache implementation

func (d *disabledCache) Get(string) (domain.Decision, bool) {
	atomic.AddUint64(&d.misses, 1)
	return domain.Decision{}, false
}

func (d *disabledCache) Put(string, domain.Decision) {}

func (d *disabledCache) Len() int { return 0 }

func (d *disabledCache) Purge() {}

func (d *disabledCache) Stats() ruleengine.CacheStats {
	return ruleengine.CacheStats{Misses: atomic.LoadUint64(&d.misses)}
}

var _ ruleengine.DecisionCache = (*decisionCache)(nil)
var _ ruleengine.DecisionCache = (*disabledCache)(nil)
