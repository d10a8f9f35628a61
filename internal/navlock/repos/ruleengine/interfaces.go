package ruleengine

import "github.com/haukened/navlock/internal/navlock/domain"

// IndexedRule is a rule paired with the host it is indexed under. Host is
// empty for rules that can match any host, such as the catch-all.
type IndexedRule struct {
	Rule domain.CompiledRule
	Host string
}

// StoreStats captures high-level counts and metadata for the persistent store.
type StoreStats struct {
	Rules       uint64
	Hosts       uint64
	Generation  uint64 // incremented on every successful Replace
	UpdatedUnix int64  // seconds since epoch
}

// Store is the persistent rule index.
// - Replace: remove IDs and add rules in one transaction; any failure leaves the store unchanged
// - RulesForHost: rules indexed under host, by ascending ID ("" selects host-agnostic rules)
// - Hosts: every non-empty indexed host
type Store interface {
	Replace(remove []int, add []IndexedRule, updatedUnix int64) error
	RulesForHost(host string) ([]domain.CompiledRule, error)
	Hosts() ([]string, error)
	All() ([]domain.CompiledRule, error)
	Stats() StoreStats
	Close() error
}

// HostFilter reports whether a request host might have host-scoped rules.
// It may answer true for a host without rules, never false for one with rules.
type HostFilter interface {
	MightHaveRules(host string) bool
	Len() int
}

// HostFilterFactory builds the HostFilter for one rule snapshot.
type HostFilterFactory interface {
	Build(hosts []string, fpRate float64) HostFilter
}

// BloomSizer computes Bloom filter parameters from capacity (n) and target FP rate (p).
// It returns m (number of bits) and k (number of hash functions).
type BloomSizer interface {
	Size(n uint64, p float64) (m uint64, k uint8)
}

// CacheStats reports lightweight cache metrics.
type CacheStats struct {
	Capacity  int
	Size      int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// DecisionCache caches decisions by request key.
type DecisionCache interface {
	Get(key string) (domain.Decision, bool)
	Put(key string, d domain.Decision)
	Len() int
	Purge()
	Stats() CacheStats
}

// DecisionMetrics receives one observation per decision. *metrics.Metrics satisfies it.
type DecisionMetrics interface {
	ObserveDecision(action string)
}
