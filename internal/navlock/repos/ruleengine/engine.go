// Package ruleengine is a local declarativeNetRequest-style matching engine.
// Installed rules live in a persistent Store; reads go through a decision
// cache and a Bloom filter of rule hosts before touching the store.
package ruleengine

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/haukened/navlock/internal/navlock/common/clock"
	"github.com/haukened/navlock/internal/navlock/common/log"
	"github.com/haukened/navlock/internal/navlock/common/utils"
	"github.com/haukened/navlock/internal/navlock/domain"
)

// Options configures an Engine. Store, Cache and Factory are required.
type Options struct {
	Store   Store
	Cache   DecisionCache
	Factory HostFilterFactory
	FPRate  float64
	Clock   clock.Clock
	Logger  log.Logger
	Metrics DecisionMetrics
}

// Engine applies a cache → bloom → store pipeline on reads and swaps its
// in-memory snapshot atomically after every write.
type Engine struct {
	mu      sync.RWMutex
	store   Store
	cache   DecisionCache
	factory HostFilterFactory
	fpRate  float64
	clock   clock.Clock
	logger  log.Logger
	metrics DecisionMetrics

	hosts   HostFilter     // hosts with host-scoped rules
	generic []compiledRule // rules that apply to every host
	gen     uint64         // bumped on every snapshot swap
}

// New constructs an Engine and loads its snapshot from the store.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil || opts.Cache == nil || opts.Factory == nil {
		return nil, fmt.Errorf("ruleengine: store, cache and host filter factory are required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	e := &Engine{
		store:   opts.Store,
		cache:   opts.Cache,
		factory: opts.Factory,
		fpRate:  opts.FPRate,
		clock:   opts.Clock,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if err := e.refresh(); err != nil {
		return nil, err
	}
	return e, nil
}

// Replace removes the rules with the given IDs and installs add, all or
// nothing. Removing an ID that is not installed is not an error; adding an ID
// that is already installed is.
func (e *Engine) Replace(ctx context.Context, remove []int, add []domain.CompiledRule) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	indexed := make([]IndexedRule, 0, len(add))
	for _, r := range add {
		if err := r.Validate(); err != nil {
			return err
		}
		if _, err := compileMatcher(r.Matcher); err != nil {
			return fmt.Errorf("rule %d: %w", r.ID, err)
		}
		indexed = append(indexed, IndexedRule{Rule: r, Host: ruleHost(r)})
	}

	if err := e.store.Replace(remove, indexed, e.clock.Now().Unix()); err != nil {
		return err
	}
	if err := e.refresh(); err != nil {
		return fmt.Errorf("refresh snapshot: %w", err)
	}

	e.logger.Debug(map[string]any{
		"removed": len(remove),
		"added":   len(add),
	}, "engine_rules_replaced")
	return nil
}

// refresh rebuilds the host Bloom filter and the host-agnostic rule snapshot
// from the store, then swaps them in and purges the decision cache.
func (e *Engine) refresh() error {
	hosts, err := e.store.Hosts()
	if err != nil {
		return err
	}
	rules, err := e.store.RulesForHost("")
	if err != nil {
		return err
	}
	generic, err := compileRules(rules)
	if err != nil {
		return err
	}

	hf := e.factory.Build(hosts, e.fpRate)

	e.mu.Lock()
	e.hosts = hf
	e.generic = generic
	e.gen++
	e.cache.Purge()
	e.mu.Unlock()
	return nil
}

// Decide evaluates a navigation to rawURL of resource type rt against the
// installed rules. The highest priority matching rule wins; ties go to allow,
// then block, then redirect. Host-scoped rules that cannot be read are
// skipped, which leaves the catch-all in charge.
func (e *Engine) Decide(rawURL string, rt domain.ResourceType) domain.Decision {
	target, host := canonicalURL(rawURL)
	key := string(rt) + " " + target

	// 1) checkCache
	if d, ok := e.checkCache(key); ok {
		e.observe(d)
		return d
	}

	e.mu.RLock()
	candidates := e.generic
	hf := e.hosts
	gen := e.gen
	e.mu.RUnlock()

	// 2) checkBloom, 3) checkStore
	if host != "" && hf.MightHaveRules(host) {
		scoped, err := e.hostRules(host)
		if err != nil {
			e.logger.Warn(map[string]any{"host": host, "error": err.Error()}, "engine_host_rules_error")
		}
		if len(scoped) > 0 {
			candidates = append(append(make([]compiledRule, 0, len(candidates)+len(scoped)), candidates...), scoped...)
		}
	}

	d := evaluate(candidates, target, rt)

	// 4) updateCache, unless a replace swapped the snapshot meanwhile
	e.mu.Lock()
	if e.gen == gen {
		e.cache.Put(key, d)
	}
	e.mu.Unlock()

	e.observe(d)
	return d
}

func (e *Engine) checkCache(key string) (domain.Decision, bool) {
	e.mu.RLock()
	d, ok := e.cache.Get(key)
	e.mu.RUnlock()
	return d, ok
}

func (e *Engine) hostRules(host string) ([]compiledRule, error) {
	rules, err := e.store.RulesForHost(host)
	if err != nil {
		return nil, err
	}
	return compileRules(rules)
}

func (e *Engine) observe(d domain.Decision) {
	if e.metrics == nil {
		return
	}
	if !d.Matched {
		e.metrics.ObserveDecision("none")
		return
	}
	e.metrics.ObserveDecision(d.Action.String())
}

// Rules returns every installed rule ordered by ID.
func (e *Engine) Rules() ([]domain.CompiledRule, error) {
	rules, err := e.store.All()
	if err != nil {
		return nil, err
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}

// Stats reports store and cache counters.
func (e *Engine) Stats() (StoreStats, CacheStats) {
	e.mu.RLock()
	cs := e.cache.Stats()
	e.mu.RUnlock()
	return e.store.Stats(), cs
}

// canonicalURL returns rawURL in the form a browser matches against
// (lowercase scheme and host, no default port, "/" for an empty path) and its
// canonical host. Input without a host is returned unchanged with host "".
func canonicalURL(rawURL string) (string, string) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL, ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	hostname := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == defaultPorts[u.Scheme] {
		port = ""
	}
	switch {
	case port != "":
		u.Host = net.JoinHostPort(hostname, port)
	case strings.Contains(hostname, ":"):
		u.Host = "[" + hostname + "]"
	default:
		u.Host = hostname
	}
	if u.Path == "" && u.Opaque == "" {
		u.Path = "/"
		u.RawPath = ""
	}
	return u.String(), utils.CanonicalHost(hostname)
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
}
