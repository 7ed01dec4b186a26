package governance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// RuleSource loads the active rules in scope for a module.
type RuleSource interface {
	ListActiveRules(ctx context.Context, module string) ([]*Rule, error)
}

// RuleCache is a read-mostly cache of active rules keyed by module.
// Concurrent misses for the same module share one load.
type RuleCache struct {
	source RuleSource
	ttl    time.Duration
	now    func() time.Time

	mu         sync.RWMutex
	entries    map[string]cacheEntry
	generation uint64

	group singleflight.Group
}

type cacheEntry struct {
	rules      []*Rule
	loadedAt   time.Time
	generation uint64
}

// NewRuleCache returns a cache over source. A ttl of zero keeps entries
// until Invalidate is called.
func NewRuleCache(source RuleSource, ttl time.Duration) *RuleCache {
	return &RuleCache{
		source:  source,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Rules returns the active rules for module. The returned rules are shared
// and must not be modified.
func (c *RuleCache) Rules(ctx context.Context, module string) ([]*Rule, error) {
	c.mu.RLock()
	e, ok := c.entries[module]
	gen := c.generation
	c.mu.RUnlock()
	if ok && e.generation == gen && (c.ttl <= 0 || c.now().Sub(e.loadedAt) < c.ttl) {
		return e.rules, nil
	}

	key := fmt.Sprintf("%s@%d", module, gen)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		rules, err := c.source.ListActiveRules(ctx, module)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.generation == gen {
			c.entries[module] = cacheEntry{rules: rules, loadedAt: c.now(), generation: gen}
		}
		c.mu.Unlock()
		return rules, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load governance rules for %s: %w", module, err)
	}
	return v.([]*Rule), nil
}

// Invalidate drops every cached entry. Loads already in flight are not
// stored.
func (c *RuleCache) Invalidate() {
	c.mu.Lock()
	c.generation++
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}
