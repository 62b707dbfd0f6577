// Package cache holds the resolver's TTL caches: intent routes and
// recently captured domains. Entries expire on their own; failures
// evict eagerly so a broken skill is not retried from cache.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/unbrowse/unbrowse/pkg/types"
)

// Route remembers which skill answered an intent.
type Route struct {
	SkillID string
	Domain  string
	At      time.Time
}

// RouteCache maps a domain-scoped intent to the skill that served it
// last. Intents without a domain share the "global" scope.
type RouteCache struct {
	lru *expirable.LRU[string, Route]
}

// NewRouteCache creates a route cache bounded by size and ttl.
func NewRouteCache(size int, ttl time.Duration) *RouteCache {
	return &RouteCache{lru: expirable.NewLRU[string, Route](size, nil, ttl)}
}

func routeKey(domain, intent string) string {
	if domain == "" {
		domain = "global"
	}
	return domain + ":" + intent
}

// Get returns the cached route for (domain, intent) if still fresh.
func (c *RouteCache) Get(domain, intent string) (Route, bool) {
	return c.lru.Get(routeKey(domain, intent))
}

// Put records that skillID served (domain, intent).
func (c *RouteCache) Put(domain, intent, skillID string) {
	c.lru.Add(routeKey(domain, intent), Route{SkillID: skillID, Domain: domain, At: time.Now()})
}

// Evict drops the route after a failed execution.
func (c *RouteCache) Evict(domain, intent string) {
	c.lru.Remove(routeKey(domain, intent))
}

// Len returns the number of live routes.
func (c *RouteCache) Len() int { return c.lru.Len() }

// CapturedDomains remembers skills learned by live capture so an
// immediate follow-up resolve reuses them instead of recapturing.
type CapturedDomains struct {
	lru *expirable.LRU[string, *types.SkillManifest]
}

// NewCapturedDomains creates the post-capture cache.
func NewCapturedDomains(size int, ttl time.Duration) *CapturedDomains {
	return &CapturedDomains{lru: expirable.NewLRU[string, *types.SkillManifest](size, nil, ttl)}
}

// Get returns the freshly captured skill for a domain, if any.
func (c *CapturedDomains) Get(domain string) (*types.SkillManifest, bool) {
	return c.lru.Get(domain)
}

// Put records a successful capture.
func (c *CapturedDomains) Put(domain string, m *types.SkillManifest) {
	if m == nil {
		return
	}
	c.lru.Add(domain, m)
}

// Evict drops a domain whose captured skill stopped working.
func (c *CapturedDomains) Evict(domain string) {
	c.lru.Remove(domain)
}
