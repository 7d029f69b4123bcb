// Package cache holds the dispatcher's intent-classification route cache.
// It keeps the teacher's semantic cache's hash-key-plus-TTL idiom
// (internal/cache/semantic.go) but repurposes it: the value cached here is
// a routing decision, not an LLM response, so there is no embedding
// service or similarity search, only an exact hash match.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/siamtech/agent-gateway/internal/metrics"
	"github.com/siamtech/agent-gateway/internal/models"
)

// RouteDecision is the cached outcome of classifying one question for one
// tenant: which agent the dispatcher selected and with what confidence.
type RouteDecision struct {
	Agent      models.AgentType `json:"agent"`
	Confidence float64          `json:"confidence"`
}

// RouteCache caches dispatcher routing decisions per tenant+question so a
// repeated or near-immediately-repeated question skips LLM-tiebreak
// classification entirely.
type RouteCache struct {
	redis *redis.Client
	ttl   time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// Stats is a point-in-time read of the cache's hit/miss counters, for
// GET /admin/cache/stats (spec §9 supplemented admin surface).
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

func (c *RouteCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

func NewRouteCache(redisURL string, ttl time.Duration) (*RouteCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RouteCache{redis: redis.NewClient(opt), ttl: ttl}, nil
}

func (c *RouteCache) hashQuestion(tenantID, question string) string {
	sum := sha256.Sum256([]byte(tenantID + "\x00" + question))
	return fmt.Sprintf("%x", sum)
}

// Get returns a previously cached routing decision for this tenant and
// question text, if one is still live.
func (c *RouteCache) Get(ctx context.Context, tenantID, question string) (RouteDecision, bool) {
	key := "route:" + c.hashQuestion(tenantID, question)

	raw, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		c.misses.Add(1)
		metrics.RouteCacheHitsTotal.WithLabelValues("miss").Inc()
		return RouteDecision{}, false
	}

	var decision RouteDecision
	if err := json.Unmarshal([]byte(raw), &decision); err != nil {
		c.misses.Add(1)
		metrics.RouteCacheHitsTotal.WithLabelValues("miss").Inc()
		return RouteDecision{}, false
	}

	c.hits.Add(1)
	metrics.RouteCacheHitsTotal.WithLabelValues("hit").Inc()
	return decision, true
}

// Put stores a routing decision for tenantID+question for the cache's TTL.
func (c *RouteCache) Put(ctx context.Context, tenantID, question string, decision RouteDecision) {
	key := "route:" + c.hashQuestion(tenantID, question)
	raw, err := json.Marshal(decision)
	if err != nil {
		return
	}
	c.redis.Set(ctx, key, raw, c.ttl)
}
