package ai

import (
	"sync"
	"time"
)

// ModelPrice holds per-million-token prices for one model. The values are
// attached to usage metadata and passed through unexamined by the rest of
// the system.
type ModelPrice struct {
	PromptUSD     float64
	CompletionUSD float64
}

// defaultPrices seeds the cache; a loader can replace them at runtime.
var defaultPrices = map[string]ModelPrice{
	"gpt-4o":      {PromptUSD: 2.50, CompletionUSD: 10.00},
	"gpt-4o-mini": {PromptUSD: 0.15, CompletionUSD: 0.60},
}

// PriceLoader fetches current prices, keyed by model id.
type PriceLoader func() (map[string]ModelPrice, error)

// PricingCache caches model prices with a TTL. It is constructed once per
// process and injected into the client.
type PricingCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	loader    PriceLoader
	prices    map[string]ModelPrice
	fetchedAt time.Time
}

// NewPricingCache builds a cache. loader may be nil, in which case the
// built-in defaults are used for the life of the process.
func NewPricingCache(ttl time.Duration, loader PriceLoader) *PricingCache {
	return &PricingCache{
		ttl:    ttl,
		loader: loader,
		prices: defaultPrices,
	}
}

// Lookup returns the price for a model, refreshing expired entries through
// the loader. A failed refresh keeps serving the previous prices.
func (c *PricingCache) Lookup(model string) (ModelPrice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loader != nil && time.Since(c.fetchedAt) > c.ttl {
		if fresh, err := c.loader(); err == nil {
			c.prices = fresh
		}
		c.fetchedAt = time.Now()
	}
	price, ok := c.prices[model]
	return price, ok
}
