package ai

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPricingCacheDefaults(t *testing.T) {
	cache := NewPricingCache(time.Hour, nil)

	price, ok := cache.Lookup("gpt-4o-mini")
	require.True(t, ok)
	assert.Equal(t, 0.15, price.PromptUSD)
	assert.Equal(t, 0.60, price.CompletionUSD)

	_, ok = cache.Lookup("unknown-model")
	assert.False(t, ok)
}

func TestPricingCacheRefreshesThroughLoader(t *testing.T) {
	loads := 0
	loader := func() (map[string]ModelPrice, error) {
		loads++
		return map[string]ModelPrice{
			"gpt-4o-mini": {PromptUSD: 0.30, CompletionUSD: 1.20},
		}, nil
	}
	cache := NewPricingCache(time.Hour, loader)

	price, ok := cache.Lookup("gpt-4o-mini")
	require.True(t, ok)
	assert.Equal(t, 0.30, price.PromptUSD, "expired defaults are refreshed on first lookup")
	assert.Equal(t, 1, loads)

	cache.Lookup("gpt-4o-mini")
	assert.Equal(t, 1, loads, "fresh entries are not reloaded")
}

func TestPricingCacheKeepsStalePricesOnLoaderFailure(t *testing.T) {
	loader := func() (map[string]ModelPrice, error) {
		return nil, errors.New("pricing endpoint down")
	}
	cache := NewPricingCache(time.Hour, loader)

	price, ok := cache.Lookup("gpt-4o")
	require.True(t, ok, "stale prices outlive a failed refresh")
	assert.Equal(t, 2.50, price.PromptUSD)
}
