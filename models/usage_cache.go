package models

import (
	"strings"

	"github.com/hireloop/entitlements-engine/utils"
)

const CACHE_KEY_VERSION = "1"

// UsageCache expires the entitlement-usage views the web application caches
// per holder and feature. The engine never writes these entries; it only
// invalidates them when a commit or an admin override changes the numbers
// they were computed from.
type UsageCache struct {
	CacheStore Cacher
}

func NewUsageCache(cacheStore *Cacher) *UsageCache {
	return &UsageCache{
		CacheStore: *cacheStore,
	}
}

func (cache *UsageCache) Expire(holder Holder, featureKey string) utils.Result[bool] {
	keyParts := []string{
		"entitlement-usage",
		CACHE_KEY_VERSION,
		holder.Key(),
		featureKey,
	}

	cacheKey := strings.Join(keyParts, "/")

	return cache.CacheStore.ExpireKey(cacheKey)
}
