package authz

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheKey identifies one membership lookup
type cacheKey struct {
	actorID    int64
	businessID int64
}

// cacheEntry records a resolved membership, or its absence, with an expiry.
// The TTL only bounds staleness for the grant-widening direction; every
// membership write invalidates synchronously, so a narrowed grant never
// survives in the cache.
type cacheEntry struct {
	role      Role
	found     bool
	expiresAt time.Time
}

type membershipCache struct {
	entries *lru.Cache[cacheKey, cacheEntry]
	ttl     time.Duration
}

func newMembershipCache(size int, ttl time.Duration) *membershipCache {
	entries, err := lru.New[cacheKey, cacheEntry](size)
	if err != nil {
		// lru.New only fails for size <= 0, which WithCache filters out
		panic(err)
	}
	return &membershipCache{entries: entries, ttl: ttl}
}

func (c *membershipCache) get(actorID, businessID int64) (Role, bool, bool) {
	key := cacheKey{actorID: actorID, businessID: businessID}
	entry, ok := c.entries.Get(key)
	if !ok {
		return "", false, false
	}
	if time.Now().After(entry.expiresAt) {
		c.entries.Remove(key)
		return "", false, false
	}
	return entry.role, entry.found, true
}

func (c *membershipCache) put(actorID, businessID int64, role Role, found bool) {
	c.entries.Add(cacheKey{actorID: actorID, businessID: businessID}, cacheEntry{
		role:      role,
		found:     found,
		expiresAt: time.Now().Add(c.ttl),
	})
}

func (c *membershipCache) invalidate(actorID, businessID int64) {
	c.entries.Remove(cacheKey{actorID: actorID, businessID: businessID})
}

func (c *membershipCache) invalidateBusiness(businessID int64) {
	for _, key := range c.entries.Keys() {
		if key.businessID == businessID {
			c.entries.Remove(key)
		}
	}
}
