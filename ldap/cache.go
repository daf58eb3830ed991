package ldap

import (
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	gocache "github.com/patrickmn/go-cache"
)

const (
	defaultCacheTTL    = 30 * time.Second
	cacheSweepInterval = 5 * time.Minute
)

// entryCache memoizes link lookups by account name so a burst of
// reconciliation passes does not repeat identical directory searches.
// Entries expire quickly and writes invalidate their key.
type entryCache struct {
	c *gocache.Cache
}

func newEntryCache(ttl time.Duration) *entryCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &entryCache{c: gocache.New(ttl, cacheSweepInterval)}
}

func cacheKey(account string) string {
	return strings.ToLower(account)
}

func (e *entryCache) get(account string) ([]*ldap.Entry, bool) {
	v, ok := e.c.Get(cacheKey(account))
	if !ok {
		return nil, false
	}
	entries, ok := v.([]*ldap.Entry)
	return entries, ok
}

func (e *entryCache) put(account string, entries []*ldap.Entry) {
	e.c.Set(cacheKey(account), entries, gocache.DefaultExpiration)
}

func (e *entryCache) drop(account string) {
	e.c.Delete(cacheKey(account))
}
