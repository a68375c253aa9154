// Package activationcache provides a TTL'd lookup cache in front of
// the Host's Actor resolution path: a ristretto.Cache keyed on a
// byte-encoded actor reference, populated on miss and read on every
// hot-path lookup, so a cheap local cache absorbs the bulk of repeat
// invocations to the same actor.
package activationcache

import (
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/actorxio/actorx/actorid"
	"github.com/actorxio/actorx/agent"
)

// DefaultTTL ties the cache entry lifetime to the idle-deactivate
// window, the span within which the underlying resolution could have
// changed. A stale hit is self-correcting, never silently permanent,
// since every Agent method itself fails cleanly once the underlying
// instance has been deactivated.
const DefaultTTL = 5 * time.Second

// NumCounters is sized at 10x the max entries, per the ristretto
// docs.
const (
	maxEntries            = 1_000_000
	numCountersMultiplier = 10
)

// Cache maps actorid.ActorID to its already-resolved agent.Agent.
type Cache struct {
	rc  *ristretto.Cache
	ttl time.Duration
}

// New constructs a Cache with ttl as the cache entry lifetime. A ttl
// of 0 uses DefaultTTL.
func New(ttl time.Duration) (*Cache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * numCountersMultiplier,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{rc: rc, ttl: ttl}, nil
}

func key(id actorid.ActorID) string {
	return id.RegID.String() + "\x00" + id.Instance.String()
}

// Get returns the cached Agent for id, if present and not yet expired.
func (c *Cache) Get(id actorid.ActorID) (agent.Agent, bool) {
	v, ok := c.rc.Get(key(id))
	if !ok {
		return nil, false
	}
	a, ok := v.(agent.Agent)
	return a, ok
}

// Set caches a for id with the Cache's configured TTL.
func (c *Cache) Set(id actorid.ActorID, a agent.Agent) {
	c.rc.SetWithTTL(key(id), a, 1, c.ttl)
}

// Del evicts id's cache entry, e.g. once its Agent has fully
// deactivated.
func (c *Cache) Del(id actorid.ActorID) {
	c.rc.Del(key(id))
}
