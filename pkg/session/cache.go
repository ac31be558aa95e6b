package session

import (
	"context"
	"hash/fnv"
	"sync"
)

// shardCount is a power of two so the shard index is a cheap mask.
const shardCount = 16

type shard struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// Cache is a sharded read-through cache in front of a Store. Shards are
// locked independently so concurrent submissions for different listeners do
// not serialize on one mutex.
type Cache struct {
	store  Store
	shards [shardCount]shard
}

// NewCache returns a cache backed by store.
func NewCache(store Store) *Cache {
	c := &Cache{store: store}
	for i := range c.shards {
		c.shards[i].sessions = make(map[string]Session)
	}
	return c
}

func (c *Cache) shardFor(userID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &c.shards[h.Sum32()&(shardCount-1)]
}

// Lookup returns the session for userID, loading it from the store and
// populating the cache on a miss.
func (c *Cache) Lookup(ctx context.Context, userID string) (Session, error) {
	sh := c.shardFor(userID)

	sh.mu.RLock()
	s, ok := sh.sessions[userID]
	sh.mu.RUnlock()
	if ok {
		return s, nil
	}

	s, err := c.store.GetSession(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	sh.mu.Lock()
	sh.sessions[userID] = s
	sh.mu.Unlock()
	return s, nil
}

// Put stores s in the cache, replacing any cached value for the user.
func (c *Cache) Put(s Session) {
	sh := c.shardFor(s.UserID)
	sh.mu.Lock()
	sh.sessions[s.UserID] = s
	sh.mu.Unlock()
}

// Forget drops the cached session for userID so the next Lookup hits the
// store again.
func (c *Cache) Forget(userID string) {
	sh := c.shardFor(userID)
	sh.mu.Lock()
	delete(sh.sessions, userID)
	sh.mu.Unlock()
}
