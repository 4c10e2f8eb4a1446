package account

import (
	"sync"
	"time"
)

// Cache is a process-local TTL cache of account snapshots. It is an
// optimization only: every mutation invalidates the entry before the
// operation returns, and a cold cache produces identical behavior.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
	nowFunc func() time.Time
}

type cacheEntry struct {
	snapshot  Account
	fetchedAt time.Time
}

// NewCache constructs a snapshot cache. A non-positive ttl disables caching.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		nowFunc: time.Now,
	}
}

// Get returns the cached snapshot if it is still fresh.
func (c *Cache) Get(accountID string) (Account, bool) {
	if c == nil || c.ttl <= 0 {
		return Account{}, false
	}

	c.mu.RLock()
	entry, ok := c.entries[accountID]
	c.mu.RUnlock()

	if !ok || c.nowFunc().Sub(entry.fetchedAt) >= c.ttl {
		return Account{}, false
	}
	return entry.snapshot, true
}

// Put stores a fresh snapshot.
func (c *Cache) Put(acct Account) {
	if c == nil || c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	c.entries[acct.ID] = cacheEntry{snapshot: acct, fetchedAt: c.nowFunc()}
	c.mu.Unlock()
}

// Invalidate drops the account's entry. Called synchronously after every
// successful balance or storage mutation.
func (c *Cache) Invalidate(accountID string) {
	if c == nil {
		return
	}

	c.mu.Lock()
	delete(c.entries, accountID)
	c.mu.Unlock()
}
