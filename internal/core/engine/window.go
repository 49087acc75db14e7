package engine

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/tollgate/tollgate/internal/core"
)

// Store is the counter store consulted by the engine. The in-memory
// WindowStore below is the only implementation; the interface is the
// substitution point if counters ever move to a shared external store.
type Store interface {
	// CurrentCount reports the count and effective window start for a key
	// after resolving rollover. It never mutates: when the window has
	// elapsed the count is logically zero and the window start is now, but
	// the physical reset only commits on the next Increment.
	CurrentCount(key core.Key, now time.Time, window time.Duration) (count int, windowStart time.Time, err error)

	// Increment atomically rolls the window over if needed, then increments
	// and returns the new count. This is the sole mutating operation.
	Increment(key core.Key, now time.Time, window time.Duration) (count int, windowStart time.Time, err error)
}

// windowEntry is one fixed-window counter. count and windowStart are only
// touched while holding mu; window records the duration the entry was last
// driven with so the sweeper can judge staleness per key. evicted is set
// under mu when the entry is deleted from its shard, so an incrementer that
// fetched the pointer before the deletion knows to retry with a fresh entry
// instead of committing usage into an orphan.
type windowEntry struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
	window      time.Duration
	evicted     bool
}

type windowShard struct {
	mu      sync.RWMutex
	entries map[core.Key]*windowEntry
}

const shardCount = 64

// WindowStore owns one fixed-window counter per (user, endpoint) key. Keys
// are spread across shards so that requests for different keys do not
// contend on a single lock; within a key, updates serialize on the entry's
// own mutex.
type WindowStore struct {
	shards [shardCount]*windowShard
}

// NewWindowStore returns an empty store.
func NewWindowStore() *WindowStore {
	s := &WindowStore{}
	for i := range s.shards {
		s.shards[i] = &windowShard{entries: make(map[core.Key]*windowEntry)}
	}
	return s
}

func (s *WindowStore) shardFor(key core.Key) *windowShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.UserID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(key.Endpoint))
	return s.shards[h.Sum32()%shardCount]
}

// getOrCreate returns the entry for key, creating it exactly once even under
// concurrent first-requests for the same key.
func (s *WindowStore) getOrCreate(key core.Key, now time.Time, window time.Duration) *windowEntry {
	shard := s.shardFor(key)

	shard.mu.RLock()
	entry := shard.entries[key]
	shard.mu.RUnlock()
	if entry != nil {
		return entry
	}

	shard.mu.Lock()
	defer shard.mu.Unlock()
	if entry = shard.entries[key]; entry != nil {
		return entry
	}
	entry = &windowEntry{windowStart: now, window: window}
	shard.entries[key] = entry
	return entry
}

// CurrentCount implements Store. It does not create entries: a key with no
// entry reads as a fresh window. The in-memory store cannot fail; the error
// return exists for the Store contract.
func (s *WindowStore) CurrentCount(key core.Key, now time.Time, window time.Duration) (int, time.Time, error) {
	shard := s.shardFor(key)
	shard.mu.RLock()
	entry := shard.entries[key]
	shard.mu.RUnlock()
	if entry == nil {
		return 0, now, nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.evicted || now.Sub(entry.windowStart) >= window {
		// Evicted or elapsed window: logically fresh, physical reset
		// commits on Increment.
		return 0, now, nil
	}
	return entry.count, entry.windowStart, nil
}

// Increment implements Store. The entry pointer is fetched without holding
// the shard lock, so a concurrent sweep may evict it between the lookup and
// the lock acquisition here; the evicted flag catches that interleaving and
// the increment retries against a fresh entry rather than committing into
// an orphan.
func (s *WindowStore) Increment(key core.Key, now time.Time, window time.Duration) (int, time.Time, error) {
	for {
		entry := s.getOrCreate(key, now, window)

		entry.mu.Lock()
		if entry.evicted {
			entry.mu.Unlock()
			continue
		}

		if now.Sub(entry.windowStart) >= window {
			entry.windowStart = now
			entry.count = 0
		}
		entry.window = window
		entry.count++
		count, windowStart := entry.count, entry.windowStart
		entry.mu.Unlock()
		return count, windowStart, nil
	}
}

// Remove deletes the entry for key if present. The entry is marked evicted
// under its own lock so a racing increment retries instead of mutating the
// orphaned entry.
func (s *WindowStore) Remove(key core.Key) {
	shard := s.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry := shard.entries[key]
	if entry == nil {
		return
	}
	entry.mu.Lock()
	entry.evicted = true
	entry.mu.Unlock()
	delete(shard.entries, key)
}

// StaleKeys returns keys whose window ended more than one full window ago,
// i.e. entries with no renewed activity the sweeper may reclaim.
func (s *WindowStore) StaleKeys(now time.Time) []core.Key {
	var keys []core.Key
	for _, shard := range s.shards {
		shard.mu.RLock()
		for key, entry := range shard.entries {
			if entryStale(entry, now) {
				keys = append(keys, key)
			}
		}
		shard.mu.RUnlock()
	}
	return keys
}

// RemoveStale deletes key only if it is still stale at removal time. The
// staleness re-check and the evicted mark both happen while holding the
// entry lock inside the shard write lock, so an increment that just revived
// the entry is never lost: either it committed first and the entry is no
// longer stale, or it is still waiting on the entry lock and will see the
// evicted flag and retry.
func (s *WindowStore) RemoveStale(key core.Key, now time.Time) bool {
	shard := s.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry := shard.entries[key]
	if entry == nil {
		return false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if now.Sub(entry.windowStart) < 2*entry.window {
		return false
	}
	entry.evicted = true
	delete(shard.entries, key)
	return true
}

func entryStale(entry *windowEntry, now time.Time) bool {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return now.Sub(entry.windowStart) >= 2*entry.window
}

// Len reports the number of live entries.
func (s *WindowStore) Len() int {
	total := 0
	for _, shard := range s.shards {
		shard.mu.RLock()
		total += len(shard.entries)
		shard.mu.RUnlock()
	}
	return total
}
