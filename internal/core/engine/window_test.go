package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgate/tollgate/internal/core"
)

func TestCurrentCountDoesNotCreateEntries(t *testing.T) {
	store := NewWindowStore()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	count, windowStart, err := store.CurrentCount(core.Key{UserID: "u", Endpoint: "e"}, now, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, now, windowStart)
	assert.Equal(t, 0, store.Len())
}

func TestIncrementCountsWithinWindow(t *testing.T) {
	store := NewWindowStore()
	key := core.Key{UserID: "u", Endpoint: "e"}
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 5; i++ {
		count, windowStart, err := store.Increment(key, now.Add(time.Duration(i)*time.Second), time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, count)
		assert.Equal(t, now.Add(time.Second), windowStart, "window start pins to the first increment")
	}
}

func TestRolloverResetsLazily(t *testing.T) {
	store := NewWindowStore()
	key := core.Key{UserID: "u", Endpoint: "e"}
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	_, _, err := store.Increment(key, base, time.Minute)
	require.NoError(t, err)
	_, _, err = store.Increment(key, base.Add(time.Second), time.Minute)
	require.NoError(t, err)

	// Past the window boundary the count reads as zero with a fresh start,
	// but nothing has physically reset yet.
	later := base.Add(61 * time.Second)
	count, windowStart, err := store.CurrentCount(key, later, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, later, windowStart)

	// The reset commits on the next increment.
	count, windowStart, err = store.Increment(key, later, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, later, windowStart)
}

func TestWindowBoundaryIsExclusive(t *testing.T) {
	store := NewWindowStore()
	key := core.Key{UserID: "u", Endpoint: "e"}
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	_, _, err := store.Increment(key, base, time.Minute)
	require.NoError(t, err)

	// One nanosecond before the boundary the window is still live.
	count, _, err := store.CurrentCount(key, base.Add(time.Minute-time.Nanosecond), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// At exactly windowStart+window the entry reads as fresh.
	count, _, err = store.CurrentCount(key, base.Add(time.Minute), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestConcurrentIncrementsOnOneKeyLoseNothing(t *testing.T) {
	store := NewWindowStore()
	key := core.Key{UserID: "u", Endpoint: "e"}
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	const goroutines = 50
	const perGoroutine = 20

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				_, _, _ = store.Increment(key, now, time.Hour)
			}
		}()
	}
	wg.Wait()

	count, _, err := store.CurrentCount(key, now, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, goroutines*perGoroutine, count)
	assert.Equal(t, 1, store.Len(), "concurrent first-increments must create the entry exactly once")
}

func TestConcurrentKeysStayIsolated(t *testing.T) {
	store := NewWindowStore()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	const users = 1000
	const perUser = 10

	var wg sync.WaitGroup
	wg.Add(users)
	for u := 0; u < users; u++ {
		key := core.Key{UserID: fmt.Sprintf("user-%d", u), Endpoint: "GET /api/v1/data"}
		go func(key core.Key) {
			defer wg.Done()
			for i := 0; i < perUser; i++ {
				_, _, _ = store.Increment(key, now, time.Hour)
			}
		}(key)
	}
	wg.Wait()

	assert.Equal(t, users, store.Len())
	for u := 0; u < users; u++ {
		key := core.Key{UserID: fmt.Sprintf("user-%d", u), Endpoint: "GET /api/v1/data"}
		count, _, err := store.CurrentCount(key, now, time.Hour)
		require.NoError(t, err)
		require.Equal(t, perUser, count, "key %v leaked counts across users", key)
	}
}

func TestRemove(t *testing.T) {
	store := NewWindowStore()
	key := core.Key{UserID: "u", Endpoint: "e"}
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	_, _, err := store.Increment(key, now, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	store.Remove(key)
	assert.Equal(t, 0, store.Len())

	// Removing an absent key is a no-op.
	store.Remove(key)
	assert.Equal(t, 0, store.Len())
}

func TestStaleKeysUsePerEntryWindow(t *testing.T) {
	store := NewWindowStore()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	short := core.Key{UserID: "short", Endpoint: "e"}
	long := core.Key{UserID: "long", Endpoint: "e"}

	_, _, err := store.Increment(short, base, 10*time.Second)
	require.NoError(t, err)
	_, _, err = store.Increment(long, base, time.Hour)
	require.NoError(t, err)

	// Thirty seconds in, the short-window entry is two windows past its
	// start while the long-window entry is still mid-window.
	keys := store.StaleKeys(base.Add(30 * time.Second))
	require.Len(t, keys, 1)
	assert.Equal(t, short, keys[0])
}

func TestRemoveStaleSkipsRevivedEntries(t *testing.T) {
	store := NewWindowStore()
	key := core.Key{UserID: "u", Endpoint: "e"}
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	_, _, err := store.Increment(key, base, time.Minute)
	require.NoError(t, err)

	staleAt := base.Add(3 * time.Minute)
	require.Equal(t, []core.Key{key}, store.StaleKeys(staleAt))

	// A fresh increment between StaleKeys and RemoveStale revives the entry.
	_, _, err = store.Increment(key, staleAt, time.Minute)
	require.NoError(t, err)

	assert.False(t, store.RemoveStale(key, staleAt))
	assert.Equal(t, 1, store.Len())

	count, _, err := store.CurrentCount(key, staleAt, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "the reviving increment must survive the sweep")
}

func TestRemoveStaleDeletesGenuinelyStaleEntries(t *testing.T) {
	store := NewWindowStore()
	key := core.Key{UserID: "u", Endpoint: "e"}
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	_, _, err := store.Increment(key, base, time.Minute)
	require.NoError(t, err)

	assert.True(t, store.RemoveStale(key, base.Add(3*time.Minute)))
	assert.Equal(t, 0, store.Len())
}

func TestSweepNeverDropsCommittedIncrement(t *testing.T) {
	store := NewWindowStore()
	key := core.Key{UserID: "u", Endpoint: "GET /api/v1/data"}
	window := time.Minute

	// Sweepers always judge staleness at the incrementer's current
	// timestamp, published before each increment. The previous iteration's
	// entry is three windows old by then, so every iteration races a live
	// eviction against the increment.
	var sweepNow atomic.Int64
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	sweepNow.Store(now.UnixNano())

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					store.RemoveStale(key, time.Unix(0, sweepNow.Load()).UTC())
				}
			}
		}()
	}

	for i := 0; i < 100000; i++ {
		sweepNow.Store(now.UnixNano())

		count, _, err := store.Increment(key, now, window)
		require.NoError(t, err)
		require.GreaterOrEqual(t, count, 1)

		// The committed increment must be visible at the same instant,
		// whether the entry survived the sweep or was recreated.
		got, _, err := store.CurrentCount(key, now, window)
		require.NoError(t, err)
		require.GreaterOrEqual(t, got, 1,
			"iteration %d: increment committed at %s but reads as zero", i, now)

		now = now.Add(3 * window)
	}

	close(stop)
	wg.Wait()
}
