package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgate/tollgate/internal/core"
)

func TestSweepRemovesEntriesPastTwoWindows(t *testing.T) {
	store := NewWindowStore()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	stale := core.Key{UserID: "stale", Endpoint: "e"}
	active := core.Key{UserID: "active", Endpoint: "e"}

	_, _, err := store.Increment(stale, base, time.Minute)
	require.NoError(t, err)
	_, _, err = store.Increment(active, base.Add(90*time.Second), time.Minute)
	require.NoError(t, err)

	sweeper := NewSweeper(store, time.Minute, nil, nil)

	// At base+2m the stale entry's window ended a full window ago; the
	// active entry is still inside its second window.
	removed := sweeper.Sweep(base.Add(2 * time.Minute))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())

	count, _, err := store.CurrentCount(active, base.Add(100*time.Second), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSweepBoundsMemoryToActiveCallers(t *testing.T) {
	store := NewWindowStore()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	for u := 0; u < 500; u++ {
		key := core.Key{UserID: fmt.Sprintf("user-%d", u), Endpoint: "GET /api/v1/data"}
		_, _, err := store.Increment(key, base, time.Minute)
		require.NoError(t, err)
	}
	require.Equal(t, 500, store.Len())

	sweeper := NewSweeper(store, time.Minute, nil, nil)

	// Nothing is stale one window in.
	assert.Equal(t, 0, sweeper.Sweep(base.Add(time.Minute)))
	assert.Equal(t, 500, store.Len())

	// Two windows in, everything idle is reclaimed.
	assert.Equal(t, 500, sweeper.Sweep(base.Add(2*time.Minute)))
	assert.Equal(t, 0, store.Len())
}

func TestSweepIsIdempotent(t *testing.T) {
	store := NewWindowStore()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	key := core.Key{UserID: "u", Endpoint: "e"}
	_, _, err := store.Increment(key, base, time.Minute)
	require.NoError(t, err)

	sweeper := NewSweeper(store, time.Minute, nil, nil)

	assert.Equal(t, 1, sweeper.Sweep(base.Add(3*time.Minute)))
	assert.Equal(t, 0, sweeper.Sweep(base.Add(3*time.Minute)))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	store := NewWindowStore()
	sweeper := NewSweeper(store, 10*time.Millisecond, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	// Let a few ticks fire against an empty store, then stop.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}

func TestTickRecoversFromPanic(t *testing.T) {
	// A nil store makes StaleKeys panic; tick must swallow it so the next
	// tick still runs.
	sweeper := NewSweeper(nil, time.Minute, nil, nil)

	assert.NotPanics(t, func() {
		sweeper.tick()
	})
}
