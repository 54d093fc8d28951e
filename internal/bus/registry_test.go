// ABOUTME: Tests for the sharded device Registry
// ABOUTME: Covers get-or-create atomicity, topic isolation, pinning, LRU and idle eviction

package bus

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, cfg RegistryConfig) *Registry[int] {
	t.Helper()
	r := NewRegistry[int](cfg)
	t.Cleanup(r.Close)
	return r
}

func TestRegistry_SameKeyReturnsSameBus(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{})

	a := r.Bus("device-1", "signals")
	b := r.Bus("device-1", "signals")
	assert.Same(t, a, b)
	assert.Equal(t, 1, r.Devices())
}

func TestRegistry_TopicsAndDevicesAreIsolated(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{})

	signals := r.Bus("device-1", "signals")
	chats := r.Bus("device-1", "chats")
	other := r.Bus("device-2", "signals")

	assert.NotSame(t, signals, chats)
	assert.NotSame(t, signals, other)

	sub := other.Subscribe()
	defer sub.Close()

	signals.Publish(1)
	other.Publish(2)

	got, err := recvWithin(t, sub)
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}

func TestRegistry_ConcurrentGetOrCreateYieldsOneBus(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{})

	const workers = 32
	buses := make([]*Bus[int], workers)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			buses[i] = r.Bus("shared-device", "signals")
		}()
	}
	close(start)
	wg.Wait()

	for i := 1; i < workers; i++ {
		assert.Same(t, buses[0], buses[i])
	}
}

func TestRegistry_LRUEvictionClosesIdleBuses(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{Shards: 1, MaxDevices: 2})

	first := r.Bus("device-1", "events")
	r.Bus("device-2", "events")
	r.Bus("device-3", "events")

	assert.Equal(t, 2, r.Devices())

	// Subscribing to an evicted bus reports the close right away.
	sub := first.Subscribe()
	defer sub.Close()
	_, err := recvWithin(t, sub)
	assert.ErrorIs(t, err, ErrClosed)

	// A later reference recreates the device with a fresh bus.
	assert.NotSame(t, first, r.Bus("device-1", "events"))
}

func TestRegistry_PinnedDeviceSurvivesCapacityEviction(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{Shards: 1, MaxDevices: 1})

	published, release := r.Acquire("device-a", "events")
	defer release()

	// A second device would evict device-a if it were not pinned.
	r.Bus("device-b", "events")
	assert.Equal(t, 2, r.Devices())

	viewer := r.Bus("device-a", "events")
	require.Same(t, published, viewer)

	sub := viewer.Subscribe()
	defer sub.Close()
	published.Publish(7)

	got, err := recvWithin(t, sub)
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestRegistry_SubscribedDeviceSurvivesCapacityEviction(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{Shards: 1, MaxDevices: 1})

	watched := r.Bus("device-a", "events")
	sub := watched.Subscribe()

	r.Bus("device-b", "events")
	r.Bus("device-c", "events")

	// device-b was idle and made room for device-c.
	assert.Equal(t, 2, r.Devices())
	assert.Same(t, watched, r.Bus("device-a", "events"))

	// Once nothing holds the devices the shard shrinks back to its limit.
	sub.Close()
	r.Bus("device-d", "events")
	assert.Equal(t, 1, r.Devices())

	_, err := recvWithin(t, watched.Subscribe())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRegistry_ReleaseIsIdempotent(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{Shards: 1, MaxDevices: 1})

	pinned, release := r.Acquire("device-a", "events")
	release()
	release()

	r.Bus("device-b", "events")
	assert.Equal(t, 1, r.Devices())
	assert.NotSame(t, pinned, r.Bus("device-a", "events"))
}

func TestRegistry_AcquireAfterClose(t *testing.T) {
	r := NewRegistry[int](RegistryConfig{})
	r.Close()

	b, release := r.Acquire("device-1", "events")
	release()
	b.Publish(1)
	assert.Equal(t, 0, b.Len())
}

func TestRegistry_EvictIdleSkipsPinnedDevices(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{IdleTimeout: time.Minute})

	pinned, release := r.Acquire("pinned", "events")
	defer release()

	assert.Equal(t, 0, r.evictIdle(time.Now().Add(2*time.Minute)))
	assert.Same(t, pinned, r.Bus("pinned", "events"))
}

func TestRegistry_EvictIdleSkipsWatchedDevices(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{IdleTimeout: time.Minute})

	r.Bus("idle", "signals")
	watched := r.Bus("watched", "signals")
	sub := watched.Subscribe()
	defer sub.Close()

	removed := r.evictIdle(time.Now().Add(2 * time.Minute))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, r.Devices())
	assert.Same(t, watched, r.Bus("watched", "signals"))
}

func TestRegistry_EvictIdleKeepsRecentDevices(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{IdleTimeout: time.Minute})

	for i := range 10 {
		r.Bus(fmt.Sprintf("device-%d", i), "chats")
	}

	assert.Equal(t, 0, r.evictIdle(time.Now()))
	assert.Equal(t, 10, r.Devices())
}

func TestRegistry_CloseClosesEverything(t *testing.T) {
	r := NewRegistry[int](RegistryConfig{})

	b := r.Bus("device-1", "signals")
	sub := b.Subscribe()
	defer sub.Close()

	r.Close()
	r.Close()
	assert.True(t, r.Closed())

	_, err := recvWithin(t, sub)
	assert.ErrorIs(t, err, ErrClosed)

	late := r.Bus("device-1", "signals")
	late.Publish(1)
	assert.Equal(t, 0, late.Len())
}
