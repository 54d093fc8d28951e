// ABOUTME: Sharded device registry mapping (device, topic) to a lazily created Bus
// ABOUTME: Bounds memory with a per-shard LRU and idle eviction that skips pinned or watched devices

package bus

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Registry defaults.
const (
	DefaultShards      = 16
	DefaultMaxDevices  = 10_000
	DefaultIdleTimeout = 30 * time.Minute
)

// RegistryConfig configures a Registry. Zero values select the defaults.
type RegistryConfig struct {
	Shards        int
	MaxDevices    int
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	BusCapacity   int
	Logger        *slog.Logger
}

// device holds the buses of one device. It is guarded by its shard's mutex.
type device[T any] struct {
	buses    map[string]*Bus[T]
	lastSeen time.Time
	pins     int
}

// busy reports whether the device is pinned or watched and must not be evicted.
func (d *device[T]) busy() bool {
	return d.pins > 0 || d.subscribers() > 0
}

func (d *device[T]) subscribers() int {
	n := 0
	for _, b := range d.buses {
		n += b.Subscribers()
	}
	return n
}

func (d *device[T]) close() {
	for _, b := range d.buses {
		b.Close()
	}
}

type shard[T any] struct {
	mu      sync.Mutex
	devices *simplelru.LRU[string, *device[T]]
	limit   int
}

// Registry owns every device's buses. Lookups for different devices contend
// only when they hash to the same shard.
type Registry[T any] struct {
	shards      []*shard[T]
	idleTimeout time.Duration
	busCapacity int
	logger      *slog.Logger

	closed atomic.Bool
	done   chan struct{}
	once   sync.Once
}

// NewRegistry creates a registry and starts its idle sweeper.
func NewRegistry[T any](cfg RegistryConfig) *Registry[T] {
	if cfg.Shards <= 0 {
		cfg.Shards = DefaultShards
	}
	if cfg.MaxDevices <= 0 {
		cfg.MaxDevices = DefaultMaxDevices
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.BusCapacity <= 0 {
		cfg.BusCapacity = DefaultCapacity
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := &Registry[T]{
		shards:      make([]*shard[T], cfg.Shards),
		idleTimeout: cfg.IdleTimeout,
		busCapacity: cfg.BusCapacity,
		logger:      cfg.Logger,
		done:        make(chan struct{}),
	}

	perShard := (cfg.MaxDevices + cfg.Shards - 1) / cfg.Shards
	for i := range r.shards {
		lru, err := simplelru.NewLRU(perShard, func(id string, d *device[T]) {
			d.close()
			r.logger.Debug("device evicted", "device_id", id)
		})
		if err != nil {
			// only returned for a non-positive size, which perShard never is
			panic(err)
		}
		r.shards[i] = &shard[T]{devices: lru, limit: perShard}
	}

	go r.sweep(cfg.SweepInterval)
	return r
}

func (r *Registry[T]) shardFor(deviceID string) *shard[T] {
	return r.shards[xxhash.Sum64String(deviceID)%uint64(len(r.shards))]
}

// Bus returns the bus for (deviceID, topic), creating the device and the bus
// on first reference. Lookup and insert happen under one shard lock, so
// concurrent callers for the same key always receive the same bus.
// After Close, Bus returns a closed, unregistered bus.
func (r *Registry[T]) Bus(deviceID, topic string) *Bus[T] {
	b, release := r.Acquire(deviceID, topic)
	release()
	return b
}

// Acquire is Bus plus a pin: until release is called the device is never
// evicted, so a publisher and the viewers that join while it runs keep
// sharing the same bus. release is safe to call more than once.
func (r *Registry[T]) Acquire(deviceID, topic string) (b *Bus[T], release func()) {
	if r.closed.Load() {
		b = New[T](r.busCapacity)
		b.Close()
		return b, func() {}
	}

	s := r.shardFor(deviceID)
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices.Get(deviceID)
	if !ok {
		r.makeRoom(s)
		d = &device[T]{buses: make(map[string]*Bus[T])}
		s.devices.Add(deviceID, d)
	}
	d.lastSeen = time.Now()
	d.pins++

	b, ok = d.buses[topic]
	if !ok {
		b = New[T](r.busCapacity)
		d.buses[topic] = b
	}

	var once sync.Once
	return b, func() {
		once.Do(func() {
			s.mu.Lock()
			d.pins--
			d.lastSeen = time.Now()
			s.mu.Unlock()
		})
	}
}

// makeRoom evicts the least recently used idle devices until one more fits
// within the shard limit. Busy devices are skipped; when every device is
// busy the shard grows past its limit instead, and shrinks back once idle
// devices can be evicted again. Callers hold s.mu.
func (r *Registry[T]) makeRoom(s *shard[T]) {
	for _, id := range s.devices.Keys() {
		if s.devices.Len() < s.limit {
			break
		}
		if d, ok := s.devices.Peek(id); ok && !d.busy() {
			s.devices.Remove(id)
		}
	}
	if s.devices.Len() >= s.limit {
		r.logger.Warn("device shard over capacity, all devices busy",
			"devices", s.devices.Len(), "limit", s.limit)
	}
	s.devices.Resize(max(s.limit, s.devices.Len()+1))
}

// Devices returns the number of registered devices.
func (r *Registry[T]) Devices() int {
	n := 0
	for _, s := range r.shards {
		s.mu.Lock()
		n += s.devices.Len()
		s.mu.Unlock()
	}
	return n
}

// Closed reports whether Close has been called.
func (r *Registry[T]) Closed() bool {
	return r.closed.Load()
}

func (r *Registry[T]) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.evictIdle(time.Now())
		case <-r.done:
			return
		}
	}
}

// evictIdle removes devices that have not been referenced within the idle
// timeout and are neither pinned nor subscribed. It returns the number removed.
func (r *Registry[T]) evictIdle(now time.Time) int {
	removed := 0
	for _, s := range r.shards {
		s.mu.Lock()
		for _, id := range s.devices.Keys() {
			d, ok := s.devices.Peek(id)
			if !ok {
				continue
			}
			if now.Sub(d.lastSeen) > r.idleTimeout && !d.busy() {
				s.devices.Remove(id)
				removed++
			}
		}
		s.mu.Unlock()
	}
	if removed > 0 {
		r.logger.Debug("evicted idle devices", "count", removed)
	}
	return removed
}

// Close stops the sweeper and closes every bus. Safe to call multiple times.
func (r *Registry[T]) Close() {
	r.once.Do(func() {
		r.closed.Store(true)
		close(r.done)
		for _, s := range r.shards {
			s.mu.Lock()
			s.devices.Purge()
			s.mu.Unlock()
		}
	})
}
