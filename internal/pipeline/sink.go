// ABOUTME: Routes an invocation's events onto the device's event bus
// ABOUTME: Pins the device while the invocation runs so eviction cannot split it from its viewers

package pipeline

import (
	"github.com/2389/ava-gateway/internal/bus"
	"github.com/2389/ava-gateway/internal/events"
)

// Publisher receives an invocation's events in order.
type Publisher interface {
	Publish(e events.Event)
}

// DeviceSink publishes to one device's event bus. The device stays pinned in
// the registry until Release.
type DeviceSink struct {
	bus     *bus.Bus[events.Event]
	release func()
}

// NewDeviceSink resolves and pins the device's event bus. Call Release once
// the invocation has published its terminal event.
func NewDeviceSink(reg *bus.Registry[events.Event], deviceID string) *DeviceSink {
	b, release := reg.Acquire(deviceID, events.TopicEvents)
	return &DeviceSink{bus: b, release: release}
}

func (s *DeviceSink) Publish(e events.Event) {
	s.bus.Publish(e)
}

// Release unpins the device. Safe to call more than once.
func (s *DeviceSink) Release() {
	s.release()
}
