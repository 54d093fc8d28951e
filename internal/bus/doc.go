// Package bus provides the per-device event fan-out.
//
// A Bus is a bounded broadcast channel: publishers append to a fixed-size
// ring and never block, and each Subscription reads with its own cursor that
// starts at the moment it subscribed. History is not replayed.
//
// # Drop policy
//
// The ring retains the last Capacity events. When a subscriber falls further
// behind than that, the events it missed are gone: its next Recv returns a
// *LaggedError carrying the number skipped and moves the cursor to the oldest
// retained event. Publishers are never slowed by a lagging reader.
//
// # Registry
//
// Registry maps (device, topic) to a Bus. Devices are spread over shards by
// hashing the device id, and each shard keeps its devices in an LRU:
//
//   - a device is created on first reference, atomically per key
//   - Acquire pins a device until its release func runs; a device with a pin
//     or an open subscription is busy
//   - when a shard is full, the least recently referenced idle device is
//     evicted and its buses are closed (subscribers drain, then see ErrClosed);
//     if every device is busy the shard grows past its limit until one is not
//   - a background sweep removes devices idle past IdleTimeout that are not busy
package bus
