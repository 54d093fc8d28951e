// Package gateway serves the ava-gateway HTTP surface.
//
// # Overview
//
// The gateway owns the device registry, the pipeline orchestrator, the media
// store, and the optional invocation ledger, and exposes them over one HTTP
// server. A device is identified by a long-lived cookie minted on first visit.
// Uploads and viewers are decoupled: a POST to /assistant runs one invocation
// and publishes its events to the device's buses, and every open /events
// stream of that device receives them.
//
// # HTTP Routes
//
//   - GET / - Shell page; mints the device cookie if absent
//   - GET /events - Server-sent events for the caller's device
//   - GET /events/ws - The same frames over a WebSocket
//   - POST /assistant - Multipart upload with one "audio" field
//   - GET /assets/<kind>/<device>/<name>.<ext> - Generated artifacts, read-only
//   - GET /static/... - Embedded page assets and highlight.css
//   - GET /api/stats/usage - Usage totals for the caller's device
//   - GET /api/invocations - Recent invocations for the caller's device
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check
//
// # SSE Streaming
//
// Each event is framed by its variant and, for correlated events, the
// invocation id:
//
//	event: signal
//	data: <div id="signal" class="signal progress" data-step="thinking">...</div>
//
//	event: reply
//	id: 6f1c...
//	data: <li id="reply-6f1c..." class="chat reply">...</li>
//
// A ": keep-alive" comment is written every events.keepalive_interval.
// Every event of a device travels on one bus, so a stream delivers each
// invocation in publish order. Concurrent invocations of the same device may
// interleave, and clients regroup those by id.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	go gw.Run(ctx)
//	cancel() // Run shuts down and returns
//
// Shutdown closes the registry before the HTTP server so open streams end
// promptly, then closes the tailscale node and the ledger.
package gateway
