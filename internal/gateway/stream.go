// ABOUTME: Live event streams for a device over server-sent events and WebSocket
// ABOUTME: Reads the device's ordered event bus, frames each event, and sends keep-alives

package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/ava-gateway/internal/auth"
	"github.com/2389/ava-gateway/internal/bus"
	"github.com/2389/ava-gateway/internal/events"
)

// WebSocket timing.
const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// The default CheckOrigin rejects cross-origin upgrades, which is what the
// cookie-identified stream needs.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// subscribeDevice streams the device's events in publish order. The
// subscription exists before it returns, so nothing published afterwards is
// missed, and the device stays pinned in the registry until the stream ends.
// The channel closes when ctx is done or the bus closes.
func (g *Gateway) subscribeDevice(ctx context.Context, deviceID string) <-chan events.Event {
	b, release := g.registry.Acquire(deviceID, events.TopicEvents)
	sub := b.Subscribe()
	out := make(chan events.Event)

	go func() {
		defer close(out)
		defer release()
		defer sub.Close()
		g.forward(ctx, deviceID, sub, out)
	}()
	return out
}

// forward copies the subscription into out until ctx is done or the bus closes.
// A lagging subscriber skips the dropped events and carries on.
func (g *Gateway) forward(ctx context.Context, deviceID string, sub *bus.Subscription[events.Event], out chan<- events.Event) {
	for {
		e, err := sub.Recv(ctx)
		var lagged *bus.LaggedError
		switch {
		case errors.As(err, &lagged):
			g.logger.Warn("event stream lagged, dropped oldest events",
				"device", deviceID, "skipped", lagged.Skipped)
			recordLag(ctx, lagged.Skipped)
			continue
		case err != nil:
			return
		}

		select {
		case out <- e:
		case <-ctx.Done():
			return
		}
	}
}

// handleEvents streams the caller's device events as server-sent events.
// There is no replay: a (re)connecting client sees only what is published
// after it subscribed.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	if g.registry.Closed() {
		g.sendJSONError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}

	deviceID := auth.DeviceFromContext(r.Context())
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stream := g.subscribeDevice(ctx, deviceID)

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	trackStream(ctx, "sse", 1)
	defer trackStream(context.WithoutCancel(ctx), "sse", -1)
	g.logger.Debug("event stream opened", "device", deviceID)

	keepAlive := time.NewTicker(g.config.Events.KeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			g.logger.Debug("event stream closed by client", "device", deviceID)
			return

		case e, ok := <-stream:
			if !ok {
				return
			}
			frame, err := events.NewFrame(e, g.renderer)
			if err != nil {
				g.logger.Error("failed to render event", "event", events.Name(e), "error", err)
				continue
			}
			if err := frame.WriteSSE(w); err != nil {
				return
			}
			flusher.Flush()

		case <-keepAlive.C:
			if err := events.WriteKeepAlive(w); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handleEventsWS mirrors handleEvents over a WebSocket. Each event is sent as
// a JSON text message {"event","id","data"}; the client is expected only to
// answer pings.
func (g *Gateway) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if g.registry.Closed() {
		g.sendJSONError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	deviceID := auth.DeviceFromContext(r.Context())
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stream := g.subscribeDevice(ctx, deviceID)

	go readPump(conn, cancel)

	trackStream(ctx, "websocket", 1)
	defer trackStream(context.WithoutCancel(ctx), "websocket", -1)

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case e, ok := <-stream:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"),
					time.Now().Add(wsWriteWait))
				return
			}
			frame, err := events.NewFrame(e, g.renderer)
			if err != nil {
				g.logger.Error("failed to render event", "event", events.Name(e), "error", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(frame); err != nil {
				return
			}

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages and cancels the stream when the
// connection closes or stops answering pings.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
