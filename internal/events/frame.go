// ABOUTME: Wire framing of events for server-sent events and WebSocket streams
// ABOUTME: Frames carry the variant tag, the correlation id, and the rendered payload

package events

import (
	"fmt"
	"io"
	"strings"
)

// Frame is an event ready to be written to a stream.
type Frame struct {
	Event string `json:"event"`
	ID    string `json:"id,omitempty"`
	Data  string `json:"data"`
}

// NewFrame renders e into a Frame.
func NewFrame(e Event, r Renderer) (Frame, error) {
	data, err := r.Render(e)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: Name(e), ID: ID(e), Data: data}, nil
}

// WriteSSE writes the frame in text/event-stream format. Multi-line data is
// split into one data field per line.
func (f Frame) WriteSSE(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "event: %s\n", f.Event)
	if f.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", f.ID)
	}
	for line := range strings.SplitSeq(f.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", strings.TrimSuffix(line, "\r"))
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteKeepAlive writes an SSE comment line that clients ignore.
func WriteKeepAlive(w io.Writer) error {
	_, err := io.WriteString(w, ": keep-alive\n\n")
	return err
}
