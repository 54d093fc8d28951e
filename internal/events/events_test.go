// ABOUTME: Tests for event routing, framing, and rendering
// ABOUTME: Covers topic selection, SSE frame layout, HTML fragments, JSON payloads

package events

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allEvents() []Event {
	return []Event{
		Progress(StepThinking),
		Finished(StepSpeech),
		Failed("no proper tool found"),
		Completed(),
		InputSkeleton{ID: "in-1", Datetime: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC), Avatar: "/static/user.png", Name: "You"},
		Input{ID: "in-1", Content: "draw a cat"},
		NewReplySkeleton("in-1"),
		Reply{ID: "in-1", Data: Speech{Text: "hello", URL: "/assets/audio/d/x.mp3"}},
		Reply{ID: "in-1", Data: Image{URL: "/assets/image/d/x.png", Prompt: "a cat"}},
		Reply{ID: "in-1", Data: Markdown{HTML: "<pre>code</pre>"}},
	}
}

func TestNameAndID(t *testing.T) {
	tests := []struct {
		event Event
		name  string
		id    string
	}{
		{Progress(StepUploadAudio), "signal", ""},
		{InputSkeleton{ID: "a"}, "input", "a"},
		{Input{ID: "b"}, "input", "b"},
		{ReplySkeleton{ID: "c"}, "reply", "c"},
		{Reply{ID: "d", Data: Speech{}}, "reply", "d"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.name, Name(tt.event), "%T", tt.event)
		assert.Equal(t, tt.id, ID(tt.event), "%T", tt.event)
	}
}

func TestSignal_Terminal(t *testing.T) {
	assert.True(t, Completed().Terminal())
	assert.True(t, Failed("x").Terminal())
	assert.False(t, Progress(StepThinking).Terminal())
	assert.False(t, Finished(StepThinking).Terminal())
}

func TestFrame_WriteSSE(t *testing.T) {
	f := Frame{Event: "reply", ID: "abc", Data: "line one\nline two"}

	var buf bytes.Buffer
	require.NoError(t, f.WriteSSE(&buf))

	assert.Equal(t, "event: reply\nid: abc\ndata: line one\ndata: line two\n\n", buf.String())
}

func TestFrame_WriteSSEWithoutID(t *testing.T) {
	f := Frame{Event: "signal", Data: "{}"}

	var buf bytes.Buffer
	require.NoError(t, f.WriteSSE(&buf))

	assert.Equal(t, "event: signal\ndata: {}\n\n", buf.String())
}

func TestWriteKeepAlive(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteKeepAlive(&buf))
	assert.True(t, strings.HasPrefix(buf.String(), ":"))
}

func TestHTMLRenderer_RendersEveryVariant(t *testing.T) {
	r, err := NewHTMLRenderer()
	require.NoError(t, err)

	for _, e := range allEvents() {
		out, err := r.Render(e)
		require.NoError(t, err, "%T", e)
		assert.NotEmpty(t, out, "%T", e)
	}
}

func TestHTMLRenderer_ErrorSignalHasSeverityMarker(t *testing.T) {
	r, err := NewHTMLRenderer()
	require.NoError(t, err)

	out, err := r.Render(Failed("stop reason not supported"))
	require.NoError(t, err)
	assert.Contains(t, out, `class="signal error"`)
	assert.Contains(t, out, `class="severity"`)
	assert.Contains(t, out, "stop reason not supported")

	out, err = r.Render(Progress(StepThinking))
	require.NoError(t, err)
	assert.NotContains(t, out, "severity")
	assert.Contains(t, out, "Thinking")
}

func TestHTMLRenderer_EscapesUserText(t *testing.T) {
	r, err := NewHTMLRenderer()
	require.NoError(t, err)

	out, err := r.Render(Input{ID: "x", Content: "<script>alert(1)</script>"})
	require.NoError(t, err)
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, `id="input-x"`)
}

func TestHTMLRenderer_ReplyReplacesSkeleton(t *testing.T) {
	r, err := NewHTMLRenderer()
	require.NoError(t, err)

	skeleton, err := r.Render(NewReplySkeleton("r1"))
	require.NoError(t, err)
	reply, err := r.Render(Reply{ID: "r1", Data: Image{URL: "/assets/image/d/r1.png", Prompt: "a cat"}})
	require.NoError(t, err)

	assert.Contains(t, skeleton, `id="reply-r1"`)
	assert.Contains(t, skeleton, AssistantName)
	assert.Contains(t, reply, `id="reply-r1"`)
	assert.Contains(t, reply, `src="/assets/image/d/r1.png"`)
}

func TestJSONRenderer_Signal(t *testing.T) {
	out, err := JSONRenderer{}.Render(Failed("boom"))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "signal", got["type"])
	assert.Equal(t, "error", got["kind"])
	assert.Equal(t, "error", got["severity"])
	assert.Equal(t, "boom", got["message"])

	out, err = JSONRenderer{}.Render(Progress(StepDrawImage))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "info", got["severity"])
	assert.Equal(t, "draw_image", got["step"])
}

func TestJSONRenderer_Reply(t *testing.T) {
	out, err := JSONRenderer{}.Render(Reply{ID: "r1", Data: Speech{Text: "hi", URL: "/assets/audio/d/r1.mp3"}})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "reply", got["type"])
	assert.Equal(t, "speech", got["kind"])
	assert.Equal(t, "hi", got["text"])
	assert.Equal(t, "/assets/audio/d/r1.mp3", got["url"])
}

func TestNewRenderer(t *testing.T) {
	r, err := NewRenderer("json")
	require.NoError(t, err)
	assert.IsType(t, JSONRenderer{}, r)

	r, err = NewRenderer("")
	require.NoError(t, err)
	assert.IsType(t, &HTMLRenderer{}, r)

	_, err = NewRenderer("xml")
	assert.Error(t, err)
}

func TestNewFrame(t *testing.T) {
	f, err := NewFrame(Input{ID: "in-9", Content: "hello"}, JSONRenderer{})
	require.NoError(t, err)
	assert.Equal(t, "input", f.Event)
	assert.Equal(t, "in-9", f.ID)
	assert.Contains(t, f.Data, `"content":"hello"`)
}
