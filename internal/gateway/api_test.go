// ABOUTME: Tests for the shell page, the /assistant upload endpoint, and ledger endpoints
// ABOUTME: Verifies device cookies, acknowledgment shapes, and bus publication per device

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/ava-gateway/internal/auth"
	"github.com/2389/ava-gateway/internal/events"
	"github.com/2389/ava-gateway/internal/pipeline"
	"github.com/2389/ava-gateway/internal/store"
)

// audioBody builds a multipart body with one file field.
func audioBody(t *testing.T, field string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "audio.webm")
	require.NoError(t, err)
	_, err = fw.Write([]byte("fake webm bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func postAssistant(t *testing.T, srv *httptest.Server, cookie *http.Cookie, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/assistant", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON[T any](t *testing.T, r io.Reader) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(r).Decode(&v))
	return v
}

// =============================================================================
// Shell page
// =============================================================================

func TestIndex_MintsDeviceCookie(t *testing.T) {
	_, _, srv := newTestGateway(t, testConfig(t))

	resp := get(t, srv, "/", nil)
	body, _ := io.ReadAll(resp.Body)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), `<ol id="chats">`)
	assert.Contains(t, string(body), events.AssistantAvatar)

	var minted *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == auth.DefaultCookieName {
			minted = c
		}
	}
	require.NotNil(t, minted, "first visit should mint a device cookie")
	assert.True(t, minted.HttpOnly)
	assert.NotEmpty(t, minted.Value)
}

func TestIndex_ReusesExistingCookie(t *testing.T) {
	gw, _, srv := newTestGateway(t, testConfig(t))
	_, cookie := deviceCookie(t, gw)

	resp := get(t, srv, "/", cookie)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Cookies(), "known device should not get a new cookie")
}

func TestIndex_UnknownPathIsNotFound(t *testing.T) {
	_, _, srv := newTestGateway(t, testConfig(t))

	resp := get(t, srv, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// POST /assistant
// =============================================================================

func TestAssistant_RunsPipelineForDevice(t *testing.T) {
	gw, runner, srv := newTestGateway(t, testConfig(t))
	id, cookie := deviceCookie(t, gw)

	runner.emit = []events.Event{
		events.Progress(events.StepUploadAudio),
		events.Input{ID: "inv-1", Content: "hello"},
		events.Completed(),
	}

	sub := gw.registry.Bus(id, events.TopicEvents).Subscribe()
	defer sub.Close()

	body, ct := audioBody(t, "audio")
	resp := postAssistant(t, srv, cookie, body, ct)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, AssistantResponse{Status: "done"}, decodeJSON[AssistantResponse](t, resp.Body))

	calls := runner.requests()
	require.Len(t, calls, 1)
	assert.Equal(t, id, calls[0].DeviceID)
	assert.NotNil(t, calls[0].Upload)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for _, want := range runner.emit {
		e, err := sub.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, e)
	}
}

func TestAssistant_FailedInvocationIsStillOK(t *testing.T) {
	gw, runner, srv := newTestGateway(t, testConfig(t))
	_, cookie := deviceCookie(t, gw)
	runner.status = pipeline.StatusError

	body, ct := audioBody(t, "clip")
	resp := postAssistant(t, srv, cookie, body, ct)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, AssistantResponse{Status: "error"}, decodeJSON[AssistantResponse](t, resp.Body))
}

func TestAssistant_RequiresDevice(t *testing.T) {
	_, runner, srv := newTestGateway(t, testConfig(t))

	body, ct := audioBody(t, "audio")
	resp := postAssistant(t, srv, nil, body, ct)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, runner.requests())
}

func TestAssistant_RejectsNonMultipart(t *testing.T) {
	gw, runner, srv := newTestGateway(t, testConfig(t))
	_, cookie := deviceCookie(t, gw)

	resp := postAssistant(t, srv, cookie, strings.NewReader(`{"audio":"x"}`), "application/json")

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errResp := decodeJSON[map[string]string](t, resp.Body)
	assert.Contains(t, errResp["error"], "multipart")
	assert.Empty(t, runner.requests())
}

func TestAssistant_MethodNotAllowed(t *testing.T) {
	gw, _, srv := newTestGateway(t, testConfig(t))
	_, cookie := deviceCookie(t, gw)

	resp := get(t, srv, "/assistant", cookie)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAssistant_ShuttingDown(t *testing.T) {
	gw, runner, srv := newTestGateway(t, testConfig(t))
	_, cookie := deviceCookie(t, gw)
	gw.registry.Close()

	body, ct := audioBody(t, "audio")
	resp := postAssistant(t, srv, cookie, body, ct)

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Empty(t, runner.requests())
}

// =============================================================================
// Ledger endpoints
// =============================================================================

func seedInvocations(t *testing.T, gw *Gateway, deviceID string) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := []*store.Invocation{
		{ID: "a", DeviceID: deviceID, Tool: "draw_image", Status: store.StatusDone, PromptTokens: 10, CompletionTokens: 5, StartedAt: base, FinishedAt: base.Add(2 * time.Second)},
		{ID: "b", DeviceID: deviceID, Tool: "answer", Status: store.StatusDone, PromptTokens: 20, CompletionTokens: 8, StartedAt: base.Add(time.Minute), FinishedAt: base.Add(time.Minute + time.Second)},
		{ID: "c", DeviceID: deviceID, Status: store.StatusError, ErrorKind: "input_validation", Error: "expected an audio field", StartedAt: base.Add(2 * time.Minute), FinishedAt: base.Add(2 * time.Minute)},
		{ID: "d", DeviceID: "someone-else", Tool: "answer", Status: store.StatusDone, PromptTokens: 99, StartedAt: base, FinishedAt: base},
	}
	for _, inv := range rows {
		require.NoError(t, gw.store.SaveInvocation(ctx, inv))
	}
}

func TestHandleUsageStats_ScopedToDevice(t *testing.T) {
	gw, _, srv := newTestGateway(t, testConfig(t))
	id, cookie := deviceCookie(t, gw)
	seedInvocations(t, gw, id)

	resp := get(t, srv, "/api/stats/usage", cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stats := decodeJSON[store.UsageStats](t, resp.Body)
	assert.Equal(t, int64(3), stats.Invocations)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(30), stats.PromptTokens)
	assert.Equal(t, int64(13), stats.CompletionTokens)
	assert.Equal(t, int64(43), stats.TotalTokens)
	assert.Equal(t, map[string]int64{"draw_image": 1, "answer": 1}, stats.ByTool)
}

func TestHandleUsageStats_Since(t *testing.T) {
	gw, _, srv := newTestGateway(t, testConfig(t))
	id, cookie := deviceCookie(t, gw)
	seedInvocations(t, gw, id)

	resp := get(t, srv, "/api/stats/usage?since=2026-03-01T12:00:30Z", cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stats := decodeJSON[store.UsageStats](t, resp.Body)
	assert.Equal(t, int64(2), stats.Invocations)
}

func TestHandleUsageStats_BadSince(t *testing.T) {
	gw, _, srv := newTestGateway(t, testConfig(t))
	_, cookie := deviceCookie(t, gw)

	resp := get(t, srv, "/api/stats/usage?since=yesterday", cookie)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleUsageStats_LedgerDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Path = ""
	gw, _, srv := newTestGateway(t, cfg)
	_, cookie := deviceCookie(t, gw)

	resp := get(t, srv, "/api/stats/usage", cookie)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = get(t, srv, "/api/invocations", cookie)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleListInvocations(t *testing.T) {
	gw, _, srv := newTestGateway(t, testConfig(t))
	id, cookie := deviceCookie(t, gw)
	seedInvocations(t, gw, id)

	resp := get(t, srv, "/api/invocations?limit=2", cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	list := decodeJSON[ListInvocationsResponse](t, resp.Body)
	require.Len(t, list.Invocations, 2)
	assert.Equal(t, "c", list.Invocations[0].ID)
	assert.Equal(t, "input_validation", list.Invocations[0].ErrorKind)
	assert.Equal(t, "b", list.Invocations[1].ID)
	assert.Equal(t, int64(1000), list.Invocations[1].DurationMS)
}

func TestHandleListInvocations_BadLimit(t *testing.T) {
	gw, _, srv := newTestGateway(t, testConfig(t))
	_, cookie := deviceCookie(t, gw)

	for _, limit := range []string{"0", "-1", "many"} {
		resp := get(t, srv, "/api/invocations?limit="+limit, cookie)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "limit=%s", limit)
	}
}
