// ABOUTME: HTTP handlers for the shell page, audio uploads, and the invocation ledger
// ABOUTME: Uploads run the pipeline and acknowledge with a status; results arrive on /events

package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/ava-gateway/internal/assets"
	"github.com/2389/ava-gateway/internal/auth"
	"github.com/2389/ava-gateway/internal/events"
	"github.com/2389/ava-gateway/internal/pipeline"
	"github.com/2389/ava-gateway/internal/store"
)

// Ledger listing bounds.
const (
	defaultInvocationLimit = 20
	maxInvocationLimit     = 100
)

// AssistantResponse is the JSON response for POST /assistant.
type AssistantResponse struct {
	Status string `json:"status"`
}

// InvocationResponse is one entry of GET /api/invocations.
type InvocationResponse struct {
	ID               string `json:"id"`
	Tool             string `json:"tool,omitempty"`
	Status           string `json:"status"`
	ErrorKind        string `json:"error_kind,omitempty"`
	Error            string `json:"error,omitempty"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	StartedAt        string `json:"started_at"`
	DurationMS       int64  `json:"duration_ms"`
}

// ListInvocationsResponse is the JSON response for GET /api/invocations.
type ListInvocationsResponse struct {
	Invocations []InvocationResponse `json:"invocations"`
}

// handleIndex renders the shell page. The device cookie has already been
// minted by the EnsureDevice middleware.
func (g *Gateway) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	err := assets.RenderIndex(w, assets.Page{
		Name:   events.AssistantName,
		Avatar: events.AssistantAvatar,
		Locale: g.config.Assistant.Locale,
	})
	if err != nil {
		g.logger.Error("failed to render index", "error", err)
	}
}

// handleAssistant runs one invocation for the uploaded audio.
//
// Responsibilities:
//   - reject bodies that are not multipart (400) and uploads during shutdown (503)
//   - run the pipeline, which publishes every outcome to the device's buses
//   - answer 200 with the invocation status, whether it succeeded or not
func (g *Gateway) handleAssistant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	deviceID := auth.DeviceFromContext(r.Context())
	if g.config.Server.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, g.config.Server.MaxUploadBytes)
	}

	upload, err := r.MultipartReader()
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "expected a multipart/form-data body")
		return
	}

	if g.registry.Closed() {
		g.sendJSONError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}

	sink := pipeline.NewDeviceSink(g.registry, deviceID)
	defer sink.Release()

	out := g.runner.Run(r.Context(), pipeline.Request{
		DeviceID: deviceID,
		Upload:   upload,
		Sink:     sink,
	})

	g.writeJSON(w, http.StatusOK, AssistantResponse{Status: out.Status})
}

// parseTimeParam parses an optional RFC 3339 query parameter.
func parseTimeParam(r *http.Request, name string) (*time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, false
	}
	return &t, true
}

// handleUsageStats returns aggregated usage for the caller's device.
// Optional since/until query parameters (RFC 3339) bound the window.
func (g *Gateway) handleUsageStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if g.store == nil {
		g.sendJSONError(w, http.StatusNotFound, "invocation ledger disabled")
		return
	}

	deviceID := auth.DeviceFromContext(r.Context())
	filter := store.InvocationFilter{DeviceID: &deviceID}

	var ok bool
	if filter.Since, ok = parseTimeParam(r, "since"); !ok {
		g.sendJSONError(w, http.StatusBadRequest, "invalid since: expected RFC 3339")
		return
	}
	if filter.Until, ok = parseTimeParam(r, "until"); !ok {
		g.sendJSONError(w, http.StatusBadRequest, "invalid until: expected RFC 3339")
		return
	}

	stats, err := g.store.GetUsageStats(r.Context(), filter)
	if err != nil {
		g.logger.Error("failed to get usage stats", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	g.writeJSON(w, http.StatusOK, stats)
}

// handleListInvocations returns the caller's most recent invocations, newest first.
func (g *Gateway) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if g.store == nil {
		g.sendJSONError(w, http.StatusNotFound, "invocation ledger disabled")
		return
	}

	limit := defaultInvocationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			g.sendJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxInvocationLimit)
	}

	deviceID := auth.DeviceFromContext(r.Context())
	invs, err := g.store.ListInvocations(r.Context(), store.InvocationFilter{
		DeviceID: &deviceID,
		Limit:    limit,
	})
	if err != nil {
		g.logger.Error("failed to list invocations", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := ListInvocationsResponse{Invocations: make([]InvocationResponse, 0, len(invs))}
	for _, inv := range invs {
		resp.Invocations = append(resp.Invocations, InvocationResponse{
			ID:               inv.ID,
			Tool:             inv.Tool,
			Status:           inv.Status,
			ErrorKind:        inv.ErrorKind,
			Error:            inv.Error,
			PromptTokens:     inv.PromptTokens,
			CompletionTokens: inv.CompletionTokens,
			StartedAt:        inv.StartedAt.UTC().Format(time.RFC3339),
			DurationMS:       inv.Duration().Milliseconds(),
		})
	}
	g.writeJSON(w, http.StatusOK, resp)
}

// handleHighlightCSS serves the stylesheet for highlighted code in write_code replies.
func (g *Gateway) handleHighlightCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if err := g.markdown.WriteCSS(w); err != nil {
		g.logger.Error("failed to write highlight css", "error", err)
	}
}

// writeJSON writes v as a JSON response.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
