package assets

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMimeFromExt(t *testing.T) {
	tests := []struct {
		ext  string
		want string
	}{
		{".js", "application/javascript"},
		{".mjs", "application/javascript"},
		{".css", "text/css; charset=utf-8"},
		{".woff2", "font/woff2"},
		{".svg", "image/svg+xml"},
		{".map", "application/json"},
		{".qqqqqq", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := mimeFromExt(tt.ext); got != tt.want {
			t.Errorf("mimeFromExt(%q) = %q, want %q", tt.ext, got, tt.want)
		}
	}
}

func TestRenderIndex(t *testing.T) {
	var b strings.Builder
	err := RenderIndex(&b, Page{Name: "Ava", Avatar: "/static/ava.svg", Locale: "en"})
	if err != nil {
		t.Fatalf("RenderIndex() error = %v", err)
	}
	got := b.String()

	for _, want := range []string{
		`<html lang="en">`,
		`<title>Ava</title>`,
		`<ol id="chats">`,
		`<div id="signal"`,
		`/static/app.js`,
		`/static/highlight.css`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("index missing %q", want)
		}
	}
}

func TestRenderIndex_EscapesName(t *testing.T) {
	var b strings.Builder
	if err := RenderIndex(&b, Page{Name: "<script>"}); err != nil {
		t.Fatalf("RenderIndex() error = %v", err)
	}
	if strings.Contains(b.String(), "<title><script>") {
		t.Error("name was not escaped")
	}
}

func TestFileServer(t *testing.T) {
	h := http.StripPrefix("/static/", FileServer())

	tests := []struct {
		path        string
		wantStatus  int
		wantType    string
		wantContent string
	}{
		{"/static/app.js", http.StatusOK, "application/javascript", "EventSource"},
		{"/static/app.css", http.StatusOK, "text/css; charset=utf-8", "#chats"},
		{"/static/ava.svg", http.StatusOK, "image/svg+xml", "<svg"},
		{"/static/missing.js", http.StatusNotFound, "", ""},
		{"/static/", http.StatusNotFound, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if got := rec.Header().Get("Content-Type"); got != tt.wantType {
				t.Errorf("Content-Type = %q, want %q", got, tt.wantType)
			}
			if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
				t.Errorf("Cache-Control = %q, want no-cache", got)
			}
			if !strings.Contains(rec.Body.String(), tt.wantContent) {
				t.Errorf("body missing %q", tt.wantContent)
			}
		})
	}
}
