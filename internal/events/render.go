// ABOUTME: Renderers that turn events into wire payloads
// ABOUTME: HTMLRenderer emits embedded template fragments, JSONRenderer emits tagged JSON objects

package events

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer converts an event into the data carried by one wire frame.
type Renderer interface {
	Render(e Event) (string, error)
}

// NewRenderer returns the renderer for a configured format: "html" or "json".
func NewRenderer(format string) (Renderer, error) {
	switch format {
	case "", "html":
		return NewHTMLRenderer()
	case "json":
		return JSONRenderer{}, nil
	default:
		return nil, fmt.Errorf("unknown event format %q", format)
	}
}

// HTMLRenderer renders events as HTML fragments for the shell page.
type HTMLRenderer struct {
	tmpl *template.Template
}

// NewHTMLRenderer parses the embedded fragment templates.
func NewHTMLRenderer() (*HTMLRenderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing event templates: %w", err)
	}
	return &HTMLRenderer{tmpl: tmpl}, nil
}

type speechView struct {
	ID, Text, URL string
}

type imageView struct {
	ID, URL, Prompt string
}

type markdownView struct {
	ID   string
	HTML template.HTML
}

func (r *HTMLRenderer) Render(e Event) (string, error) {
	var name string
	var data any

	switch v := e.(type) {
	case Signal:
		name, data = "signal", v
	case InputSkeleton:
		name, data = "input_skeleton", v
	case Input:
		name, data = "input", v
	case ReplySkeleton:
		name, data = "reply_skeleton", v
	case Reply:
		switch d := v.Data.(type) {
		case Speech:
			name, data = "reply_speech", speechView{ID: v.ID, Text: d.Text, URL: d.URL}
		case Image:
			name, data = "reply_image", imageView{ID: v.ID, URL: d.URL, Prompt: d.Prompt}
		case Markdown:
			// Markdown HTML is sanitized before it is published.
			name, data = "reply_markdown", markdownView{ID: v.ID, HTML: template.HTML(d.HTML)} //nolint:gosec
		default:
			panic(fmt.Sprintf("events: unknown reply data %T", v.Data))
		}
	default:
		panic(fmt.Sprintf("events: unknown event %T", e))
	}

	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.String(), nil
}

// JSONRenderer renders events as JSON objects tagged with a "type" field.
type JSONRenderer struct{}

type signalJSON struct {
	Type     string `json:"type"`
	Kind     string `json:"kind"`
	Step     string `json:"step,omitempty"`
	Label    string `json:"label,omitempty"`
	Message  string `json:"message,omitempty"`
	Severity string `json:"severity"`
}

type inputSkeletonJSON struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Datetime string `json:"datetime"`
	Avatar   string `json:"avatar"`
	Name     string `json:"name"`
}

type inputJSON struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Content string `json:"content"`
}

type replySkeletonJSON struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Avatar string `json:"avatar"`
	Name   string `json:"name"`
}

type replyJSON struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Text   string `json:"text,omitempty"`
	URL    string `json:"url,omitempty"`
	Prompt string `json:"prompt,omitempty"`
	HTML   string `json:"html,omitempty"`
}

func (JSONRenderer) Render(e Event) (string, error) {
	var payload any

	switch v := e.(type) {
	case Signal:
		sev := "info"
		if v.Kind == SignalError {
			sev = "error"
		}
		s := signalJSON{Type: "signal", Kind: string(v.Kind), Message: v.Message, Severity: sev}
		if v.Step != "" {
			s.Step = string(v.Step)
			s.Label = v.Step.Label()
		}
		payload = s
	case InputSkeleton:
		payload = inputSkeletonJSON{
			Type:     "input_skeleton",
			ID:       v.ID,
			Datetime: v.Datetime.UTC().Format("2006-01-02T15:04:05Z07:00"),
			Avatar:   v.Avatar,
			Name:     v.Name,
		}
	case Input:
		payload = inputJSON{Type: "input", ID: v.ID, Content: v.Content}
	case ReplySkeleton:
		payload = replySkeletonJSON{Type: "reply_skeleton", ID: v.ID, Avatar: v.Avatar, Name: v.Name}
	case Reply:
		r := replyJSON{Type: "reply", ID: v.ID}
		switch d := v.Data.(type) {
		case Speech:
			r.Kind, r.Text, r.URL = "speech", d.Text, d.URL
		case Image:
			r.Kind, r.URL, r.Prompt = "image", d.URL, d.Prompt
		case Markdown:
			r.Kind, r.HTML = "markdown", d.HTML
		default:
			panic(fmt.Sprintf("events: unknown reply data %T", v.Data))
		}
		payload = r
	default:
		panic(fmt.Sprintf("events: unknown event %T", e))
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding %s event: %w", Name(e), err)
	}
	return string(data), nil
}
