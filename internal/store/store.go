// ABOUTME: Store interface and data types for the assistant invocation ledger
// ABOUTME: Defines Invocation records, usage statistics, and the filters used to query them

package store

import (
	"context"
	"time"
)

// Invocation statuses.
const (
	StatusDone  = "done"
	StatusError = "error"
)

// Invocation records the outcome of one assistant run. It holds no event
// payloads; the live event stream is not persisted.
type Invocation struct {
	ID               string
	DeviceID         string
	Tool             string // draw_image, write_code, answer; empty if routing never happened
	Status           string // done or error
	ErrorKind        string
	Error            string
	PromptTokens     int64
	CompletionTokens int64
	StartedAt        time.Time
	FinishedAt       time.Time
}

// Duration returns how long the invocation ran.
func (i *Invocation) Duration() time.Duration {
	return i.FinishedAt.Sub(i.StartedAt)
}

// InvocationFilter narrows ListInvocations and GetUsageStats. Nil fields are ignored.
type InvocationFilter struct {
	DeviceID *string
	Since    *time.Time
	Until    *time.Time
	Limit    int
}

// UsageStats aggregates invocations.
type UsageStats struct {
	Invocations      int64            `json:"invocations"`
	Failed           int64            `json:"failed"`
	PromptTokens     int64            `json:"prompt_tokens"`
	CompletionTokens int64            `json:"completion_tokens"`
	TotalTokens      int64            `json:"total_tokens"`
	ByTool           map[string]int64 `json:"by_tool"`
}

// Store persists the invocation ledger.
type Store interface {
	SaveInvocation(ctx context.Context, inv *Invocation) error
	ListInvocations(ctx context.Context, filter InvocationFilter) ([]*Invocation, error)
	GetUsageStats(ctx context.Context, filter InvocationFilter) (*UsageStats, error)
	Close() error
}
