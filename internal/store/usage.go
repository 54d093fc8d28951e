// ABOUTME: SQLite implementation of the invocation ledger and its usage rollups
// ABOUTME: Records each assistant run and aggregates token consumption for analytics

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// SaveInvocation stores an invocation record.
func (s *SQLiteStore) SaveInvocation(ctx context.Context, inv *Invocation) error {
	query := `
		INSERT INTO invocations (
			id, device_id, tool, status, error_kind, error,
			prompt_tokens, completion_tokens, started_at, finished_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		inv.ID,
		inv.DeviceID,
		inv.Tool,
		inv.Status,
		inv.ErrorKind,
		inv.Error,
		inv.PromptTokens,
		inv.CompletionTokens,
		formatTime(inv.StartedAt),
		formatTime(inv.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting invocation: %w", err)
	}

	s.logger.Debug("saved invocation",
		"id", inv.ID,
		"device_id", inv.DeviceID,
		"tool", inv.Tool,
		"status", inv.Status,
	)
	return nil
}

// ListInvocations returns invocations matching the filter, newest first.
func (s *SQLiteStore) ListInvocations(ctx context.Context, filter InvocationFilter) ([]*Invocation, error) {
	query := `
		SELECT id, device_id, tool, status, error_kind, error,
		       prompt_tokens, completion_tokens, started_at, finished_at
		FROM invocations
		WHERE 1=1
	`
	where, args := filterClause(filter)
	query += where + " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying invocations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var invocations []*Invocation
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		invocations = append(invocations, inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating invocation rows: %w", err)
	}

	return invocations, nil
}

// GetUsageStats returns aggregated usage statistics with optional filters.
func (s *SQLiteStore) GetUsageStats(ctx context.Context, filter InvocationFilter) (*UsageStats, error) {
	where, args := filterClause(filter)

	query := `
		SELECT
			COUNT(*) as invocation_count,
			COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0) as failed_count,
			COALESCE(SUM(prompt_tokens), 0) as total_prompt,
			COALESCE(SUM(completion_tokens), 0) as total_completion
		FROM invocations
		WHERE 1=1
	` + where

	stats := UsageStats{ByTool: map[string]int64{}}
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.Invocations,
		&stats.Failed,
		&stats.PromptTokens,
		&stats.CompletionTokens,
	)
	if err != nil {
		return nil, fmt.Errorf("querying usage stats: %w", err)
	}
	stats.TotalTokens = stats.PromptTokens + stats.CompletionTokens

	toolQuery := `
		SELECT tool, COUNT(*)
		FROM invocations
		WHERE tool != ''
	` + where + " GROUP BY tool"

	rows, err := s.db.QueryContext(ctx, toolQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tool counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var tool string
		var count int64
		if err := rows.Scan(&tool, &count); err != nil {
			return nil, fmt.Errorf("scanning tool count: %w", err)
		}
		stats.ByTool[tool] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tool counts: %w", err)
	}

	return &stats, nil
}

func filterClause(filter InvocationFilter) (string, []any) {
	var clause string
	args := []any{}

	if filter.DeviceID != nil {
		clause += " AND device_id = ?"
		args = append(args, *filter.DeviceID)
	}
	if filter.Since != nil {
		clause += " AND started_at >= ?"
		args = append(args, formatTime(*filter.Since))
	}
	if filter.Until != nil {
		clause += " AND started_at < ?"
		args = append(args, formatTime(*filter.Until))
	}
	return clause, args
}

// scanInvocation scans a single invocation row.
func scanInvocation(rows *sql.Rows) (*Invocation, error) {
	var inv Invocation
	var startedAt, finishedAt string

	err := rows.Scan(
		&inv.ID,
		&inv.DeviceID,
		&inv.Tool,
		&inv.Status,
		&inv.ErrorKind,
		&inv.Error,
		&inv.PromptTokens,
		&inv.CompletionTokens,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning invocation row: %w", err)
	}

	inv.StartedAt, err = time.Parse(timeLayout, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	inv.FinishedAt, err = time.Parse(timeLayout, finishedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing finished_at: %w", err)
	}

	return &inv, nil
}

// Ensure SQLiteStore implements Store interface.
var _ Store = (*SQLiteStore)(nil)
