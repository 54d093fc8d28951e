// Package store persists the assistant's invocation ledger using SQLite.
//
// # Data Model
//
// Each assistant run produces one Invocation row: the device it ran for, the
// tool the model selected (if any), whether it finished or failed, the error
// classification and viewer-facing message on failure, and the tokens the chat
// completions consumed. Event payloads are not stored; the live event stream
// is in-memory only.
//
// # Queries
//
//   - SaveInvocation inserts one record
//   - ListInvocations returns records newest first, filtered by device and time window
//   - GetUsageStats rolls up counts, failures, tokens, and per-tool totals
//
// # Driver
//
// SQLiteStore uses the pure-Go modernc.org/sqlite driver. File databases run in
// WAL mode. The path ":memory:" opens a private in-memory database pinned to a
// single connection, which is what tests use.
package store
