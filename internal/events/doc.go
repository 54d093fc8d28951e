// Package events defines the assistant event model and its wire encodings.
//
// Events form a closed union: Signal, InputSkeleton, Input, ReplySkeleton
// and Reply, with Reply carrying one of Speech, Image or Markdown. Every
// consumer switches over the full set and panics on anything else, so adding
// a variant fails loudly until each consumer handles it.
//
// Every event of a device travels on the single "events" topic. On the
// wire each event becomes a Frame named "signal", "input" or "reply" with the
// correlation id of skeleton and payload events.
package events
