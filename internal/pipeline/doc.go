// Package pipeline runs one assistant invocation end to end.
//
// An invocation moves through fixed states, each announced with a progress
// signal before it starts:
//
//	UploadAudio -> Transcription -> Thinking -> {Answer | DrawImage | WriteCode} -> (Answer) Speech
//
// The transcript is published as an Input event. Before a branch does its slow
// work a ReplySkeleton with the invocation id is published, and the branch's
// result arrives as a Reply with the same id. Every invocation ends with
// exactly one terminal signal: Complete after the Reply, or Error with a
// single viewer-facing message. Failures never surface as HTTP errors to the
// uploader; they are classified by Kind and delivered on the event stream.
//
// A chat completion that stops without calling a tool is spoken as-is through
// the same Answer branch a tool-selected answer uses.
package pipeline
