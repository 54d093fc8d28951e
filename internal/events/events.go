// ABOUTME: Closed set of assistant events published on device buses
// ABOUTME: Signal, InputSkeleton, Input, ReplySkeleton, Reply and the Reply payload union

package events

import (
	"fmt"
	"time"
)

// TopicEvents is the device bus every event is published on. Signals and
// conversation events share it so viewers see one invocation in publish order.
const TopicEvents = "events"

// Identity shown on assistant replies.
const (
	AssistantName   = "Ava"
	AssistantAvatar = "/static/ava.svg"
)

// Event is one published assistant event. The set of implementations is
// closed: Signal, InputSkeleton, Input, ReplySkeleton and Reply.
type Event interface {
	isEvent()
}

// Step names a pipeline state.
type Step string

const (
	StepUploadAudio   Step = "upload_audio"
	StepTranscription Step = "transcription"
	StepThinking      Step = "thinking"
	StepAnswer        Step = "answer"
	StepDrawImage     Step = "draw_image"
	StepWriteCode     Step = "write_code"
	StepSpeech        Step = "speech"
)

// Label returns the human-readable progress text for the step.
func (s Step) Label() string {
	switch s {
	case StepUploadAudio:
		return "Uploading audio"
	case StepTranscription:
		return "Transcribing audio"
	case StepThinking:
		return "Thinking"
	case StepAnswer:
		return "Composing an answer"
	case StepDrawImage:
		return "Drawing image"
	case StepWriteCode:
		return "Writing code"
	case StepSpeech:
		return "Synthesizing speech"
	default:
		return string(s)
	}
}

// SignalKind distinguishes progress, step completion, failure and completion.
type SignalKind string

const (
	SignalProgress SignalKind = "progress"
	SignalFinish   SignalKind = "finish"
	SignalError    SignalKind = "error"
	SignalComplete SignalKind = "complete"
)

// Signal reports pipeline state. Step is set for progress and finish;
// Message is set for error.
type Signal struct {
	Kind    SignalKind
	Step    Step
	Message string
}

// Progress is the signal published when a pipeline state is entered.
func Progress(step Step) Signal { return Signal{Kind: SignalProgress, Step: step} }

// Finished is the signal for a step that ended without a reply of its own.
// The pipeline does not publish it; it is rendered for clients that drive
// their own step indicators.
func Finished(step Step) Signal { return Signal{Kind: SignalFinish, Step: step} }

// Failed is the terminal error signal.
func Failed(msg string) Signal { return Signal{Kind: SignalError, Message: msg} }

// Completed is the terminal success signal.
func Completed() Signal { return Signal{Kind: SignalComplete} }

// Terminal reports whether the signal ends an invocation's signal stream.
func (s Signal) Terminal() bool {
	return s.Kind == SignalError || s.Kind == SignalComplete
}

// InputSkeleton is a placeholder for a user message still being transcribed.
// It is reserved for publishers that show a placeholder during upload; the
// pipeline publishes Input directly once the transcript exists.
type InputSkeleton struct {
	ID       string
	Datetime time.Time
	Avatar   string
	Name     string
}

// Input is the transcribed user message.
type Input struct {
	ID      string
	Content string
}

// ReplySkeleton is a placeholder for a reply whose content is still being produced.
type ReplySkeleton struct {
	ID     string
	Avatar string
	Name   string
}

// NewReplySkeleton returns a skeleton carrying the assistant identity.
func NewReplySkeleton(id string) ReplySkeleton {
	return ReplySkeleton{ID: id, Avatar: AssistantAvatar, Name: AssistantName}
}

// Reply completes the ReplySkeleton with the same ID.
type Reply struct {
	ID   string
	Data ReplyData
}

// ReplyData is the payload of a Reply: Speech, Image or Markdown.
type ReplyData interface {
	isReplyData()
}

// Speech is a spoken answer with its transcript.
type Speech struct {
	Text string
	URL  string
}

// Image is a generated picture and the prompt the generator actually used.
type Image struct {
	URL    string
	Prompt string
}

// Markdown is rendered, sanitized HTML.
type Markdown struct {
	HTML string
}

func (Signal) isEvent()        {}
func (InputSkeleton) isEvent() {}
func (Input) isEvent()         {}
func (ReplySkeleton) isEvent() {}
func (Reply) isEvent()         {}

func (Speech) isReplyData()   {}
func (Image) isReplyData()    {}
func (Markdown) isReplyData() {}

// Name returns the wire tag of an event: "signal", "input" or "reply".
func Name(e Event) string {
	switch e.(type) {
	case Signal:
		return "signal"
	case InputSkeleton, Input:
		return "input"
	case ReplySkeleton, Reply:
		return "reply"
	default:
		panic(fmt.Sprintf("events: unknown event %T", e))
	}
}

// ID returns the correlation id of an event, or "" for signals.
func ID(e Event) string {
	switch v := e.(type) {
	case Signal:
		return ""
	case InputSkeleton:
		return v.ID
	case Input:
		return v.ID
	case ReplySkeleton:
		return v.ID
	case Reply:
		return v.ID
	default:
		panic(fmt.Sprintf("events: unknown event %T", e))
	}
}
