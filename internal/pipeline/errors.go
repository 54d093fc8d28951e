// ABOUTME: Error taxonomy for assistant invocations
// ABOUTME: Every failure is classified and rendered to one viewer-facing message

package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies an invocation failure.
type Kind int

const (
	// KindInputValidation covers a missing or misnamed upload field and malformed tool arguments.
	KindInputValidation Kind = iota + 1
	// KindUpstream covers external AI call failures and unexpected response shapes.
	KindUpstream
	// KindUnsupported covers unrecognized finish reasons and tool names.
	KindUnsupported
	// KindStorage covers artifact write failures.
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindInputValidation:
		return "input_validation"
	case KindUpstream:
		return "upstream_service_failure"
	case KindUnsupported:
		return "unsupported_outcome"
	case KindStorage:
		return "storage_failure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Messages for failures with a fixed wording.
const (
	msgExpectedAudio      = "expected an audio field"
	msgStopReason         = "stop reason not supported"
	msgNoTool             = "no proper tool found"
	msgInvalidToolArgs    = "invalid tool arguments"
	msgEmptyAudio         = "audio field is empty"
	msgReadUpload         = "reading upload failed"
	msgTranscription      = "transcription failed"
	msgChatCompletion     = "chat completion failed"
	msgMissingToolCall    = "chat completion requested a tool without naming one"
	msgEmptyAnswer        = "chat completion returned no text"
	msgSpeech             = "speech synthesis failed"
	msgImage              = "image generation failed"
	msgMarkdown           = "rendering code failed"
	msgSaveAudio          = "saving audio failed"
	msgSaveImage          = "saving image failed"
	msgInvocationTimedOut = "assistant timed out"
)

// Error is a classified invocation failure. Its Error text is what viewers see.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the classification of err. Unclassified errors count as upstream failures.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUpstream
}
