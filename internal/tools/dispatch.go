// ABOUTME: Maps a model tool call to a typed branch invocation
// ABOUTME: Distinguishes unknown tools from malformed arguments

package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrToolNotFound is returned for a tool name outside the closed set.
	ErrToolNotFound = errors.New("no proper tool found")

	// ErrMalformedArguments is returned when tool arguments do not decode.
	ErrMalformedArguments = errors.New("malformed tool arguments")
)

// Invocation is a decoded tool call: one of DrawImageCall, WriteCodeCall or AnswerCall.
type Invocation interface {
	Tool() Name
}

// DrawImageCall asks for an image.
type DrawImageCall struct{ Args DrawImageArgs }

// WriteCodeCall asks for code.
type WriteCodeCall struct{ Args WriteCodeArgs }

// AnswerCall asks for a spoken answer.
type AnswerCall struct{ Args AnswerArgs }

func (DrawImageCall) Tool() Name { return DrawImage }
func (WriteCodeCall) Tool() Name { return WriteCode }
func (AnswerCall) Tool() Name    { return Answer }

// Dispatch matches name exactly against the tool set and decodes arguments
// into the branch type. It performs no I/O.
func Dispatch(name string, arguments string) (Invocation, error) {
	switch Name(name) {
	case DrawImage:
		var args DrawImageArgs
		if err := decodeArgs(name, arguments, &args); err != nil {
			return nil, err
		}
		if err := requirePrompt(name, args.Prompt); err != nil {
			return nil, err
		}
		return DrawImageCall{Args: args}, nil
	case WriteCode:
		var args WriteCodeArgs
		if err := decodeArgs(name, arguments, &args); err != nil {
			return nil, err
		}
		if err := requirePrompt(name, args.Prompt); err != nil {
			return nil, err
		}
		return WriteCodeCall{Args: args}, nil
	case Answer:
		var args AnswerArgs
		if err := decodeArgs(name, arguments, &args); err != nil {
			return nil, err
		}
		if err := requirePrompt(name, args.Prompt); err != nil {
			return nil, err
		}
		return AnswerCall{Args: args}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}
}

// decodeArgs accepts exactly one JSON object with no fields beyond the
// argument struct's, matching the schema sent to the model.
func decodeArgs(name, arguments string, dst any) error {
	dec := json.NewDecoder(strings.NewReader(arguments))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w for %s: %v", ErrMalformedArguments, name, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w for %s: trailing data", ErrMalformedArguments, name)
	}
	return nil
}

func requirePrompt(name, prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("%w for %s: prompt is empty", ErrMalformedArguments, name)
	}
	return nil
}
