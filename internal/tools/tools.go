// ABOUTME: Closed set of assistant tools and their function definitions
// ABOUTME: Argument schemas are reflected from Go structs for the chat service

package tools

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Name identifies a tool offered to the tool-selecting chat completion.
type Name string

const (
	DrawImage Name = "draw_image"
	WriteCode Name = "write_code"
	Answer    Name = "answer"
)

// Names lists every tool in the order they are offered to the model.
var Names = []Name{DrawImage, WriteCode, Answer}

// Description returns the tool description shown to the model.
func (n Name) Description() string {
	switch n {
	case DrawImage:
		return "Draw an image based on the prompt."
	case WriteCode:
		return "Write code based on the prompt."
	case Answer:
		return "Just reply based on the prompt."
	default:
		return ""
	}
}

// DrawImageArgs are the arguments of draw_image.
type DrawImageArgs struct {
	Prompt string `json:"prompt" jsonschema:"description=The prompt describing the image to draw"`
}

// WriteCodeArgs are the arguments of write_code.
type WriteCodeArgs struct {
	Prompt string `json:"prompt" jsonschema:"description=The prompt describing the code to write"`
}

// AnswerArgs are the arguments of answer.
type AnswerArgs struct {
	Prompt string `json:"prompt" jsonschema:"description=The prompt to reply to"`
}

// Definition describes one tool as a function the model may call.
type Definition struct {
	Name        Name
	Description string
	Parameters  map[string]any
}

// Definitions returns the function definitions for every tool.
func Definitions() ([]Definition, error) {
	defs := make([]Definition, 0, len(Names))
	for _, name := range Names {
		var args any
		switch name {
		case DrawImage:
			args = &DrawImageArgs{}
		case WriteCode:
			args = &WriteCodeArgs{}
		case Answer:
			args = &AnswerArgs{}
		}

		params, err := schemaOf(args)
		if err != nil {
			return nil, fmt.Errorf("building schema for %s: %w", name, err)
		}
		defs = append(defs, Definition{Name: name, Description: name.Description(), Parameters: params})
	}
	return defs, nil
}

// schemaOf reflects v into a self-contained JSON Schema object.
func schemaOf(v any) (map[string]any, error) {
	reflector := jsonschema.Reflector{DoNotReference: true, Anonymous: true}
	schema := reflector.Reflect(v)
	schema.Version = ""

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
