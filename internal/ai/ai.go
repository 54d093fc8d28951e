// ABOUTME: Domain types for the external AI services used by the assistant
// ABOUTME: Chat requests and results, tool calls, token usage, generated images

package ai

import (
	"errors"

	"github.com/2389/ava-gateway/internal/tools"
)

// Finish reasons reported by chat completion.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
	FinishLength    = "length"
)

// ErrNoChoices is returned when a chat completion comes back without choices.
var ErrNoChoices = errors.New("chat completion returned no choices")

// ChatRequest is a single-turn chat completion: a system prompt, an optional
// assistant name, the user's text, and the tools the model may call.
type ChatRequest struct {
	System string
	Name   string
	User   string
	Tools  []tools.Definition
}

// ToolCall is one function call chosen by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Usage counts tokens consumed by a call.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// Add returns the sum of two usages.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
	}
}

// ChatResult is the first choice of a chat completion.
type ChatResult struct {
	FinishReason string
	Content      string
	ToolCalls    []ToolCall
	Usage        Usage
}

// Image is a generated image and the prompt the generator actually used.
type Image struct {
	Data          []byte
	RevisedPrompt string
}
