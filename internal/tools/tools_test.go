// ABOUTME: Tests for tool definitions and dispatch
// ABOUTME: Covers exact-name routing, unknown tools, and malformed arguments

package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_RoutesEachTool(t *testing.T) {
	tests := []struct {
		name string
		want Invocation
	}{
		{"draw_image", DrawImageCall{Args: DrawImageArgs{Prompt: "a cat"}}},
		{"write_code", WriteCodeCall{Args: WriteCodeArgs{Prompt: "a cat"}}},
		{"answer", AnswerCall{Args: AnswerArgs{Prompt: "a cat"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Dispatch(tt.name, `{"prompt":"a cat"}`)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, Name(tt.name), got.Tool())
		})
	}
}

func TestDispatch_NameIsCaseExact(t *testing.T) {
	for _, name := range []string{"Draw_Image", "ANSWER", "write-code", "", "answer "} {
		_, err := Dispatch(name, `{"prompt":"x"}`)
		assert.ErrorIs(t, err, ErrToolNotFound, "name %q", name)
		assert.NotErrorIs(t, err, ErrMalformedArguments)
	}
}

func TestDispatch_MalformedArguments(t *testing.T) {
	tests := map[string]string{
		"not json":      `prompt=a cat`,
		"wrong type":    `{"prompt":42}`,
		"empty prompt":  `{"prompt":"  "}`,
		"missing":       `{}`,
		"trailing data": `{"prompt":"a"} {"prompt":"b"}`,
		"unknown field": `{"prompt":"a cat","style":"noir"}`,
		"empty":         ``,
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Dispatch("draw_image", args)
			assert.ErrorIs(t, err, ErrMalformedArguments)
			assert.NotErrorIs(t, err, ErrToolNotFound)
		})
	}
}

func TestDefinitions(t *testing.T) {
	defs, err := Definitions()
	require.NoError(t, err)
	require.Len(t, defs, 3)

	assert.Equal(t, DrawImage, defs[0].Name)
	assert.Equal(t, "Draw an image based on the prompt.", defs[0].Description)
	assert.Equal(t, "Write code based on the prompt.", defs[1].Description)
	assert.Equal(t, "Just reply based on the prompt.", defs[2].Description)

	for _, d := range defs {
		assert.Equal(t, "object", d.Parameters["type"], d.Name)
		props, ok := d.Parameters["properties"].(map[string]any)
		require.True(t, ok, d.Name)
		assert.Contains(t, props, "prompt")
		assert.Contains(t, d.Parameters["required"], "prompt")
		assert.NotContains(t, d.Parameters, "$ref")
	}
}
