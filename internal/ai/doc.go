// Package ai calls the external AI services the assistant depends on:
// speech-to-text, tool-selecting chat completion, text-to-speech and image
// generation. Client talks to the OpenAI API (or any compatible endpoint set
// through BaseURL).
package ai
