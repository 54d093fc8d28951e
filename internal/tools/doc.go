// Package tools is the tool dispatcher for the assistant pipeline.
//
// The model may pick one of three tools: draw_image, write_code and answer.
// Each takes a single "prompt" argument. Dispatch turns the model's choice
// into a typed invocation without calling anything, and reports
// ErrToolNotFound and ErrMalformedArguments separately so callers can
// classify the failure.
package tools
