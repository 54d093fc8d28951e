package ai

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/2389/ava-gateway/internal/ai"

var tracer = otel.Tracer(scopeName)
