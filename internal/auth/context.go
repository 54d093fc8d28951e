// ABOUTME: Device identity carried through request handlers
// ABOUTME: Provides WithDevice/DeviceFromContext for propagating the resolved device id

package auth

import (
	"context"
)

// deviceContextKey is the key type for storing the device id in context.Context.
type deviceContextKey struct{}

// WithDevice returns a new context with the device id attached.
func WithDevice(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceContextKey{}, deviceID)
}

// DeviceFromContext retrieves the device id, returning "" if not present.
func DeviceFromContext(ctx context.Context) string {
	id, _ := ctx.Value(deviceContextKey{}).(string)
	return id
}
