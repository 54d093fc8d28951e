// Package auth identifies devices.
//
// A device is whatever browser holds the long-lived device cookie. The cookie
// is minted on the first visit and correlates a device's uploads with its live
// viewers; it is not a login. By default the cookie value is the bare device
// UUID. With a configured secret the value is an HS256 JWT whose subject is
// the device id, so forged or tampered cookies are rejected.
//
// EnsureDevice mints identities for pages and streams. RequireDevice guards
// endpoints such as uploads that make no sense without an existing identity.
// Both attach the id to the request context, read back with DeviceFromContext.
package auth
