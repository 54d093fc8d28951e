// ABOUTME: Cookie-based device identity correlating uploads with viewers
// ABOUTME: Resolves the device cookie, mints one on first visit, and exposes HTTP middleware

package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DefaultCookieName is the cookie carrying the device identity.
const DefaultCookieName = "device_id"

// DefaultCookieMaxAge keeps a device identity for a year.
const DefaultCookieMaxAge = 365 * 24 * time.Hour

// DeviceConfig configures DeviceIdentity.
type DeviceConfig struct {
	CookieName string
	MaxAge     time.Duration
	// Secret, when set, makes the cookie an HS256 token instead of a bare id.
	Secret []byte
	// Secure marks the cookie HTTPS-only.
	Secure bool
	Logger *slog.Logger
}

// DeviceIdentity issues and recognizes device cookies. Device ids are UUIDs,
// which keeps them safe to use as path segments.
type DeviceIdentity struct {
	name   string
	maxAge time.Duration
	secure bool
	signer TokenSigner
	logger *slog.Logger
}

// NewDeviceIdentity applies defaults to cfg.
func NewDeviceIdentity(cfg DeviceConfig) *DeviceIdentity {
	d := &DeviceIdentity{
		name:   cfg.CookieName,
		maxAge: cfg.MaxAge,
		secure: cfg.Secure,
		logger: cfg.Logger,
	}
	if d.name == "" {
		d.name = DefaultCookieName
	}
	if d.maxAge <= 0 {
		d.maxAge = DefaultCookieMaxAge
	}
	if len(cfg.Secret) > 0 {
		d.signer = NewJWTSigner(cfg.Secret)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Resolve returns the device id carried by the request's cookie.
func (d *DeviceIdentity) Resolve(r *http.Request) (string, bool) {
	c, err := r.Cookie(d.name)
	if err != nil || c.Value == "" {
		return "", false
	}

	id := c.Value
	if d.signer != nil {
		id, err = d.signer.Verify(c.Value)
		if err != nil {
			d.logger.Debug("rejecting device cookie", "error", err)
			return "", false
		}
	}

	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// Mint creates a new device id and sets its cookie on w.
func (d *DeviceIdentity) Mint(w http.ResponseWriter) (string, error) {
	id := uuid.NewString()

	value := id
	if d.signer != nil {
		token, err := d.signer.Generate(id, d.maxAge)
		if err != nil {
			return "", err
		}
		value = token
	}

	http.SetCookie(w, &http.Cookie{
		Name:     d.name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(d.maxAge / time.Second),
		HttpOnly: true,
		Secure:   d.secure,
		SameSite: http.SameSiteLaxMode,
	})
	d.logger.Info("minted device identity", "device_id", id)
	return id, nil
}

// Ensure resolves the device id, minting one if the request has none.
func (d *DeviceIdentity) Ensure(w http.ResponseWriter, r *http.Request) (string, error) {
	if id, ok := d.Resolve(r); ok {
		return id, nil
	}
	return d.Mint(w)
}

// EnsureDevice is middleware that attaches the device id to the request
// context, minting a cookie for first-time visitors.
func (d *DeviceIdentity) EnsureDevice(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := d.Ensure(w, r)
		if err != nil {
			d.logger.Error("failed to mint device identity", "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithDevice(r.Context(), id)))
	})
}

// RequireDevice is middleware that rejects requests without a valid device cookie.
func (d *DeviceIdentity) RequireDevice(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := d.Resolve(r)
		if !ok {
			http.Error(w, "missing device identity", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithDevice(r.Context(), id)))
	})
}
