// Package geoloc resolves the user's effective location through a prioritized
// fallback chain: stored preference, device fix, IP lookup, fixed default.
// Every transport is an interface so the chain is testable without a real
// device or network.
package geoloc

import (
	"context"
	"errors"
	"time"

	"github.com/nvaidyanathan/panchangam-today/internal/models"
)

var (
	// ErrPermissionDenied means the device refused to share its position.
	ErrPermissionDenied = errors.New("geolocation permission denied")
	// ErrPositionUnavailable means no position source exists or it failed.
	ErrPositionUnavailable = errors.New("position unavailable")
	// ErrTimeout means a position or network lookup exceeded its deadline.
	ErrTimeout = errors.New("geolocation timeout")
	// ErrNetworkFailure means a geolocation network call failed.
	ErrNetworkFailure = errors.New("geolocation network failure")
)

// ErrorClass returns a stable label for chain-failure metrics.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrNetworkFailure):
		return "network"
	default:
		return "unavailable"
	}
}

// Fix is a single-shot device position. Timestamp is when the fix was taken;
// the resolver rejects fixes older than its configured max age. Timezone is
// optional (the device usually knows its own zone).
type Fix struct {
	Coordinates models.Coordinates
	Accuracy    float64
	Timestamp   time.Time
	Timezone    string
}

// DeviceLocator requests one current position fix from the hosting device.
type DeviceLocator interface {
	CurrentPosition(ctx context.Context) (Fix, error)
}

// NoDevice is a DeviceLocator for hosts without a position source. Device
// fixes then arrive only through ResolveWithFix.
type NoDevice struct{}

func (NoDevice) CurrentPosition(context.Context) (Fix, error) {
	return Fix{}, ErrPositionUnavailable
}

// Place is a best-effort human-readable location.
type Place struct {
	City    string
	Country string
}

// ReverseGeocoder turns coordinates into a Place. Failures are non-fatal;
// the resolver falls back to a generic label.
type ReverseGeocoder interface {
	Locate(ctx context.Context, lat, lon float64) (Place, error)
}

// IPLocation is a city-level approximation derived from the client's IP.
type IPLocation struct {
	Coordinates models.Coordinates
	City        string
	Country     string
	Timezone    string
}

// IPLocator approximates the current location from the network address.
type IPLocator interface {
	Locate(ctx context.Context) (IPLocation, error)
}

// PreferenceStore persists exactly one LocationPreference record.
type PreferenceStore interface {
	Load(ctx context.Context) (models.LocationPreference, bool, error)
	Save(ctx context.Context, pref models.LocationPreference) error
	Clear(ctx context.Context) error
}
