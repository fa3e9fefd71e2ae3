package geoloc

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nvaidyanathan/panchangam-today/internal/models"
	"github.com/nvaidyanathan/panchangam-today/internal/observability"
)

// DeviceResult is the outcome of the device-geolocation step.
type DeviceResult struct {
	Fix Fix
	Err error
}

// IPResult is the outcome of the IP-geolocation step.
type IPResult struct {
	Location IPLocation
	Err      error
}

// Decide is the pure priority function behind the resolver: stored preference
// wins outright, then a usable device fix, then a usable IP location, then
// the default. It never returns empty coordinates because def is a constant.
func Decide(stored *models.LocationPreference, device DeviceResult, ip IPResult, def models.LocationPreference) models.LocationPreference {
	if stored != nil {
		return *stored
	}
	if device.Err == nil && device.Fix.Coordinates.InRange() {
		pref := models.LocationPreference{
			Coordinates: device.Fix.Coordinates,
			Timezone:    device.Fix.Timezone,
			Source:      models.SourceGeolocation,
		}
		if pref.Timezone == "" {
			pref.Timezone = def.Timezone
		}
		return pref
	}
	if ip.Err == nil && ip.Location.Coordinates.InRange() {
		pref := models.LocationPreference{
			Coordinates: ip.Location.Coordinates,
			Timezone:    ip.Location.Timezone,
			Label:       joinPlace(ip.Location.City, ip.Location.Country),
			Source:      models.SourceIP,
		}
		if pref.Timezone == "" {
			pref.Timezone = def.Timezone
		}
		return pref
	}
	return def
}

func joinPlace(city, country string) string {
	parts := make([]string, 0, 2)
	if city != "" {
		parts = append(parts, city)
	}
	if country != "" {
		parts = append(parts, country)
	}
	return strings.Join(parts, ", ")
}

// Resolver owns the resolution chain and the session cache. A resolved value
// is persisted immediately and reused on subsequent calls; only Clear
// restarts the chain.
type Resolver struct {
	store     PreferenceStore
	device    DeviceLocator
	revgeo    ReverseGeocoder
	ip        IPLocator
	def       models.LocationPreference
	fixMaxAge time.Duration
	logger    *zap.Logger

	mu     sync.Mutex
	cached *models.LocationPreference
}

// NewResolver builds a Resolver. def must carry valid coordinates; it is the
// terminal fallback and is never allowed to be empty. A nil device locator
// behaves as NoDevice.
func NewResolver(store PreferenceStore, device DeviceLocator, revgeo ReverseGeocoder, ip IPLocator, def models.LocationPreference, fixMaxAge time.Duration, logger *zap.Logger) (*Resolver, error) {
	if !def.Coordinates.InRange() {
		return nil, fmt.Errorf("default coordinates out of range: %+v", def.Coordinates)
	}
	if def.Timezone == "" {
		return nil, fmt.Errorf("default timezone is required")
	}
	if device == nil {
		device = NoDevice{}
	}
	def.Source = models.SourceDefault
	if fixMaxAge <= 0 {
		fixMaxAge = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		store:     store,
		device:    device,
		revgeo:    revgeo,
		ip:        ip,
		def:       def,
		fixMaxAge: fixMaxAge,
		logger:    logger,
	}, nil
}

// Resolve returns the authoritative preference. Idempotent: the first call
// this session runs the chain, later calls return the cached value without
// touching the device or the network. Resolve never returns an error; every
// failure degrades to the next chain step.
func (r *Resolver) Resolve(ctx context.Context) models.LocationPreference {
	r.mu.Lock()
	if r.cached != nil {
		pref := *r.cached
		r.mu.Unlock()
		return pref
	}
	r.mu.Unlock()

	if stored, ok := r.loadStored(ctx); ok {
		return r.publish(ctx, stored, false)
	}

	dev := r.attemptDevice(ctx)
	return r.finish(ctx, nil, dev)
}

// ResolveWithFix runs the chain with a device result supplied by the caller
// (the actual fix comes from the client device over the wire). fixErr carries
// the device-side failure classification when no fix was obtained. A stored
// preference still wins: the supplied fix is ignored in that case.
func (r *Resolver) ResolveWithFix(ctx context.Context, fix Fix, fixErr error) models.LocationPreference {
	if stored, ok := r.loadStored(ctx); ok {
		return r.publish(ctx, stored, false)
	}

	dev := DeviceResult{Fix: fix, Err: fixErr}
	if dev.Err == nil {
		dev = r.checkFix(dev.Fix)
	}
	return r.finish(ctx, nil, dev)
}

// finish runs the remaining chain steps after the device step and publishes
// the decision.
func (r *Resolver) finish(ctx context.Context, stored *models.LocationPreference, dev DeviceResult) models.LocationPreference {
	if dev.Err != nil {
		observability.LocationChainFailuresTotal.WithLabelValues("device", ErrorClass(dev.Err)).Inc()
		r.logger.Debug("device geolocation failed", zap.String("class", ErrorClass(dev.Err)))
	}

	var ip IPResult
	if dev.Err != nil {
		ip = r.attemptIP(ctx)
		if ip.Err != nil {
			observability.LocationChainFailuresTotal.WithLabelValues("ip", ErrorClass(ip.Err)).Inc()
			r.logger.Debug("ip geolocation failed", zap.String("class", ErrorClass(ip.Err)))
		}
	} else {
		// Chain short-circuits: no IP lookup when the device produced a fix.
		ip = IPResult{Err: ErrPositionUnavailable}
	}

	pref := Decide(stored, dev, ip, r.def)
	if dev.Err == nil && pref.Source == models.SourceGeolocation {
		pref.Label = r.labelFor(ctx, pref)
	}
	return r.publish(ctx, pref, true)
}

// SetManual stores an explicit user choice. It takes precedence immediately
// and permanently, short-circuiting future Resolve calls until Clear. The
// returned error reports persistence trouble only; the in-session preference
// is set regardless.
func (r *Resolver) SetManual(ctx context.Context, coords models.Coordinates, label, timezone string) (models.LocationPreference, error) {
	if timezone == "" {
		timezone = r.def.Timezone
	}
	pref := models.LocationPreference{
		Coordinates: coords,
		Timezone:    timezone,
		Label:       label,
		Source:      models.SourceManual,
	}
	r.mu.Lock()
	r.cached = &pref
	r.mu.Unlock()
	observability.LocationResolutionsTotal.WithLabelValues(string(models.SourceManual)).Inc()

	if err := r.store.Save(ctx, pref); err != nil {
		r.logger.Warn("manual preference persist failed", zap.Error(err))
		return pref, fmt.Errorf("persist manual preference: %w", err)
	}
	return pref, nil
}

// Clear drops the persisted preference and the session cache. The next
// Resolve restarts the chain at the device step.
func (r *Resolver) Clear(ctx context.Context) error {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
	if err := r.store.Clear(ctx); err != nil {
		r.logger.Warn("preference clear failed", zap.Error(err))
		return fmt.Errorf("clear preference: %w", err)
	}
	return nil
}

// loadStored reads the persisted preference. Store errors are absorbed: a
// broken store degrades to re-running the chain.
func (r *Resolver) loadStored(ctx context.Context) (models.LocationPreference, bool) {
	stored, ok, err := r.store.Load(ctx)
	if err != nil {
		r.logger.Warn("preference load failed", zap.Error(err))
		return models.LocationPreference{}, false
	}
	if !ok || !stored.Coordinates.InRange() {
		return models.LocationPreference{}, false
	}
	return stored, true
}

// attemptDevice asks the device locator for a single fix and applies the
// max-age tolerance.
func (r *Resolver) attemptDevice(ctx context.Context) DeviceResult {
	fix, err := r.device.CurrentPosition(ctx)
	if err != nil {
		return DeviceResult{Err: err}
	}
	return r.checkFix(fix)
}

// checkFix validates a fix: coordinates in range, not older than fixMaxAge.
func (r *Resolver) checkFix(fix Fix) DeviceResult {
	if !fix.Coordinates.InRange() {
		return DeviceResult{Err: ErrPositionUnavailable}
	}
	if !fix.Timestamp.IsZero() && time.Since(fix.Timestamp) > r.fixMaxAge {
		return DeviceResult{Err: ErrPositionUnavailable}
	}
	return DeviceResult{Fix: fix}
}

// attemptIP performs the network fallback lookup.
func (r *Resolver) attemptIP(ctx context.Context) IPResult {
	if r.ip == nil {
		return IPResult{Err: ErrPositionUnavailable}
	}
	loc, err := r.ip.Locate(ctx)
	if err != nil {
		return IPResult{Err: err}
	}
	return IPResult{Location: loc}
}

// labelFor attaches a best-effort human label via reverse geocoding. Lookup
// failures leave the label empty rather than failing resolution.
func (r *Resolver) labelFor(ctx context.Context, pref models.LocationPreference) string {
	if r.revgeo == nil {
		return ""
	}
	place, err := r.revgeo.Locate(ctx, pref.Coordinates.Latitude, pref.Coordinates.Longitude)
	if err != nil {
		observability.LocationChainFailuresTotal.WithLabelValues("reverse_geocode", ErrorClass(err)).Inc()
		r.logger.Debug("reverse geocode failed", zap.Error(err))
		return ""
	}
	return joinPlace(place.City, place.Country)
}

// publish caches the preference for the session, persists it when it came
// from a fresh chain run, and records the terminal source.
func (r *Resolver) publish(ctx context.Context, pref models.LocationPreference, persist bool) models.LocationPreference {
	r.mu.Lock()
	r.cached = &pref
	r.mu.Unlock()
	observability.LocationResolutionsTotal.WithLabelValues(string(pref.Source)).Inc()

	if persist {
		if err := r.store.Save(ctx, pref); err != nil {
			r.logger.Warn("preference persist failed", zap.Error(err), zap.String("source", string(pref.Source)))
		}
	}
	return pref
}
