package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nvaidyanathan/panchangam-today/internal/degraded"
	"github.com/nvaidyanathan/panchangam-today/internal/geoloc"
	"github.com/nvaidyanathan/panchangam-today/internal/ics"
	"github.com/nvaidyanathan/panchangam-today/internal/lifecycle"
	"github.com/nvaidyanathan/panchangam-today/internal/models"
	"github.com/nvaidyanathan/panchangam-today/internal/overload"
	"github.com/nvaidyanathan/panchangam-today/internal/panchangam"
	"github.com/nvaidyanathan/panchangam-today/internal/status"
	"github.com/nvaidyanathan/panchangam-today/internal/validation"
)

// HealthConfig holds lifecycle thresholds for the health handler.
type HealthConfig struct {
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int
	DegradedWindow       time.Duration
	DegradedErrorPct     int
	// CachePing, when set, is called to check cache reachability. Used when
	// the backend is memcached.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	resolver     *geoloc.Resolver
	snapshots    *panchangam.Service
	holder       *panchangam.Holder
	engine       *status.Engine
	exporter     *ics.Exporter
	healthConfig *HealthConfig
	logger       *zap.Logger
	rateLimiter  *rate.Limiter

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(
	resolver *geoloc.Resolver,
	snapshots *panchangam.Service,
	holder *panchangam.Holder,
	engine *status.Engine,
	exporter *ics.Exporter,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	rateLimiter *rate.Limiter,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		resolver:     resolver,
		snapshots:    snapshots,
		holder:       holder,
		engine:       engine,
		exporter:     exporter,
		healthConfig: healthConfig,
		logger:       logger,
		rateLimiter:  rateLimiter,
	}
}

// GetLocation handles GET /location. Resolution never errors; the terminal
// fallback is a constant.
func (h *Handler) GetLocation(w http.ResponseWriter, r *http.Request) {
	pref := h.resolver.Resolve(r.Context())
	writeJSON(w, http.StatusOK, pref)
}

// deviceFixRequest carries the device geolocation outcome from the client:
// either a fix or its failure classification. An empty body means the device
// step is unavailable and the chain falls through to the IP lookup.
type deviceFixRequest struct {
	Device *struct {
		Latitude  float64   `json:"latitude"`
		Longitude float64   `json:"longitude"`
		Accuracy  float64   `json:"accuracy"`
		Timestamp time.Time `json:"timestamp"`
		Timezone  string    `json:"timezone"`
	} `json:"device"`
	Error string `json:"error"`
}

// PostResolveLocation handles POST /location/resolve. The browser performs
// the actual geolocation request and reports the result here; the rest of
// the chain (reverse geocode, IP fallback, default) runs server-side.
func (h *Handler) PostResolveLocation(w http.ResponseWriter, r *http.Request) {
	var req deviceFixRequest
	if r.Body != nil {
		// Malformed bodies degrade to "no device result": the chain still
		// produces a location.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	var pref models.LocationPreference
	if req.Device != nil {
		fix := geoloc.Fix{
			Coordinates: models.Coordinates{Latitude: req.Device.Latitude, Longitude: req.Device.Longitude},
			Accuracy:    req.Device.Accuracy,
			Timestamp:   req.Device.Timestamp,
			Timezone:    req.Device.Timezone,
		}
		pref = h.resolver.ResolveWithFix(r.Context(), fix, nil)
	} else {
		pref = h.resolver.ResolveWithFix(r.Context(), geoloc.Fix{}, deviceError(req.Error))
	}
	writeJSON(w, http.StatusOK, pref)
}

// deviceError maps a client-reported failure class onto the error taxonomy.
func deviceError(class string) error {
	switch class {
	case "permission_denied":
		return geoloc.ErrPermissionDenied
	case "timeout":
		return geoloc.ErrTimeout
	default:
		return geoloc.ErrPositionUnavailable
	}
}

type manualLocationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Label     string  `json:"label"`
	Timezone  string  `json:"timezone"`
}

// PutLocation handles PUT /location: an explicit manual choice that takes
// permanent precedence until cleared.
func (h *Handler) PutLocation(w http.ResponseWriter, r *http.Request) {
	var req manualLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	if err := validation.ValidateCoordinates(req.Latitude, req.Longitude); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
		return
	}
	tz := req.Timezone
	if tz != "" {
		valid, err := validation.ValidateTimezone(tz)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_TIMEZONE", err.Error())
			return
		}
		tz = valid
	}

	pref, err := h.resolver.SetManual(r.Context(), models.Coordinates{Latitude: req.Latitude, Longitude: req.Longitude}, req.Label, tz)
	if err != nil {
		// The in-session preference is set; persistence trouble is logged by
		// the resolver. Still report success with the effective value.
		if logger := requestLogger(r); logger != nil {
			logger.Warn("manual preference persisted with errors", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, pref)
}

// DeleteLocation handles DELETE /location: drops the stored preference so the
// next resolution restarts the chain.
func (h *Handler) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	if err := h.resolver.Clear(r.Context()); err != nil {
		writeError(w, r, http.StatusInternalServerError, "CLEAR_FAILED", "could not clear stored preference")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// todayResponse is the live "today" view: the snapshot plus each window's
// current lifecycle status.
type todayResponse struct {
	Location models.LocationPreference  `json:"location"`
	Snapshot *models.PanchangamSnapshot `json:"snapshot"`
	Statuses []models.WindowStatus      `json:"statuses"`
	Now      time.Time                  `json:"now"`
}

// GetToday handles GET /today?date=YYYY-MM-DD. The snapshot fetch is
// last-request-wins; failures are retryable by re-issuing the request.
func (h *Handler) GetToday(w http.ResponseWriter, r *http.Request) {
	pref := h.resolver.Resolve(r.Context())
	loc := locationOf(pref.Timezone)

	date, err := validation.ValidateDate(r.URL.Query().Get("date"), loc)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_DATE", err.Error())
		return
	}

	snap, err := h.holder.Refresh(r.Context(), date, pref.Coordinates, pref.Timezone)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.engine.SetWindows(snap.AllWindows())
	writeJSON(w, http.StatusOK, todayResponse{
		Location: pref,
		Snapshot: snap,
		Statuses: h.engine.Statuses(),
		Now:      time.Now().In(loc),
	})
}

// GetCalendar handles GET /calendar.ics?date=&days=. Export is one-shot and
// best-effort: days beyond the first that fail to fetch are skipped.
func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	pref := h.resolver.Resolve(r.Context())
	loc := locationOf(pref.Timezone)

	date, err := validation.ValidateDate(r.URL.Query().Get("date"), loc)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_DATE", err.Error())
		return
	}

	days := 1
	if raw := r.URL.Query().Get("days"); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil || days < 1 || days > 60 {
			writeError(w, r, http.StatusBadRequest, "INVALID_DAYS", "days must be 1..60")
			return
		}
	}

	base, _ := time.ParseInLocation("2006-01-02", date, loc)
	snaps := make([]*models.PanchangamSnapshot, 0, days)
	for i := 0; i < days; i++ {
		day := base.AddDate(0, 0, i).Format("2006-01-02")
		snap, fetchErr := h.snapshots.GetSnapshot(r.Context(), day, pref.Coordinates, pref.Timezone)
		if fetchErr != nil {
			if i == 0 {
				writeServiceError(w, r, fetchErr)
				return
			}
			if logger := requestLogger(r); logger != nil {
				logger.Warn("calendar export skipping day", zap.String("date", day), zap.Error(fetchErr))
			}
			continue
		}
		snaps = append(snaps, snap)
	}

	doc, _ := h.exporter.Export(snaps...)
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+ics.Filename(date))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.status == "degraded" {
		checks["panchangamApi"] = "unhealthy"
	} else {
		checks["panchangamApi"] = "healthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "panchangam-today",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsDraining() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	threshold := float64(h.healthConfig.RateLimitRPS) * h.healthConfig.OverloadWindow.Seconds() * float64(h.healthConfig.OverloadThresholdPct) / 100
	if threshold > 0 && float64(overload.RequestCount(h.healthConfig.OverloadWindow)) > threshold {
		return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
	}
	if h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errCount, total := degraded.ErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(errCount) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

func locationOf(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func requestLogger(r *http.Request) *zap.Logger {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok {
		return logger
	}
	return nil
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code,
// message, and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeServiceError writes a 503 for upstream snapshot failures; the client
// may retry the same request.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch panchangam data")
	if logger := requestLogger(r); logger != nil {
		logger.Debug("upstream error", zap.Error(err))
	}
}
