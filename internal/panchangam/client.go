package panchangam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nvaidyanathan/panchangam-today/internal/circuitbreaker"
	"github.com/nvaidyanathan/panchangam-today/internal/models"
	"github.com/nvaidyanathan/panchangam-today/internal/observability"
)

// SnapshotClient fetches the computed panchangam snapshot for a
// (date, location) pair. This service is a pure consumer of that computation.
type SnapshotClient interface {
	GetSnapshot(ctx context.Context, date string, coords models.Coordinates, tz string) (*models.PanchangamSnapshot, error)
}

var (
	ErrSnapshotNotFound  = errors.New("snapshot not found")
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrMalformedSnapshot = errors.New("malformed snapshot")
)

// HTTPClient talks to the panchangam API over HTTP with bounded timeouts and
// jittered exponential-backoff retries.
type HTTPClient struct {
	baseURL        string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker
}

// NewHTTPClient creates a snapshot client with default retry settings.
func NewHTTPClient(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	return NewHTTPClientWithRetry(baseURL, timeout, 3, 100*time.Millisecond, 2*time.Second)
}

// NewHTTPClientWithRetry creates a snapshot client with explicit retry settings.
func NewHTTPClientWithRetry(baseURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("panchangam API URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid panchangam API URL: %w", err)
	}
	return &HTTPClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker wraps upstream calls with the given breaker.
func (c *HTTPClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// snapshotResponse mirrors the panchangam API's JSON document.
type snapshotResponse struct {
	Date     string `json:"date"`
	Location struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Timezone  string  `json:"timezone"`
	} `json:"location"`
	Sunrise   string        `json:"sunrise"`
	Sunset    string        `json:"sunset"`
	Tithi     namedProgress `json:"tithi"`
	Nakshatra namedProgress `json:"nakshatra"`
	Yoga      namedProgress `json:"yoga"`
	Karana    namedProgress `json:"karana"`

	RahuKalam    *windowBody `json:"rahu_kalam"`
	YamaGandam   *windowBody `json:"yama_gandam"`
	GulikaiKalam *windowBody `json:"gulikai_kalam"`

	Horas []struct {
		HoraNumber int    `json:"hora_number"`
		Planet     string `json:"planet"`
		Start      string `json:"start"`
		End        string `json:"end"`
	} `json:"horas"`

	GowriPanchangam *struct {
		Periods      map[string][2]string `json:"periods"`
		Auspicious   []string             `json:"auspicious"`
		Inauspicious []string             `json:"inauspicious"`
	} `json:"gowri_panchangam"`
}

type namedProgress struct {
	Number     int     `json:"number"`
	Name       string  `json:"name"`
	Progress   float64 `json:"progress"`
	Percentage float64 `json:"percentage"`
}

type windowBody struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// GetSnapshot fetches and parses the snapshot, retrying retryable failures
// with jittered exponential backoff.
func (c *HTTPClient) GetSnapshot(ctx context.Context, date string, coords models.Coordinates, tz string) (*models.PanchangamSnapshot, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.SnapshotAPIRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := c.callAPI(ctx, date, coords, tz)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *HTTPClient) callAPI(ctx context.Context, date string, coords models.Coordinates, tz string) (*models.PanchangamSnapshot, error) {
	if c.breaker == nil {
		return c.doCall(ctx, date, coords, tz)
	}
	var snap *models.PanchangamSnapshot
	err := c.breaker.Call(ctx, func() error {
		var callErr error
		snap, callErr = c.doCall(ctx, date, coords, tz)
		return callErr
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
		}
		return nil, err
	}
	return snap, nil
}

func (c *HTTPClient) doCall(ctx context.Context, date string, coords models.Coordinates, tz string) (*models.PanchangamSnapshot, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, date, coords, tz)
	if err != nil {
		observability.SnapshotAPICallsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}

	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.SnapshotAPICallsTotal.WithLabelValues("error").Inc()
		observability.SnapshotAPIDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.SnapshotAPICallsTotal.WithLabelValues(status).Inc()
	observability.SnapshotAPIDuration.WithLabelValues(status).Observe(duration)

	if err := handleErrorResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var apiResp snapshotResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}

	return mapResponse(&apiResp, date, coords, tz)
}

func (c *HTTPClient) buildRequest(ctx context.Context, date string, coords models.Coordinates, tz string) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + "/api/panchangam/" + url.PathEscape(date))
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(coords.Latitude, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(coords.Longitude, 'f', -1, 64))
	if tz != "" {
		params.Set("tz", tz)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrSnapshotNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "context deadline exceeded") || strings.Contains(errStr, "connection refused") {
		return true
	}

	return false
}

func (c *HTTPClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

// mapResponse converts the API document into the domain snapshot. Windows
// with unparsable or inverted times are dropped, not fatal: a partial
// snapshot beats no snapshot. A document with no usable timing data at all
// is malformed.
func mapResponse(apiResp *snapshotResponse, date string, coords models.Coordinates, tz string) (*models.PanchangamSnapshot, error) {
	snap := &models.PanchangamSnapshot{
		Date:      apiResp.Date,
		Location:  models.Coordinates{Latitude: apiResp.Location.Latitude, Longitude: apiResp.Location.Longitude},
		Timezone:  apiResp.Location.Timezone,
		Tithi:     models.NamedProgress(apiResp.Tithi),
		Nakshatra: models.NamedProgress(apiResp.Nakshatra),
		Yoga:      models.NamedProgress(apiResp.Yoga),
		Karana:    models.NamedProgress(apiResp.Karana),
	}
	if snap.Date == "" {
		snap.Date = date
	}
	if !snap.Location.InRange() || (snap.Location == models.Coordinates{}) {
		snap.Location = coords
	}
	if snap.Timezone == "" {
		snap.Timezone = tz
	}

	snap.Sunrise, _ = parseTime(apiResp.Sunrise)
	snap.Sunset, _ = parseTime(apiResp.Sunset)

	for _, w := range []struct {
		name string
		body *windowBody
	}{
		{"Rahu Kalam", apiResp.RahuKalam},
		{"Yama Gandam", apiResp.YamaGandam},
		{"Gulikai Kalam", apiResp.GulikaiKalam},
	} {
		if w.body == nil {
			continue
		}
		if tw, ok := parseWindow(w.name, w.body.Start, w.body.End); ok {
			snap.Windows = append(snap.Windows, tw)
		}
	}

	if g := apiResp.GowriPanchangam; g != nil && len(g.Periods) > 0 {
		group := models.WindowGroup{
			Category:  "gowri_panchangam",
			Favorable: g.Auspicious,
		}
		names := make([]string, 0, len(g.Periods))
		for name := range g.Periods {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			pair := g.Periods[name]
			if tw, ok := parseWindow(name, pair[0], pair[1]); ok {
				group.Windows = append(group.Windows, tw)
			}
		}
		if len(group.Windows) > 0 {
			snap.Grouped = append(snap.Grouped, group)
		}
	}

	for _, h := range apiResp.Horas {
		start, err1 := parseTime(h.Start)
		end, err2 := parseTime(h.End)
		if err1 != nil || err2 != nil || !start.Before(end) {
			continue
		}
		snap.Horas = append(snap.Horas, models.Hora{
			Number: h.HoraNumber,
			Planet: h.Planet,
			Start:  start,
			End:    end,
		})
	}

	if snap.Sunrise.IsZero() && snap.Sunset.IsZero() && len(snap.Windows) == 0 && len(snap.Grouped) == 0 {
		return nil, fmt.Errorf("%w: no usable timing data", ErrMalformedSnapshot)
	}
	return snap, nil
}

// parseWindow parses a named window; inverted or zero-width intervals and
// unparsable timestamps report ok=false.
func parseWindow(name, start, end string) (models.TimeWindow, bool) {
	s, err1 := parseTime(start)
	e, err2 := parseTime(end)
	if err1 != nil || err2 != nil || !s.Before(e) {
		return models.TimeWindow{}, false
	}
	return models.TimeWindow{Name: name, Start: s, End: e}, true
}

// parseTime accepts RFC3339 with or without sub-second precision, which
// covers the upstream's ISO serialization.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func extractCorrelationID(ctx context.Context) string {
	if v := ctx.Value("correlation_id"); v != nil {
		if corrID, ok := v.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
