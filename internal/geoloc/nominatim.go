package geoloc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// NominatimClient reverse-geocodes coordinates into a city/country pair using
// a Nominatim-compatible endpoint. Best-effort only: callers ignore failures.
type NominatimClient struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

// NewNominatimClient creates a reverse-geocoding client. baseURL points at a
// /reverse endpoint.
func NewNominatimClient(baseURL string, timeout time.Duration) (*NominatimClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("reverse geocode URL is required")
	}
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &NominatimClient{
		baseURL: baseURL,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type nominatimResponse struct {
	Address struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		County  string `json:"county"`
		Country string `json:"country"`
	} `json:"address"`
}

// Locate performs GET {base}?lat={lat}&lon={lon}&format=jsonv2 and maps the
// densest populated-place field available to Place.City.
func (c *NominatimClient) Locate(ctx context.Context, lat, lon float64) (Place, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	base, err := url.Parse(c.baseURL)
	if err != nil {
		return Place{}, fmt.Errorf("invalid reverse geocode URL: %w", err)
	}
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("format", "jsonv2")
	base.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(reqCtx, "GET", base.String(), nil)
	if err != nil {
		return Place{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Place{}, fmt.Errorf("%w: reverse geocode", ErrTimeout)
		}
		return Place{}, fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Place{}, fmt.Errorf("%w: reverse geocode HTTP %d", ErrNetworkFailure, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Place{}, fmt.Errorf("read response body: %w", err)
	}

	var out nominatimResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Place{}, fmt.Errorf("parse response: %w", err)
	}

	city := out.Address.City
	if city == "" {
		city = out.Address.Town
	}
	if city == "" {
		city = out.Address.Village
	}
	if city == "" {
		city = out.Address.County
	}
	return Place{City: city, Country: out.Address.Country}, nil
}
