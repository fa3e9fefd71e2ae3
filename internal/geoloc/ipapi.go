package geoloc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nvaidyanathan/panchangam-today/internal/models"
)

// IPAPIClient approximates city-level coordinates from the caller's network
// address using an ipapi.co-shaped endpoint. Used only as the fallback behind
// device geolocation.
type IPAPIClient struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewIPAPIClient creates an IP-geolocation client.
func NewIPAPIClient(url string, timeout time.Duration) (*IPAPIClient, error) {
	if url == "" {
		return nil, fmt.Errorf("IP geolocation URL is required")
	}
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &IPAPIClient{
		url:     url,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type ipapiResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city"`
	Country   string  `json:"country_name"`
	Timezone  string  `json:"timezone"`
}

// Locate performs a parameterless GET; the service keys off the source IP.
func (c *IPAPIClient) Locate(ctx context.Context) (IPLocation, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "GET", c.url, nil)
	if err != nil {
		return IPLocation{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return IPLocation{}, fmt.Errorf("%w: ip geolocate", ErrTimeout)
		}
		return IPLocation{}, fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return IPLocation{}, fmt.Errorf("%w: ip geolocate HTTP %d", ErrNetworkFailure, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return IPLocation{}, fmt.Errorf("read response body: %w", err)
	}

	var out ipapiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return IPLocation{}, fmt.Errorf("parse response: %w", err)
	}

	loc := IPLocation{
		Coordinates: models.Coordinates{Latitude: out.Latitude, Longitude: out.Longitude},
		City:        out.City,
		Country:     out.Country,
		Timezone:    out.Timezone,
	}
	if !loc.Coordinates.InRange() {
		return IPLocation{}, fmt.Errorf("%w: ip geolocate returned out-of-range coordinates", ErrPositionUnavailable)
	}
	return loc, nil
}
