package geoloc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNominatimLocateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("format"); got != "jsonv2" {
			t.Errorf("format = %q, want jsonv2", got)
		}
		if got := r.URL.Query().Get("lat"); got != "13.0827" {
			t.Errorf("lat = %q, want 13.0827", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"address":{"city":"Chennai","country":"India"}}`))
	}))
	defer server.Close()

	client, err := NewNominatimClient(server.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewNominatimClient: %v", err)
	}
	place, err := client.Locate(context.Background(), 13.0827, 80.2707)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if place.City != "Chennai" || place.Country != "India" {
		t.Errorf("place = %+v, want Chennai/India", place)
	}
}

func TestNominatimLocateFallsBackThroughPlaceFields(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"town when no city", `{"address":{"town":"Mahabalipuram","country":"India"}}`, "Mahabalipuram"},
		{"village when no town", `{"address":{"village":"Kovalam","country":"India"}}`, "Kovalam"},
		{"county as last resort", `{"address":{"county":"Chengalpattu","country":"India"}}`, "Chengalpattu"},
		{"empty address", `{"address":{}}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, err := NewNominatimClient(server.URL, 2*time.Second)
			if err != nil {
				t.Fatalf("NewNominatimClient: %v", err)
			}
			place, err := client.Locate(context.Background(), 13, 80)
			if err != nil {
				t.Fatalf("Locate: %v", err)
			}
			if place.City != tt.want {
				t.Errorf("city = %q, want %q", place.City, tt.want)
			}
		})
	}
}

func TestNominatimLocateServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewNominatimClient(server.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewNominatimClient: %v", err)
	}
	if _, err := client.Locate(context.Background(), 13, 80); !errors.Is(err, ErrNetworkFailure) {
		t.Errorf("error = %v, want ErrNetworkFailure", err)
	}
}

func TestNominatimRequiresURL(t *testing.T) {
	if _, err := NewNominatimClient("", time.Second); err == nil {
		t.Error("expected error for empty base URL")
	}
}

func TestIPAPILocateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"latitude":28.6139,"longitude":77.209,"city":"Delhi","country_name":"India","timezone":"Asia/Kolkata"}`))
	}))
	defer server.Close()

	client, err := NewIPAPIClient(server.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewIPAPIClient: %v", err)
	}
	loc, err := client.Locate(context.Background())
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if loc.City != "Delhi" || loc.Timezone != "Asia/Kolkata" {
		t.Errorf("location = %+v", loc)
	}
	if loc.Coordinates.Latitude != 28.6139 || loc.Coordinates.Longitude != 77.209 {
		t.Errorf("coordinates = %+v", loc.Coordinates)
	}
}

func TestIPAPILocateOutOfRangeCoordinates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"latitude":912.0,"longitude":0.0}`))
	}))
	defer server.Close()

	client, err := NewIPAPIClient(server.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewIPAPIClient: %v", err)
	}
	if _, err := client.Locate(context.Background()); !errors.Is(err, ErrPositionUnavailable) {
		t.Errorf("error = %v, want ErrPositionUnavailable", err)
	}
}

func TestIPAPILocateServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewIPAPIClient(server.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewIPAPIClient: %v", err)
	}
	if _, err := client.Locate(context.Background()); !errors.Is(err, ErrNetworkFailure) {
		t.Errorf("error = %v, want ErrNetworkFailure", err)
	}
}

func TestIPAPILocateMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	client, err := NewIPAPIClient(server.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewIPAPIClient: %v", err)
	}
	if _, err := client.Locate(context.Background()); err == nil {
		t.Error("expected parse error")
	}
}
