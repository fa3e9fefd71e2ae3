package cache

import (
	"context"
	"testing"
	"time"

	"github.com/nvaidyanathan/panchangam-today/internal/models"
)

func sampleSnapshot() *models.PanchangamSnapshot {
	return &models.PanchangamSnapshot{
		Date:     "2026-03-14",
		Location: models.Coordinates{Latitude: 13.0827, Longitude: 80.2707},
		Timezone: "Asia/Kolkata",
		Sunrise:  time.Date(2026, 3, 14, 6, 12, 0, 0, time.UTC),
	}
}

func TestKeyRoundsCoordinates(t *testing.T) {
	tests := []struct {
		name   string
		date   string
		coords models.Coordinates
		want   string
	}{
		{"chennai", "2026-03-14", models.Coordinates{Latitude: 13.0827, Longitude: 80.2707}, "2026-03-14|13.0827|80.2707"},
		{"jittery fix shares entry", "2026-03-14", models.Coordinates{Latitude: 13.08271, Longitude: 80.27069}, "2026-03-14|13.0827|80.2707"},
		{"zero", "2026-03-14", models.Coordinates{}, "2026-03-14|0.0000|0.0000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Key(tt.date, tt.coords); got != tt.want {
				t.Errorf("Key = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInMemoryCacheSetGet(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()
	snap := sampleSnapshot()
	key := Key(snap.Date, snap.Location)

	if err := c.Set(ctx, key, snap, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := c.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || got != snap {
		t.Errorf("Get = (%v, %v), want the stored snapshot", got, ok)
	}
}

func TestInMemoryCacheMiss(t *testing.T) {
	c := NewInMemoryCache()
	_, ok, err := c.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("expected miss for absent key")
	}
}

func TestInMemoryCacheExpiry(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()
	if err := c.Set(ctx, "k", sampleSnapshot(), time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("expired entry still served")
	}
}

func TestInMemoryCacheConcurrentAccess(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()
	snap := sampleSnapshot()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_ = c.Set(ctx, "k", snap, time.Minute)
		}
	}()
	for i := 0; i < 200; i++ {
		_, _, _ = c.Get(ctx, "k")
	}
	<-done
}
