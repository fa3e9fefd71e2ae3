package panchangam

import (
	"context"
	"sync"

	"github.com/nvaidyanathan/panchangam-today/internal/models"
	"github.com/nvaidyanathan/panchangam-today/internal/observability"
)

// Holder owns the current snapshot with last-request-wins semantics. Each
// refresh takes a monotonically increasing token; a fetch that completes
// after a newer one started can never publish over the newer result. The
// snapshot is replaced wholesale, never mutated in place.
type Holder struct {
	service *Service

	mu        sync.Mutex
	nextToken uint64
	published uint64
	current   *models.PanchangamSnapshot
}

// NewHolder creates a Holder backed by the given snapshot service.
func NewHolder(service *Service) *Holder {
	return &Holder{service: service}
}

// Current returns the most recently published snapshot, or nil when none has
// been published yet.
func (h *Holder) Current() *models.PanchangamSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Refresh fetches the snapshot for the pair and publishes it unless a newer
// Refresh started in the meantime. Returns the fetched snapshot even when it
// lost the race, so the initiating caller still gets its answer.
func (h *Holder) Refresh(ctx context.Context, date string, coords models.Coordinates, tz string) (*models.PanchangamSnapshot, error) {
	h.mu.Lock()
	h.nextToken++
	token := h.nextToken
	h.mu.Unlock()

	snap, err := h.service.GetSnapshot(ctx, date, coords, tz)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if token < h.published {
		observability.SnapshotFetchSupersededTotal.Inc()
		return snap, nil
	}
	h.published = token
	h.current = snap
	return snap, nil
}
