package panchangam

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nvaidyanathan/panchangam-today/internal/cache"
	"github.com/nvaidyanathan/panchangam-today/internal/degraded"
	"github.com/nvaidyanathan/panchangam-today/internal/models"
	"github.com/nvaidyanathan/panchangam-today/internal/observability"
)

// Service orchestrates snapshot retrieval using the cache-aside pattern with
// upstream API fallback. Snapshots are immutable per (date, location) so the
// cache only ever serves exact pairs.
type Service struct {
	client       SnapshotClient
	cache        cache.Cache
	ttl          time.Duration
	cacheBackend string
}

// NewService creates a snapshot Service. ttl caps how long a day's snapshot
// stays cached; cacheBackend labels cache-hit metrics.
func NewService(client SnapshotClient, c cache.Cache, ttl time.Duration, cacheBackend string) *Service {
	return &Service{
		client:       client,
		cache:        c,
		ttl:          ttl,
		cacheBackend: cacheBackend,
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// GetSnapshot returns the snapshot for the pair, from cache when possible.
// Fetch outcomes feed the degraded-health signal; failures surface to the
// caller as retryable errors.
func (s *Service) GetSnapshot(ctx context.Context, date string, coords models.Coordinates, tz string) (*models.PanchangamSnapshot, error) {
	key := cache.Key(date, coords)
	logger := loggerFromContext(ctx)

	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		if logger != nil {
			logger.Warn("snapshot cache get failed", zap.String("key", key), zap.Error(err))
		}
	} else if ok {
		observability.SnapshotCacheHitsTotal.WithLabelValues(s.cacheBackend).Inc()
		if logger != nil {
			logger.Debug("snapshot cache hit", zap.String("key", key))
		}
		return cached, nil
	}

	snap, err := s.client.GetSnapshot(ctx, date, coords, tz)
	if err != nil {
		degraded.RecordError()
		return nil, fmt.Errorf("fetch snapshot for %s: %w", key, err)
	}
	degraded.RecordSuccess()

	if setErr := s.cache.Set(ctx, key, snap, s.cacheTTL(snap)); setErr != nil {
		if logger != nil {
			logger.Warn("snapshot cache set failed", zap.String("key", key), zap.Error(setErr))
		}
	}
	if logger != nil {
		logger.Debug("snapshot fetched", zap.String("key", key), zap.Int("windows", len(snap.Windows)))
	}
	return snap, nil
}

// cacheTTL bounds a current day's entry by local midnight; a new day means a
// new snapshot. Past days are immutable and keep the configured TTL.
func (s *Service) cacheTTL(snap *models.PanchangamSnapshot) time.Duration {
	loc, err := time.LoadLocation(snap.Timezone)
	if err != nil {
		return s.ttl
	}
	day, err := time.ParseInLocation("2006-01-02", snap.Date, loc)
	if err != nil {
		return s.ttl
	}
	until := time.Until(day.AddDate(0, 0, 1))
	if until > 0 && until < s.ttl {
		return until
	}
	return s.ttl
}
