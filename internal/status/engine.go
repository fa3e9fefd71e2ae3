package status

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nvaidyanathan/panchangam-today/internal/models"
	"github.com/nvaidyanathan/panchangam-today/internal/observability"
)

// Engine recomputes window statuses on a fixed interval and republishes them
// to subscribers. The tick only classifies the currently-held immutable
// window set; a full snapshot refresh is a separate, explicitly triggered
// operation. The engine owns its ticker: Start acquires it, Stop releases it.
type Engine struct {
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger

	mu        sync.Mutex
	windows   []models.TimeWindow
	statuses  []models.WindowStatus
	listeners []func([]models.WindowStatus)
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewEngine creates an Engine ticking at the given interval (minimum one
// second; once per minute is the intended cadence for minute-granularity
// display).
func NewEngine(interval time.Duration, logger *zap.Logger) *Engine {
	if interval < time.Second {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
}

// SetWindows swaps the held window set atomically and recomputes immediately
// so subscribers never observe statuses from a stale set.
func (e *Engine) SetWindows(windows []models.TimeWindow) {
	e.mu.Lock()
	e.windows = windows
	e.mu.Unlock()
	e.tick()
}

// Subscribe registers a callback invoked with the fresh status list after
// every recomputation. Callbacks run on the engine goroutine and must not
// block.
func (e *Engine) Subscribe(fn func([]models.WindowStatus)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Statuses returns the statuses from the most recent tick.
func (e *Engine) Statuses() []models.WindowStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.WindowStatus, len(e.statuses))
	copy(out, e.statuses)
	return out
}

// Start launches the refresh loop. It runs until Stop is called or ctx is
// cancelled. Calling Start on a running engine is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	done := make(chan struct{})
	e.done = done
	e.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				e.tick()
			}
		}
	}()
	e.logger.Debug("status engine started", zap.Duration("interval", e.interval))
}

// Stop cancels the refresh loop and waits for it to exit, releasing the
// ticker. Safe to call on a stopped engine.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	done := e.done
	e.cancel = nil
	e.done = nil
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	e.logger.Debug("status engine stopped")
}

// tick recomputes every held window's status and republishes.
func (e *Engine) tick() {
	e.mu.Lock()
	windows := e.windows
	listeners := make([]func([]models.WindowStatus), len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()

	statuses := ClassifyAll(e.now(), windows)

	e.mu.Lock()
	e.statuses = statuses
	e.mu.Unlock()

	observability.StatusTicksTotal.Inc()
	for _, fn := range listeners {
		fn(statuses)
	}
}
