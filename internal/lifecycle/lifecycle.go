package lifecycle

import "sync/atomic"

var draining atomic.Bool

// SetDraining marks the process as draining. Call once SIGTERM/SIGINT is
// received; the health handler reports shutting-down while set.
func SetDraining(v bool) {
	draining.Store(v)
}

// IsDraining reports whether the process is shutting down and should not
// accept new work.
func IsDraining() bool {
	return draining.Load()
}
