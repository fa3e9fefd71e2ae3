package degraded

import (
	"time"

	"github.com/nvaidyanathan/panchangam-today/internal/traffic"
)

// RecordSuccess records a successful snapshot fetch.
func RecordSuccess() {
	traffic.RecordSuccess()
}

// RecordError records a failed snapshot fetch (upstream error, timeout, malformed body).
func RecordError() {
	traffic.RecordError()
}

// ErrorRate returns (errorCount, totalCount) within the window. totalCount = successes + errors.
func ErrorRate(window time.Duration) (errors, total int) {
	return traffic.ErrorRate(window)
}

// Reset clears all recorded data. For tests only.
func Reset() {
	traffic.Reset()
}
