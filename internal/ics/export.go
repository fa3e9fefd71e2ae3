// Package ics serializes a panchangam snapshot into a calendar-interchange
// document. Export is synchronous, side-effect free, and best-effort: missing
// snapshot fields are skipped, never fatal.
package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"github.com/nvaidyanathan/panchangam-today/internal/models"
	"github.com/nvaidyanathan/panchangam-today/internal/observability"
)

const uidDomain = "panchangam-today"

// Exporter builds ICS documents from snapshots. now is injectable for tests.
type Exporter struct {
	now func() time.Time
}

// NewExporter creates an Exporter.
func NewExporter() *Exporter {
	return &Exporter{now: time.Now}
}

// Filename names the downloadable artifact by the snapshot's date.
func Filename(date string) string {
	if date == "" {
		date = "today"
	}
	return "panchangam-" + date + ".ics"
}

// Export serializes one or more day snapshots into a single VCALENDAR text
// blob. Nil snapshots are skipped. Returns the document and whether every
// non-nil snapshot contributed all of its expected sections (false means a
// partial, best-effort document).
func (e *Exporter) Export(snaps ...*models.PanchangamSnapshot) (string, bool) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//panchangam-today//panchangam calendar//EN")

	full := true
	for _, snap := range snaps {
		if snap == nil {
			full = false
			continue
		}
		if !e.addDay(cal, snap) {
			full = false
		}
	}

	result := "partial"
	if full {
		result = "full"
	}
	observability.CalendarExportsTotal.WithLabelValues(result).Inc()
	return cal.Serialize(), full
}

// addDay emits the day's events: sunrise/sunset point events, avoid windows,
// and grouped windows suffixed by favorability. Reports whether every
// expected section was present.
func (e *Exporter) addDay(cal *ical.Calendar, snap *models.PanchangamSnapshot) bool {
	complete := true
	desc := "Panchangam for " + snap.Date

	if !snap.Sunrise.IsZero() {
		e.addPointEvent(cal, "Sunrise", snap.Sunrise, desc)
	} else {
		complete = false
	}
	if !snap.Sunset.IsZero() {
		e.addPointEvent(cal, "Sunset", snap.Sunset, desc)
	} else {
		complete = false
	}

	if len(snap.Windows) == 0 {
		complete = false
	}
	for _, w := range snap.Windows {
		e.addWindowEvent(cal, w.Name+" (Avoid)", w, desc)
	}

	if len(snap.Grouped) == 0 {
		complete = false
	}
	for _, g := range snap.Grouped {
		for _, w := range g.Windows {
			suffix := " (Unfavorable)"
			if g.IsFavorable(w.Name) {
				suffix = " (Favorable)"
			}
			e.addWindowEvent(cal, titleCase(w.Name)+suffix, w, desc)
		}
	}

	for _, h := range snap.Horas {
		w := models.TimeWindow{Name: h.Planet, Start: h.Start, End: h.End}
		e.addWindowEvent(cal, "Hora: "+h.Planet, w, desc)
	}

	return complete
}

func (e *Exporter) addPointEvent(cal *ical.Calendar, title string, at time.Time, desc string) {
	ev := cal.AddEvent(e.newUID())
	ev.SetDtStampTime(e.now().UTC())
	ev.SetStartAt(at.UTC())
	ev.SetEndAt(at.UTC())
	ev.SetSummary(title)
	ev.SetDescription(desc)
}

func (e *Exporter) addWindowEvent(cal *ical.Calendar, title string, w models.TimeWindow, desc string) {
	ev := cal.AddEvent(e.newUID())
	ev.SetDtStampTime(e.now().UTC())
	ev.SetStartAt(w.Start.UTC())
	ev.SetEndAt(w.End.UTC())
	ev.SetSummary(title)
	ev.SetDescription(desc)
}

// newUID derives a globally unique identifier from a high-resolution
// timestamp plus a random component, not from content, so repeated exports
// of the same day are independently addressable.
func (e *Exporter) newUID() string {
	return fmt.Sprintf("%d-%s@%s", e.now().UnixNano(), uuid.NewString()[:8], uidDomain)
}

// titleCase capitalizes the first rune; gowri period names arrive lowercase.
func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
