package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/nvaidyanathan/panchangam-today/internal/models"
)

func fullSnapshot() *models.PanchangamSnapshot {
	loc := time.FixedZone("IST", 5*3600+1800)
	day := func(h, m int) time.Time {
		return time.Date(2026, 3, 14, h, m, 0, 0, loc)
	}
	return &models.PanchangamSnapshot{
		Date:     "2026-03-14",
		Location: models.Coordinates{Latitude: 13.0827, Longitude: 80.2707},
		Timezone: "Asia/Kolkata",
		Sunrise:  day(6, 12),
		Sunset:   day(18, 20),
		Windows: []models.TimeWindow{
			{Name: "Rahu Kalam", Start: day(9, 0), End: day(10, 30)},
			{Name: "Yama Gandam", Start: day(13, 30), End: day(15, 0)},
		},
		Grouped: []models.WindowGroup{
			{
				Category:  "gowri_panchangam",
				Favorable: []string{"amrutha", "sugam"},
				Windows: []models.TimeWindow{
					{Name: "amrutha", Start: day(6, 12), End: day(7, 42)},
					{Name: "visha", Start: day(7, 42), End: day(9, 12)},
				},
			},
		},
		Horas: []models.Hora{
			{Number: 1, Planet: "Saturn", Start: day(6, 12), End: day(7, 12)},
		},
	}
}

func TestExportFullSnapshot(t *testing.T) {
	e := NewExporter()
	doc, full := e.Export(fullSnapshot())
	if !full {
		t.Error("complete snapshot should export as full")
	}

	if !strings.HasPrefix(doc, "BEGIN:VCALENDAR") {
		t.Errorf("document does not start a VCALENDAR:\n%s", doc)
	}
	if !strings.Contains(doc, "METHOD:PUBLISH") {
		t.Error("missing METHOD:PUBLISH")
	}

	// Sunrise + sunset + 2 avoid windows + 2 gowri windows + 1 hora.
	if got := strings.Count(doc, "BEGIN:VEVENT"); got != 7 {
		t.Errorf("got %d VEVENTs, want 7", got)
	}

	for _, want := range []string{
		"SUMMARY:Sunrise",
		"SUMMARY:Sunset",
		"SUMMARY:Rahu Kalam (Avoid)",
		"SUMMARY:Yama Gandam (Avoid)",
		"SUMMARY:Amrutha (Favorable)",
		"SUMMARY:Visha (Unfavorable)",
		"SUMMARY:Hora: Saturn",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("missing %q in document", want)
		}
	}
}

func TestExportEventTimesAreUTC(t *testing.T) {
	e := NewExporter()
	doc, _ := e.Export(fullSnapshot())

	// 09:00 IST is 03:30 UTC; window events carry both bounds.
	if !strings.Contains(doc, "DTSTART:20260314T033000Z") {
		t.Errorf("Rahu Kalam DTSTART not serialized in UTC:\n%s", doc)
	}
	if !strings.Contains(doc, "DTEND:20260314T050000Z") {
		t.Error("Rahu Kalam DTEND not serialized in UTC")
	}
	// Sunrise is a point event: equal start and end.
	if !strings.Contains(doc, "DTSTART:20260314T004200Z") || !strings.Contains(doc, "DTEND:20260314T004200Z") {
		t.Error("sunrise point event should have equal UTC start and end")
	}
}

func TestExportUniqueUIDs(t *testing.T) {
	e := NewExporter()
	doc, _ := e.Export(fullSnapshot())

	seen := make(map[string]bool)
	for _, line := range strings.Split(doc, "\r\n") {
		if !strings.HasPrefix(line, "UID:") {
			continue
		}
		if seen[line] {
			t.Errorf("duplicate %s", line)
		}
		seen[line] = true
	}
	if len(seen) != 7 {
		t.Errorf("got %d UIDs, want 7", len(seen))
	}
}

func TestExportPartialSnapshot(t *testing.T) {
	snap := fullSnapshot()
	snap.Sunrise = time.Time{}
	snap.Grouped = nil

	e := NewExporter()
	doc, full := e.Export(snap)
	if full {
		t.Error("snapshot missing sections should export as partial")
	}
	if strings.Contains(doc, "SUMMARY:Sunrise") {
		t.Error("zero-value sunrise must not be emitted")
	}
	if !strings.Contains(doc, "SUMMARY:Rahu Kalam (Avoid)") {
		t.Error("present windows must still be emitted in a partial export")
	}
}

func TestExportNilSnapshotIsPartial(t *testing.T) {
	e := NewExporter()
	doc, full := e.Export(fullSnapshot(), nil)
	if full {
		t.Error("a nil day should mark the export partial")
	}
	if got := strings.Count(doc, "BEGIN:VEVENT"); got != 7 {
		t.Errorf("nil day added %d events, want the first day's 7", got)
	}
}

func TestExportMultipleDays(t *testing.T) {
	day1 := fullSnapshot()
	day2 := fullSnapshot()
	day2.Date = "2026-03-15"

	e := NewExporter()
	doc, full := e.Export(day1, day2)
	if !full {
		t.Error("two complete days should export as full")
	}
	if got := strings.Count(doc, "BEGIN:VEVENT"); got != 14 {
		t.Errorf("got %d VEVENTs, want 14", got)
	}
	if !strings.Contains(doc, "Panchangam for 2026-03-15") {
		t.Error("second day's description missing")
	}
}

func TestFilename(t *testing.T) {
	if got := Filename("2026-03-14"); got != "panchangam-2026-03-14.ics" {
		t.Errorf("Filename = %q", got)
	}
	if got := Filename(""); got != "panchangam-today.ics" {
		t.Errorf("Filename empty = %q", got)
	}
}
