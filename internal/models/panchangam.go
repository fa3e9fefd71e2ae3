package models

import "time"

// Coordinates is a WGS84 position. Latitude and longitude are always set
// together; a zero-value Coordinates means "no position known".
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// InRange reports whether both components are within WGS84 bounds.
func (c Coordinates) InRange() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// Source identifies which step of the resolution chain produced a preference.
type Source string

const (
	SourceGeolocation Source = "geolocation"
	SourceIP          Source = "ip"
	SourceManual      Source = "manual"
	SourceDefault     Source = "default"
)

// LocationPreference is the one authoritative location record. Manual
// preferences are sticky: once stored they win over every other source until
// explicitly cleared.
type LocationPreference struct {
	Coordinates Coordinates `json:"coordinates"`
	Timezone    string      `json:"timezone"`
	Label       string      `json:"label"`
	Source      Source      `json:"source"`
}

// TimeWindow is a named interval within a day. Windows come from the
// panchangam snapshot and are immutable once received; start < end always
// holds for windows that survive parsing.
type TimeWindow struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Phase is the temporal relationship between a window and "now".
type Phase string

const (
	PhaseUpcoming Phase = "upcoming"
	PhaseActive   Phase = "active"
	PhasePassed   Phase = "passed"
)

// WindowStatus is derived per refresh tick and never cached beyond it.
// Remaining is nil exactly when the phase is passed.
type WindowStatus struct {
	Window    TimeWindow     `json:"window"`
	Phase     Phase          `json:"phase"`
	Remaining *time.Duration `json:"remaining,omitempty"`
}

// RemainingMinutes returns the remaining duration in whole minutes, or -1
// when the window has passed.
func (s WindowStatus) RemainingMinutes() int {
	if s.Remaining == nil {
		return -1
	}
	return int(*s.Remaining / time.Minute)
}

// NamedProgress is a panchangam element (tithi, nakshatra, yoga, karana) with
// its progress through the current period.
type NamedProgress struct {
	Number     int     `json:"number,omitempty"`
	Name       string  `json:"name"`
	Progress   float64 `json:"progress"`
	Percentage float64 `json:"percentage"`
}

// WindowGroup is a categorized set of windows (e.g. gowri panchangam) with
// the subset of names considered favorable.
type WindowGroup struct {
	Category  string       `json:"category"`
	Windows   []TimeWindow `json:"windows"`
	Favorable []string     `json:"favorable"`
}

// IsFavorable reports whether the named window belongs to the group's
// favorable set. Sets are tiny so a scan is fine.
func (g WindowGroup) IsFavorable(name string) bool {
	for _, f := range g.Favorable {
		if f == name {
			return true
		}
	}
	return false
}

// Hora is a planetary hour. Carried in the snapshot and exported to the
// calendar as informational events.
type Hora struct {
	Number int       `json:"hora_number"`
	Planet string    `json:"planet"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// PanchangamSnapshot is the computed almanac for one (date, location) pair.
// It is fetched fresh per pair and treated as read-only by everything
// downstream.
type PanchangamSnapshot struct {
	Date     string      `json:"date"`
	Location Coordinates `json:"location"`
	Timezone string      `json:"timezone"`

	Sunrise time.Time `json:"sunrise"`
	Sunset  time.Time `json:"sunset"`

	Tithi     NamedProgress `json:"tithi"`
	Nakshatra NamedProgress `json:"nakshatra"`
	Yoga      NamedProgress `json:"yoga"`
	Karana    NamedProgress `json:"karana"`

	// Windows holds the weekday avoid-windows (rahu kalam, yama gandam,
	// gulikai kalam).
	Windows []TimeWindow `json:"windows"`

	// Grouped holds categorized window sets such as the gowri panchangam.
	Grouped []WindowGroup `json:"grouped"`

	Horas []Hora `json:"horas,omitempty"`
}

// AllWindows returns the flat avoid-window list followed by every grouped
// window, in snapshot order.
func (s *PanchangamSnapshot) AllWindows() []TimeWindow {
	out := make([]TimeWindow, 0, len(s.Windows))
	out = append(out, s.Windows...)
	for _, g := range s.Grouped {
		out = append(out, g.Windows...)
	}
	return out
}
