package validation

import (
	"errors"
	"strings"
	"time"
)

// ErrLatitudeOutOfRange is returned when latitude is outside [-90, 90].
var ErrLatitudeOutOfRange = errors.New("latitude out of range")

// ErrLongitudeOutOfRange is returned when longitude is outside [-180, 180].
var ErrLongitudeOutOfRange = errors.New("longitude out of range")

// ErrTimezoneEmpty is returned when a timezone is empty or whitespace-only.
var ErrTimezoneEmpty = errors.New("timezone is required")

// ErrTimezoneUnknown is returned when a timezone is not a loadable IANA id.
var ErrTimezoneUnknown = errors.New("unknown timezone")

// ErrDateInvalid is returned when a date is not in YYYY-MM-DD form.
var ErrDateInvalid = errors.New("date must be YYYY-MM-DD")

// ValidateCoordinates enforces WGS84 bounds. Returns an error suitable for
// 400 INVALID_COORDINATES responses.
func ValidateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return ErrLatitudeOutOfRange
	}
	if lon < -180 || lon > 180 {
		return ErrLongitudeOutOfRange
	}
	return nil
}

// ValidateTimezone trims the input and checks it resolves as an IANA zone.
// Returns the trimmed id or an error.
func ValidateTimezone(tz string) (string, error) {
	s := strings.TrimSpace(tz)
	if s == "" {
		return "", ErrTimezoneEmpty
	}
	if _, err := time.LoadLocation(s); err != nil {
		return "", ErrTimezoneUnknown
	}
	return s, nil
}

// ValidateDate parses a YYYY-MM-DD string. Empty input defaults to today in
// the given location (UTC when loc is nil). Returns the normalized date string.
func ValidateDate(input string, loc *time.Location) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		if loc == nil {
			loc = time.UTC
		}
		return time.Now().In(loc).Format("2006-01-02"), nil
	}
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return "", ErrDateInvalid
	}
	return s, nil
}
