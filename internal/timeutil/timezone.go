package timeutil

import (
	"fmt"
	"time"
)

// LoadLocation resolves a tz database name for display. The empty string
// and "UTC" are UTC; "Local" is the host zone.
func LoadLocation(tz string) (*time.Location, error) {
	switch tz {
	case "", "UTC":
		return time.UTC, nil
	case "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %s: %w", tz, err)
	}
	return loc, nil
}

// ConvertTime returns t in the named zone. Stored event times are zone
// free, so this is only a presentation step.
func ConvertTime(t time.Time, tz string) (time.Time, error) {
	loc, err := LoadLocation(tz)
	if err != nil {
		return t, err
	}
	return t.In(loc), nil
}
