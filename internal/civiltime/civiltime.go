// Package civiltime provides day-boundary and clock computations in the
// club's fixed civil timezone, independent of server locale.
package civiltime

import (
	"fmt"
	"time"
)

// DefaultName is the club timezone used when none is configured.
const DefaultName = "Europe/Amsterdam"

// Zone wraps a fixed named timezone.
type Zone struct {
	loc *time.Location
}

// Load resolves a named timezone, e.g. "Europe/Amsterdam".
func Load(name string) (Zone, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Zone{}, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return Zone{loc: loc}, nil
}

// MustLoad is Load for contexts where the name is a known-good constant.
func MustLoad(name string) Zone {
	z, err := Load(name)
	if err != nil {
		panic(err)
	}
	return z
}

// In converts t to the zone's local time.
func (z Zone) In(t time.Time) time.Time {
	return t.In(z.loc)
}

// StartOfDay returns local midnight of t's civil day.
func (z Zone) StartOfDay(t time.Time) time.Time {
	lt := t.In(z.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, z.loc)
}

// PreviousDayRange returns the half-open range [yesterday's midnight,
// today's midnight) relative to t.
func (z Zone) PreviousDayRange(t time.Time) (from, until time.Time) {
	until = z.StartOfDay(t)
	return until.AddDate(0, 0, -1), until
}

// ClockParts returns the local hour and minute of t.
func (z Zone) ClockParts(t time.Time) (hour, minute int) {
	lt := t.In(z.loc)
	return lt.Hour(), lt.Minute()
}

// Clock renders t as zero-padded 24-hour HH:MM local time.
func (z Zone) Clock(t time.Time) string {
	return t.In(z.loc).Format("15:04")
}

// MonthDay returns the local calendar month and day of t.
func (z Zone) MonthDay(t time.Time) (time.Month, int) {
	lt := t.In(z.loc)
	return lt.Month(), lt.Day()
}
