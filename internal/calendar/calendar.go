// Package calendar implements the Clock & Calendar component (C1): pure,
// injectable time-zone-aware predicates over a sender's local business day.
package calendar

import "time"

// Band is a time-of-day bucket used by the planner to weight send times.
type Band string

const (
	BandPeak   Band = "PEAK"
	BandNormal Band = "NORMAL"
	BandLow    Band = "LOW"
)

// BusinessHours configures the working window used by Is* predicates. Zero
// value is invalid; callers should go through DefaultBusinessHours.
type BusinessHours struct {
	StartHour int
	EndHour   int
}

// DefaultBusinessHours matches spec.md §4.1's defaults of 9 and 18.
func DefaultBusinessHours() BusinessHours {
	return BusinessHours{StartHour: 9, EndHour: 18}
}

// Clock supplies the Dispatcher's tick time, so tests can inject a fixed
// instant for the business-hours gate and due-entry window. Only that read
// goes through Clock: the Dispatcher's send and credential-expiry stamps and
// the other components call time.Now directly.
type Clock interface {
	Now() time.Time
}

// RealClock delegates to time.Now.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant; used in tests.
type FixedClock struct{ At time.Time }

func (f FixedClock) Now() time.Time { return f.At }

// NowIn projects an absolute instant into the given IANA zone's local time.
func NowIn(c Clock, tz *time.Location) time.Time {
	return c.Now().In(tz)
}

// IsWeekend reports whether the local datetime falls on Saturday or Sunday.
func IsWeekend(local time.Time) bool {
	wd := local.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsBusinessHours reports whether local falls on a weekday within
// [StartHour, EndHour) of cfg.
func IsBusinessHours(local time.Time, cfg BusinessHours) bool {
	if IsWeekend(local) {
		return false
	}
	h := local.Hour()
	return h >= cfg.StartHour && h < cfg.EndHour
}

// peakRanges, normalRanges and lowRanges are the fixed hour buckets from
// spec.md §4.1: PEAK = [9,11)∪[14,16), LOW = [12,14), NORMAL = [11,12)∪[16,18).
var (
	peakRanges   = [][2]int{{9, 11}, {14, 16}}
	normalRanges = [][2]int{{11, 12}, {16, 18}}
	lowRanges    = [][2]int{{12, 14}}
)

// BandFor classifies an hour-of-day into PEAK, NORMAL or LOW. Hours outside
// every configured range (e.g. after DST weirdness pushes a sample out of
// business hours) fall back to NORMAL rather than panicking — the planner
// rejects such samples before they are ever classified in practice.
func BandFor(localHour int) Band {
	for _, r := range peakRanges {
		if localHour >= r[0] && localHour < r[1] {
			return BandPeak
		}
	}
	for _, r := range lowRanges {
		if localHour >= r[0] && localHour < r[1] {
			return BandLow
		}
	}
	return BandNormal
}

// RangesFor returns the hour ranges backing a band, used by the planner to
// sample a uniform moment inside it.
func RangesFor(b Band) [][2]int {
	switch b {
	case BandPeak:
		return peakRanges
	case BandLow:
		return lowRanges
	default:
		return normalRanges
	}
}
