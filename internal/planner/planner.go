// Package planner implements the Schedule Planner (C3): given a sender and
// a local date, produces the day's ordered send timestamps.
package planner

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"warmup-engine/internal/calendar"
	"warmup-engine/internal/models"
)

// BandWeights controls how daily_limit is split across the three bands.
// Defaults mirror spec.md §6's bands.*_weight configuration options.
type BandWeights struct {
	Peak   float64
	Normal float64
	Low    float64
}

func DefaultBandWeights() BandWeights {
	return BandWeights{Peak: 0.60, Normal: 0.30, Low: 0.10}
}

// Entry is one planned send: an absolute UTC timestamp and the band it was
// drawn from.
type Entry struct {
	FireAt time.Time
	Band   models.Band
}

// Planner draws entries for a sender's day using a package-local random
// source so callers get reproducible sequences in tests via NewWithRand.
type Planner struct {
	weights BandWeights
	hours   calendar.BusinessHours
	rng     *rand.Rand
}

func New(weights BandWeights, hours calendar.BusinessHours) *Planner {
	return &Planner{weights: weights, hours: hours, rng: rand.New(rand.NewSource(randSeed()))}
}

// NewWithRand lets tests inject a deterministic source.
func NewWithRand(weights BandWeights, hours calendar.BusinessHours, rng *rand.Rand) *Planner {
	return &Planner{weights: weights, hours: hours, rng: rng}
}

func randSeed() int64 { return 0x5eed }

// Plan produces localDate's send schedule for a sender in timezone tz with
// the given daily limit, per spec.md §4.3's algorithm. Weekends and a
// non-positive limit both yield an empty plan.
func (p *Planner) Plan(localDate time.Time, dailyLimit int, tz *time.Location) []Entry {
	local := localDate.In(tz)
	if calendar.IsWeekend(local) || dailyLimit <= 0 {
		return nil
	}

	nPeak, nNormal, nLow := bandCounts(dailyLimit, p.weights)

	var entries []Entry
	entries = append(entries, p.drawBand(local, tz, models.BandPeak, nPeak, entries)...)
	entries = append(entries, p.drawBand(local, tz, models.BandNormal, nNormal, entries)...)
	entries = append(entries, p.drawBand(local, tz, models.BandLow, nLow, entries)...)

	sort.Slice(entries, func(i, j int) bool { return entries[i].FireAt.Before(entries[j].FireAt) })
	return entries
}

// bandCounts allocates N across peak/normal/low by fixed weights, rounding
// peak and low independently and assigning the remainder to normal so the
// three always sum exactly to N.
func bandCounts(n int, w BandWeights) (peak, normal, low int) {
	peak = int(math.Round(w.Peak * float64(n)))
	low = int(math.Round(w.Low * float64(n)))
	if peak < 0 {
		peak = 0
	}
	if low < 0 {
		low = 0
	}
	if peak+low > n {
		low = n - peak
		if low < 0 {
			low = 0
			peak = n
		}
	}
	normal = n - peak - low
	if normal < 0 {
		normal = 0
	}
	return peak, normal, low
}

// drawBand draws count entries inside band b's hour ranges, rejecting
// samples outside business hours or within 60s of any prior entry
// (existing or already drawn this call).
func (p *Planner) drawBand(local time.Time, tz *time.Location, band models.Band, count int, existing []Entry) []Entry {
	ranges := calendar.RangesFor(calendar.Band(band))
	if len(ranges) == 0 || count <= 0 {
		return nil
	}

	drawn := make([]Entry, 0, count)
	taken := make([]time.Time, len(existing))
	for i, e := range existing {
		taken[i] = e.FireAt
	}

	const maxAttemptsPerEntry = 200
	for i := 0; i < count; i++ {
		var candidate time.Time
		ok := false
		for attempt := 0; attempt < maxAttemptsPerEntry; attempt++ {
			candidate = p.sampleInRanges(local, ranges)
			candidate = jitter(candidate, p.rng)
			if !calendar.IsBusinessHours(candidate, p.hours) {
				continue
			}
			if tooClose(candidate, taken) {
				continue
			}
			ok = true
			break
		}
		if !ok {
			continue // spec.md §4.11: fewer entries than daily_limit is allowed, logged by the caller.
		}
		taken = append(taken, candidate)
		drawn = append(drawn, Entry{FireAt: candidate.In(time.UTC), Band: band})
	}
	return drawn
}

// sampleInRanges picks a uniform moment inside the union of hour ranges,
// weighted by each range's length.
func (p *Planner) sampleInRanges(local time.Time, ranges [][2]int) time.Time {
	totalMinutes := 0
	for _, r := range ranges {
		totalMinutes += (r[1] - r[0]) * 60
	}
	offset := p.rng.Intn(totalMinutes)
	for _, r := range ranges {
		span := (r[1] - r[0]) * 60
		if offset < span {
			hour := r[0] + offset/60
			minute := offset % 60
			return time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, local.Location())
		}
		offset -= span
	}
	// Unreachable for a non-empty ranges slice.
	r := ranges[0]
	return time.Date(local.Year(), local.Month(), local.Day(), r[0], 0, 0, 0, local.Location())
}

// jitter applies ±3min Gaussian-ish jitter then ±30s uniform jitter.
func jitter(t time.Time, rng *rand.Rand) time.Time {
	gaussianSeconds := rng.NormFloat64() * 60 // stddev 60s, clamp below to ±3min
	if gaussianSeconds > 180 {
		gaussianSeconds = 180
	}
	if gaussianSeconds < -180 {
		gaussianSeconds = -180
	}
	uniformSeconds := rng.Float64()*60 - 30 // uniform in [-30s, 30s]
	return t.Add(time.Duration(gaussianSeconds+uniformSeconds) * time.Second)
}

func tooClose(candidate time.Time, existing []time.Time) bool {
	for _, t := range existing {
		d := candidate.Sub(t)
		if d < 0 {
			d = -d
		}
		if d < 60*time.Second {
			return true
		}
	}
	return false
}
