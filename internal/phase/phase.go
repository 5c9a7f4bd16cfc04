// Package phase implements the Phase Model (C2): maps a sender's
// (warmup_day, target) pair to its current ramp phase and daily send limit.
package phase

// Bound describes one phase's day range and limit function, mirroring
// app/services/warmup_score_service.py's PHASE_1..PHASE_5 tuples in the
// original implementation.
type Bound struct {
	Phase    int
	FromDay  int
	ToDay    int // inclusive; -1 means unbounded
	Fraction float64
	MinLimit int
}

var bounds = []Bound{
	{Phase: 1, FromDay: 1, ToDay: 7, Fraction: 0.10, MinLimit: 5},
	{Phase: 2, FromDay: 8, ToDay: 14, Fraction: 0.25, MinLimit: 10},
	{Phase: 3, FromDay: 15, ToDay: 21, Fraction: 0.50, MinLimit: 15},
	{Phase: 4, FromDay: 22, ToDay: 28, Fraction: 0.75, MinLimit: 20},
	{Phase: 5, FromDay: 29, ToDay: -1, Fraction: 1.00, MinLimit: 0},
}

// For returns the phase and daily send limit for a given warmup day and
// target. Day 0 means warmup has not started: phase 1, limit 0.
func For(warmupDay, target int) (phaseNum, dailyLimit int) {
	if warmupDay <= 0 {
		return 1, 0
	}
	b := boundFor(warmupDay)
	if b.Phase == 5 {
		return 5, target
	}
	limit := int(b.Fraction * float64(target))
	if limit < b.MinLimit {
		limit = b.MinLimit
	}
	return b.Phase, limit
}

func boundFor(warmupDay int) Bound {
	for _, b := range bounds {
		if warmupDay >= b.FromDay && (b.ToDay == -1 || warmupDay <= b.ToDay) {
			return b
		}
	}
	return bounds[len(bounds)-1]
}

// CrossesBoundary reports whether advancing to newDay enters a new phase —
// true exactly when newDay is one of 1, 8, 15, 22, 29, the first day of
// each phase.
func CrossesBoundary(newDay int) bool {
	switch newDay {
	case 1, 8, 15, 22, 29:
		return true
	default:
		return false
	}
}
