package planner

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warmup-engine/internal/calendar"
	"warmup-engine/internal/models"
)

func TestPlanWeekendIsEmpty(t *testing.T) {
	p := NewWithRand(DefaultBandWeights(), calendar.DefaultBusinessHours(), rand.New(rand.NewSource(1)))
	saturday := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	entries := p.Plan(saturday, 20, time.UTC)
	assert.Empty(t, entries)
}

func TestPlanZeroLimitIsEmpty(t *testing.T) {
	p := NewWithRand(DefaultBandWeights(), calendar.DefaultBusinessHours(), rand.New(rand.NewSource(1)))
	monday := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
	entries := p.Plan(monday, 0, time.UTC)
	assert.Empty(t, entries)
}

func TestPlanBandCountsAreDeterministic(t *testing.T) {
	p := NewWithRand(DefaultBandWeights(), calendar.DefaultBusinessHours(), rand.New(rand.NewSource(42)))
	monday := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
	entries := p.Plan(monday, 20, time.UTC)

	var peak, normal, low int
	for _, e := range entries {
		switch e.Band {
		case models.BandPeak:
			peak++
		case models.BandNormal:
			normal++
		case models.BandLow:
			low++
		}
	}
	assert.Equal(t, 12, peak)
	assert.Equal(t, 6, normal)
	assert.Equal(t, 2, low)
	assert.Equal(t, len(entries), peak+normal+low)
}

func TestPlanEntriesAreSortedAndSpaced(t *testing.T) {
	p := NewWithRand(DefaultBandWeights(), calendar.DefaultBusinessHours(), rand.New(rand.NewSource(7)))
	monday := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
	entries := p.Plan(monday, 15, time.UTC)
	require.NotEmpty(t, entries)

	for i := 1; i < len(entries); i++ {
		assert.True(t, entries[i].FireAt.After(entries[i-1].FireAt))
		assert.GreaterOrEqual(t, entries[i].FireAt.Sub(entries[i-1].FireAt), 60*time.Second)
	}
}

func TestPlanStaysWithinBusinessHours(t *testing.T) {
	hours := calendar.DefaultBusinessHours()
	p := NewWithRand(DefaultBandWeights(), hours, rand.New(rand.NewSource(99)))
	monday := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
	entries := p.Plan(monday, 20, time.UTC)

	for _, e := range entries {
		local := e.FireAt.In(time.UTC)
		assert.True(t, calendar.IsBusinessHours(local, hours), "fire_at=%v outside business hours", local)
	}
}

func TestBandCountsSumToN(t *testing.T) {
	for n := 0; n <= 50; n++ {
		peak, normal, low := bandCounts(n, DefaultBandWeights())
		assert.Equal(t, n, peak+normal+low, "n=%d", n)
		assert.GreaterOrEqual(t, peak, 0)
		assert.GreaterOrEqual(t, normal, 0)
		assert.GreaterOrEqual(t, low, 0)
	}
}
