package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsWeekend(t *testing.T) {
	mon := time.Date(2025, 10, 6, 10, 0, 0, 0, time.UTC)
	sat := time.Date(2025, 10, 11, 10, 0, 0, 0, time.UTC)
	assert.False(t, IsWeekend(mon))
	assert.True(t, IsWeekend(sat))
}

func TestIsBusinessHours(t *testing.T) {
	cfg := DefaultBusinessHours()
	mon9 := time.Date(2025, 10, 6, 9, 0, 0, 0, time.UTC)
	mon18 := time.Date(2025, 10, 6, 18, 0, 0, 0, time.UTC)
	mon859 := time.Date(2025, 10, 6, 8, 59, 0, 0, time.UTC)

	assert.True(t, IsBusinessHours(mon9, cfg))
	assert.False(t, IsBusinessHours(mon18, cfg))
	assert.False(t, IsBusinessHours(mon859, cfg))
}

func TestBandFor(t *testing.T) {
	assert.Equal(t, BandPeak, BandFor(9))
	assert.Equal(t, BandPeak, BandFor(15))
	assert.Equal(t, BandLow, BandFor(12))
	assert.Equal(t, BandLow, BandFor(13))
	assert.Equal(t, BandNormal, BandFor(11))
	assert.Equal(t, BandNormal, BandFor(17))
}

func TestFixedClock(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := FixedClock{At: at}
	assert.Equal(t, at, c.Now())
}
