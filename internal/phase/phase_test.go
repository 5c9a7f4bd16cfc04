package phase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForPhase1Minimum(t *testing.T) {
	p, limit := For(1, 50)
	assert.Equal(t, 1, p)
	assert.Equal(t, 5, limit) // max(5, 0.10*50=5)
}

func TestForPhase1Floor(t *testing.T) {
	// target small enough that 10% falls below the floor of 5.
	p, limit := For(3, 20)
	assert.Equal(t, 1, p)
	assert.Equal(t, 5, limit) // max(5, 2) == 5
}

func TestForDayZero(t *testing.T) {
	p, limit := For(0, 50)
	assert.Equal(t, 1, p)
	assert.Equal(t, 0, limit)
}

func TestForPhase5(t *testing.T) {
	p, limit := For(40, 50)
	assert.Equal(t, 5, p)
	assert.Equal(t, 50, limit)
}

func TestForEachPhaseBoundary(t *testing.T) {
	cases := []struct {
		day, target, wantPhase, wantLimit int
	}{
		{7, 50, 1, 5},
		{8, 50, 2, 12},
		{14, 50, 2, 12},
		{15, 50, 3, 25},
		{21, 50, 3, 25},
		{22, 50, 4, 37},
		{28, 50, 4, 37},
		{29, 50, 5, 50},
	}
	for _, c := range cases {
		p, limit := For(c.day, c.target)
		assert.Equal(t, c.wantPhase, p, "day=%d", c.day)
		assert.Equal(t, c.wantLimit, limit, "day=%d", c.day)
	}
}

func TestCrossesBoundary(t *testing.T) {
	assert.True(t, CrossesBoundary(8))
	assert.True(t, CrossesBoundary(29))
	assert.False(t, CrossesBoundary(9))
	assert.False(t, CrossesBoundary(2))
}
