package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreOpenThresholds(t *testing.T) {
	assert.Equal(t, 100.0, scoreOpen(0.6))
	assert.Equal(t, 80.0, scoreOpen(0.4))
	assert.Equal(t, 60.0, scoreOpen(0.2))
	assert.Equal(t, 30.0, scoreOpen(0.1))
}

func TestScoreReplyThresholds(t *testing.T) {
	assert.Equal(t, 100.0, scoreReply(0.25))
	assert.Equal(t, 85.0, scoreReply(0.15))
	assert.Equal(t, 70.0, scoreReply(0.05))
	assert.InDelta(t, 35.0, scoreReply(0.025), 0.001)
}

func TestScorePhaseBonusesAndPenalties(t *testing.T) {
	assert.Equal(t, 90.0+10, scorePhase(4, 19, 20))
	assert.Equal(t, 80.0-15, scorePhase(3, 5, 20))
	assert.Equal(t, 65.0, scorePhase(2, 5, 10))
}

func TestScoreSpamThresholds(t *testing.T) {
	assert.Equal(t, 100.0, scoreSpam(0.0, 0, 0))
	assert.Equal(t, 95.0, scoreSpam(0.05, 1.0, 2))  // base 85 + recovery bonus 10
	assert.Equal(t, 100.0, scoreSpam(0.02, 0.9, 1)) // base 100 + bonus 10, clamped to 100
}

func TestGradeFor(t *testing.T) {
	assert.Equal(t, "A+", gradeFor(95))
	assert.Equal(t, "A", gradeFor(85))
	assert.Equal(t, "B", gradeFor(75))
	assert.Equal(t, "C", gradeFor(65))
	assert.Equal(t, "D", gradeFor(55))
	assert.Equal(t, "F", gradeFor(30))
}
