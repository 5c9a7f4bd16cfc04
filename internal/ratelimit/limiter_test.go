package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowPerSenderBuckets(t *testing.T) {
	l := New(1, 1)
	assert.True(t, l.Allow(1))
	assert.False(t, l.Allow(1))
	// A different sender has its own bucket and is unaffected.
	assert.True(t, l.Allow(2))
}
