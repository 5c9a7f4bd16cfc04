package replymatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSubjectStripsReplyAndForwardPrefixes(t *testing.T) {
	assert.Equal(t, "hello there", normalizeSubject("Re: Hello there"))
	assert.Equal(t, "hello there", normalizeSubject("Fwd: Re: Hello there"))
	assert.Equal(t, "hello there", normalizeSubject("hello there"))
}
