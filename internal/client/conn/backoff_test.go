package conn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultBackoff_CappedExponential(t *testing.T) {
	factory := DefaultBackoff(1000*time.Millisecond, 10000*time.Millisecond)
	backoff := factory()

	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		10000 * time.Millisecond, // capped, not 16s
	}

	for attempt, expected := range want {
		delay, stop := backoff.Next()
		assert.False(t, stop)
		assert.Equal(t, expected, delay, "attempt %d", attempt+1)
	}
}

func TestDefaultBackoff_FreshSequencePerCycle(t *testing.T) {
	factory := DefaultBackoff(time.Second, 10*time.Second)

	first := factory()
	first.Next()
	first.Next()

	// a new cycle starts over at the base delay
	second := factory()
	delay, stop := second.Next()
	assert.False(t, stop)
	assert.Equal(t, time.Second, delay)
}
