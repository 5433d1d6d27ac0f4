package node

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	base := 2 * time.Second

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: -1, want: base},
		{attempt: 0, want: base},
		{attempt: 1, want: 2 * base},
		{attempt: 2, want: 4 * base},
		{attempt: 3, want: 8 * base},
		{attempt: 4, want: 8 * base},
		{attempt: 255, want: 8 * base},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(tt.attempt, base, DefaultBackoffShift), "attempt %d", tt.attempt)
	}
}

func TestBackoff_MonotoneThenFlat(t *testing.T) {
	base := 250 * time.Millisecond
	prev := Backoff(0, base, DefaultBackoffShift)
	for attempt := 1; attempt < 20; attempt++ {
		d := Backoff(attempt, base, DefaultBackoffShift)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		if attempt >= DefaultBackoffShift {
			assert.Equal(t, base<<DefaultBackoffShift, d)
		}
		prev = d
	}
}

func TestBackoff_ZeroShiftIsFlat(t *testing.T) {
	assert.Equal(t, time.Second, Backoff(5, time.Second, 0))
}
