package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryAfterSecondsRoundsUp(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter time.Duration
		want       int
	}{
		{"allowed decision", 0, 0},
		{"negative clamps to zero", -time.Second, 0},
		{"sub-second rounds up to one", 300 * time.Millisecond, 1},
		{"exact seconds pass through", 42 * time.Second, 42},
		{"fractional rounds up", 42*time.Second + time.Millisecond, 43},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decision{RetryAfter: tt.retryAfter}
			assert.Equal(t, tt.want, d.RetryAfterSeconds())
		})
	}
}
