package shared

import (
	"time"

	"github.com/google/uuid"
)

type BackoffConfig struct {
	Initial     time.Duration
	MaxAttempts int
	MaxDelay    time.Duration
}

// Normalize fills zero or negative fields with the defaults.
func (b BackoffConfig) Normalize() BackoffConfig {
	if b.Initial <= 0 {
		b.Initial = 100 * time.Millisecond
	}
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = 5
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = 2 * time.Second
	}
	return b
}

// Delay returns the wait before retry number attempt (zero based).
func (b BackoffConfig) Delay(attempt int) time.Duration {
	d := b.Initial
	for i := 0; i < attempt; i++ {
		d = MinDuration(d*2, b.MaxDelay)
	}
	return MinDuration(d, b.MaxDelay)
}

func MinDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func NewID(prefix string) string {
	return prefix + uuid.NewString()
}
