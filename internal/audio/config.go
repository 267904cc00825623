package audio

import (
	"errors"
	"fmt"
	"time"
)

const (
	SampleRate     = 16000
	Channels       = 1
	BytesPerSample = 2
)

type SampleFormat string

const FormatS16 SampleFormat = "s16"

var ErrUnsupportedConfig = errors.New("unsupported audio config")

// Config describes the capture format. It must match the sample rate declared
// in the recognition handshake for the whole run.
type Config struct {
	SampleRateHz   int
	Channels       int
	Format         SampleFormat
	BytesPerSample int
}

func DefaultConfig() Config {
	return Config{
		SampleRateHz:   SampleRate,
		Channels:       Channels,
		Format:         FormatS16,
		BytesPerSample: BytesPerSample,
	}
}

func (c Config) Validate() error {
	if c.SampleRateHz != SampleRate {
		return fmt.Errorf("%w: sample rate %d", ErrUnsupportedConfig, c.SampleRateHz)
	}
	if c.Channels != Channels {
		return fmt.Errorf("%w: %d channels", ErrUnsupportedConfig, c.Channels)
	}
	if c.Format != FormatS16 || c.BytesPerSample != BytesPerSample {
		return fmt.Errorf("%w: format %q/%d bytes", ErrUnsupportedConfig, c.Format, c.BytesPerSample)
	}
	return nil
}

// Duration is the playback time covered by the given number of samples.
func (c Config) Duration(samples int) time.Duration {
	if c.SampleRateHz <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := samples / c.Channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRateHz)
}

// SamplesFor is the inverse of Duration, rounded down.
func (c Config) SamplesFor(d time.Duration) int {
	return int(d*time.Duration(c.SampleRateHz)/time.Second) * c.Channels
}
