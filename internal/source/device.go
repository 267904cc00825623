package source

import (
	"errors"

	"github.com/eleven-am/voice-capture/internal/audio"
)

// Errors a Device may return from Read. ErrInvalidOperation and ErrBadValue
// are transient; ErrDeviceClosed means Release ran concurrently.
var (
	ErrInvalidOperation = errors.New("invalid read operation")
	ErrBadValue         = errors.New("bad read value")
	ErrDeviceClosed     = errors.New("device closed")
)

// Driver is the platform audio-input subsystem.
type Driver interface {
	// MinBufferSize is the smallest read buffer, in samples, the platform
	// accepts for cfg.
	MinBufferSize(cfg audio.Config) (int, error)
	Open(cfg audio.Config, bufferSize int) (Device, error)
}

// Device is one opened microphone. Read blocks until at least one sample is
// available or the device is released.
type Device interface {
	Start() error
	Read(buf []int16) (int, error)
	Stop() error
	Release() error
}

func isTransient(err error) bool {
	return errors.Is(err, ErrInvalidOperation) || errors.Is(err, ErrBadValue)
}
