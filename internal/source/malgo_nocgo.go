//go:build !cgo

package source

import (
	"errors"
	"log/slog"

	"github.com/eleven-am/voice-capture/internal/audio"
)

var errNoCgo = errors.New("microphone capture requires cgo")

// MalgoDriver is unavailable without cgo; every call fails so capture
// reports a device error instead of panicking.
type MalgoDriver struct {
	Log *slog.Logger
}

func NewMalgoDriver(log *slog.Logger) *MalgoDriver {
	return &MalgoDriver{Log: log}
}

func (d *MalgoDriver) MinBufferSize(audio.Config) (int, error) {
	return 0, errNoCgo
}

func (d *MalgoDriver) Open(audio.Config, int) (Device, error) {
	return nil, errNoCgo
}
