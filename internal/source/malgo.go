//go:build cgo

package source

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/voice-capture/internal/audio"
	"github.com/gen2brain/malgo"
)

const (
	periodDuration = 20 * time.Millisecond
	// ringPeriods is how many periods are buffered before the oldest samples
	// are overwritten.
	ringPeriods = 50
)

// MalgoDriver captures from the default input device through miniaudio.
type MalgoDriver struct {
	Log *slog.Logger
}

func NewMalgoDriver(log *slog.Logger) *MalgoDriver {
	if log == nil {
		log = slog.Default()
	}
	return &MalgoDriver{Log: log.With("component", "malgo_driver")}
}

func (d *MalgoDriver) MinBufferSize(cfg audio.Config) (int, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	return cfg.SamplesFor(periodDuration), nil
}

func (d *MalgoDriver) Open(cfg audio.Config, bufferSize int) (Device, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	dev := &malgoDevice{
		mctx: mctx,
		ring: newSampleRing(bufferSize * ringPeriods),
		log:  d.Log,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRateHz)
	deviceConfig.PeriodSizeInFrames = uint32(bufferSize / cfg.Channels)
	deviceConfig.Alsa.NoMMap = 1

	scratch := make([]int16, bufferSize)
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			for len(input) > 0 {
				n := audio.NativeToInt16(scratch, input)
				if n == 0 {
					return
				}
				dev.ring.write(scratch[:n])
				input = input[n*audio.BytesPerSample:]
			}
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	dev.device = device
	return dev, nil
}

type malgoDevice struct {
	mctx   *malgo.AllocatedContext
	device *malgo.Device
	ring   *sampleRing
	log    *slog.Logger

	releaseOnce sync.Once
}

func (d *malgoDevice) Start() error {
	return d.device.Start()
}

func (d *malgoDevice) Read(buf []int16) (int, error) {
	return d.ring.read(buf)
}

func (d *malgoDevice) Stop() error {
	return d.device.Stop()
}

func (d *malgoDevice) Release() error {
	var err error
	d.releaseOnce.Do(func() {
		d.ring.close()
		d.device.Uninit()
		err = d.mctx.Uninit()
		d.mctx.Free()
		if dropped := d.ring.overruns(); dropped > 0 {
			d.log.Warn("capture ring overran", "dropped_samples", dropped)
		}
	})
	return err
}
