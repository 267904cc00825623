package source

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/voice-capture/internal/audio"
	"github.com/eleven-am/voice-capture/internal/shared"
	"golang.org/x/time/rate"
)

var ErrEndOfStream = errors.New("end of stream")

// idleWait is the pause after a read that returned no samples.
const idleWait = 5 * time.Millisecond

type Options struct {
	// BadReads bounds consecutive transient read failures before the
	// device is declared unavailable.
	BadReads shared.BackoffConfig
	// OnBadRead is called for every transient failure.
	OnBadRead func(err error)
	Log       *slog.Logger
}

// Source is an opened microphone producing SampleBlocks. It is used by a
// single reader; Close may be called from any goroutine.
type Source struct {
	dev     Device
	cfg     audio.Config
	buf     []int16
	backoff shared.BackoffConfig
	onBad   func(error)
	warn    *rate.Limiter
	sleep   func(time.Duration)
	log     *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open validates cfg, sizes the read buffer from the platform minimum and
// starts recording. Every failure wraps shared.ErrDeviceUnavailable and
// leaves nothing acquired.
func Open(drv Driver, cfg audio.Config, opts Options) (*Source, error) {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if drv == nil {
		return nil, fmt.Errorf("%w: no audio driver", shared.ErrDeviceUnavailable)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrDeviceUnavailable, err)
	}

	size, err := drv.MinBufferSize(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: query buffer size: %v", shared.ErrDeviceUnavailable, err)
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: invalid buffer size %d", shared.ErrDeviceUnavailable, size)
	}

	dev, err := drv.Open(cfg, size)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", shared.ErrDeviceUnavailable, err)
	}
	if err := dev.Start(); err != nil {
		_ = dev.Release()
		return nil, fmt.Errorf("%w: start recording: %v", shared.ErrDeviceUnavailable, err)
	}

	log := opts.Log.With("component", "sample_source")
	log.Info("microphone opened", "sample_rate", cfg.SampleRateHz, "buffer_samples", size)

	return &Source{
		dev:     dev,
		cfg:     cfg,
		buf:     make([]int16, size),
		backoff: opts.BadReads.Normalize(),
		onBad:   opts.OnBadRead,
		warn:    rate.NewLimiter(rate.Every(time.Second), 1),
		sleep:   time.Sleep,
		log:     log,
	}, nil
}

func (s *Source) BufferSize() int {
	return len(s.buf)
}

// ReadBlock blocks until the device yields samples. A read that yields none
// returns an empty block after a short pause so the caller can check for a
// stop. The returned block aliases the source buffer and is only valid until
// the next call.
func (s *Source) ReadBlock() (audio.SampleBlock, error) {
	bad := 0
	for {
		n, err := s.dev.Read(s.buf)
		switch {
		case err == nil && n > 0:
			if n > len(s.buf) {
				n = len(s.buf)
			}
			return audio.SampleBlock{Samples: s.buf, N: n}, nil
		case err == nil:
			s.sleep(idleWait)
			return audio.SampleBlock{Samples: s.buf}, nil
		case errors.Is(err, ErrDeviceClosed), errors.Is(err, io.EOF):
			return audio.SampleBlock{}, ErrEndOfStream
		case isTransient(err):
			if s.onBad != nil {
				s.onBad(err)
			}
			if bad >= s.backoff.MaxAttempts-1 {
				return audio.SampleBlock{}, fmt.Errorf("%w: %d consecutive bad reads: %v",
					shared.ErrDeviceUnavailable, bad+1, err)
			}
			if s.warn.Allow() {
				s.log.Warn("bad microphone read, retrying", "attempt", bad+1, "error", err)
			}
			s.sleep(s.backoff.Delay(bad))
			bad++
		default:
			return audio.SampleBlock{}, fmt.Errorf("%w: read: %v", shared.ErrDeviceUnavailable, err)
		}
	}
}

// Close stops and releases the device exactly once. Release runs even when
// Stop fails.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		stopErr := s.dev.Stop()
		releaseErr := s.dev.Release()
		s.closeErr = errors.Join(stopErr, releaseErr)
		if s.closeErr != nil {
			s.log.Warn("microphone close reported errors", "error", s.closeErr)
		} else {
			s.log.Info("microphone released")
		}
	})
	return s.closeErr
}
