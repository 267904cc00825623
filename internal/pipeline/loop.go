package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eleven-am/voice-capture/internal/audio"
	"github.com/eleven-am/voice-capture/internal/metrics"
	"github.com/eleven-am/voice-capture/internal/shared"
	"github.com/eleven-am/voice-capture/internal/sink"
	"github.com/eleven-am/voice-capture/internal/source"
	"github.com/eleven-am/voice-capture/internal/transcription"
)

type Config struct {
	Driver source.Driver
	// Connect builds a fresh recognition backend for this run.
	Connect func(ctx context.Context) (transcription.Backend, error)

	Audio   audio.Config
	Session transcription.SessionOptions
	Source  source.Options

	Sink sink.Sink
	// OnStopped runs once, after teardown, for runs that reached capturing.
	OnStopped func(err error)

	RunID   string
	Metrics *metrics.Metrics
	Log     *slog.Logger
}

type Stats struct {
	FramesSent  int64     `json:"frames_sent"`
	BytesSent   int64     `json:"bytes_sent"`
	Transcripts int64     `json:"transcripts"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	StoppedAt   time.Time `json:"stopped_at,omitzero"`
}

// Loop is one capture run: a microphone source feeding one recognition
// session. A Loop is used once; a new run needs a new Loop.
type Loop struct {
	cfg   Config
	runID string
	log   *slog.Logger

	state   atomic.Int32
	started atomic.Bool
	done    chan struct{}

	src     *source.Source
	session *transcription.Session
	queue   *sink.Queue

	frames      atomic.Int64
	bytes       atomic.Int64
	transcripts atomic.Int64

	mu        sync.Mutex
	err       error
	startedAt time.Time
	stoppedAt time.Time
}

func New(cfg Config) *Loop {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Audio == (audio.Config{}) {
		cfg.Audio = audio.DefaultConfig()
	}
	if cfg.Session.SampleRateHz == 0 {
		cfg.Session.SampleRateHz = cfg.Audio.SampleRateHz
	}
	if cfg.RunID == "" {
		cfg.RunID = shared.NewID("run_")
	}
	if cfg.Source.Log == nil {
		cfg.Source.Log = cfg.Log
	}

	return &Loop{
		cfg:   cfg,
		runID: cfg.RunID,
		log:   cfg.Log.With("component", "capture_loop", "run_id", cfg.RunID),
		done:  make(chan struct{}),
	}
}

func (l *Loop) RunID() string {
	return l.runID
}

func (l *Loop) State() State {
	return State(l.state.Load())
}

// Done is closed once the loop reaches StateStopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Err is the error that ended the run, nil for a requested stop or end of
// stream.
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Loop) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return l.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) Stats() Stats {
	l.mu.Lock()
	startedAt, stoppedAt := l.startedAt, l.stoppedAt
	l.mu.Unlock()
	return Stats{
		FramesSent:  l.frames.Load(),
		BytesSent:   l.bytes.Load(),
		Transcripts: l.transcripts.Load(),
		StartedAt:   startedAt,
		StoppedAt:   stoppedAt,
	}
}

// Start acquires the microphone, connects to the recognition service and
// sends the session handshake, then starts the capture worker. ctx bounds
// the connect phase only; the stream itself lives until Stop.
//
// On failure everything acquired is released and the loop ends in
// StateStopped.
func (l *Loop) Start(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrInvalidState
	}
	if l.cfg.Connect == nil {
		return l.abort(fmt.Errorf("%w: no recognition backend configured", shared.ErrTransport))
	}

	srcOpts := l.cfg.Source
	onBad := srcOpts.OnBadRead
	srcOpts.OnBadRead = func(err error) {
		l.cfg.Metrics.RecordBadRead()
		if onBad != nil {
			onBad(err)
		}
	}

	src, err := source.Open(l.cfg.Driver, l.cfg.Audio, srcOpts)
	if err != nil {
		return l.abort(err)
	}

	backend, err := l.cfg.Connect(ctx)
	if err != nil {
		l.closeSource(src)
		if !errors.Is(err, shared.ErrAuthFailure) && !errors.Is(err, shared.ErrTransport) {
			err = fmt.Errorf("%w: %v", shared.ErrTransport, err)
		}
		return l.abort(err)
	}

	queue := sink.NewQueue(l.cfg.Sink, l.cfg.Log)
	session, err := transcription.Open(context.WithoutCancel(ctx), backend, l.cfg.Session, transcription.Callbacks{
		OnTranscript: func(evt transcription.TranscriptEvent) {
			l.transcripts.Add(1)
			l.cfg.Metrics.RecordTranscript(evt.IsFinal)
			queue.Deliver(evt)
		},
		OnError: l.stopWithError,
	}, l.cfg.Log)
	if err != nil {
		queue.Close()
		l.closeSource(src)
		return l.abort(err)
	}

	l.src, l.session, l.queue = src, session, queue

	l.mu.Lock()
	l.startedAt = time.Now()
	l.mu.Unlock()

	l.state.Store(int32(StateCapturing))
	// An inbound error may have arrived between the handshake and here.
	if l.Err() != nil {
		l.state.CompareAndSwap(int32(StateCapturing), int32(StateStopping))
	}
	l.cfg.Metrics.RecordRunStarted()
	l.log.Info("capture started", "buffer_samples", src.BufferSize())

	go l.run()
	return nil
}

// Stop asks the worker to finish. It returns immediately; use Wait or Done
// to observe StateStopped. Stopping an already stopping or stopped loop is
// a no-op.
func (l *Loop) Stop() error {
	switch l.State() {
	case StateIdle:
		return ErrInvalidState
	case StateStopping, StateStopped:
		return nil
	}
	if l.state.CompareAndSwap(int32(StateCapturing), int32(StateStopping)) {
		l.log.Info("capture stop requested")
	}
	return nil
}

func (l *Loop) run() {
	defer l.teardown()

	for l.State() == StateCapturing {
		block, err := l.src.ReadBlock()
		if err != nil {
			if errors.Is(err, source.ErrEndOfStream) {
				l.log.Info("microphone stream ended")
				l.state.CompareAndSwap(int32(StateCapturing), int32(StateStopping))
				return
			}
			l.stopWithError(err)
			return
		}
		if block.N == 0 {
			continue
		}

		frame := audio.Encode(block)
		if err := l.session.SendAudio(frame); err != nil {
			l.stopWithError(err)
			return
		}
		l.frames.Add(1)
		l.bytes.Add(int64(len(frame)))
		l.cfg.Metrics.RecordFrame(len(frame))
	}
}

func (l *Loop) teardown() {
	if r := recover(); r != nil {
		l.stopWithError(fmt.Errorf("capture worker panic: %v", r))
	}
	l.state.CompareAndSwap(int32(StateCapturing), int32(StateStopping))

	func() {
		defer l.closeSource(l.src)
		defer func() {
			if r := recover(); r != nil {
				l.recordErr(fmt.Errorf("session close panic: %v", r))
				l.log.Error("session close panicked", "panic", r)
			}
		}()
		if err := l.session.CloseSend(); err != nil {
			l.log.Warn("end of input failed", "error", err)
		}
		if err := l.session.Close(); err != nil {
			l.log.Warn("session close reported errors", "error", err)
		}
	}()

	l.queue.Close()

	now := time.Now()
	l.mu.Lock()
	l.stoppedAt = now
	started := l.startedAt
	err := l.err
	l.mu.Unlock()

	l.cfg.Metrics.RecordRunStopped(now.Sub(started).Seconds())
	if err != nil {
		l.cfg.Metrics.RecordError(string(shared.KindOf(err)))
	}

	l.state.Store(int32(StateStopped))

	stats := l.Stats()
	l.log.Info("capture stopped",
		"frames_sent", stats.FramesSent,
		"bytes_sent", stats.BytesSent,
		"transcripts", stats.Transcripts,
		"error", err)

	// Waiters see Done only after the stop notification has run.
	if l.cfg.OnStopped != nil {
		l.cfg.OnStopped(err)
	}
	close(l.done)
}

// stopWithError records err and moves a capturing loop to stopping. Safe
// from any goroutine.
func (l *Loop) stopWithError(err error) {
	l.recordErr(err)
	l.log.Error("capture error", "error", err, "kind", shared.KindOf(err))
	l.state.CompareAndSwap(int32(StateCapturing), int32(StateStopping))
}

func (l *Loop) recordErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err == nil {
		l.err = err
	}
}

func (l *Loop) abort(err error) error {
	l.recordErr(err)
	l.log.Error("capture start failed", "error", err, "kind", shared.KindOf(err))
	l.cfg.Metrics.RecordError(string(shared.KindOf(err)))
	l.state.Store(int32(StateStopped))
	close(l.done)
	return err
}

func (l *Loop) closeSource(src *source.Source) {
	if src == nil {
		return
	}
	if err := src.Close(); err != nil {
		l.log.Warn("microphone release failed", "error", err)
	}
}
