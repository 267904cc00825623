package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/voice-capture/internal/audio"
	"github.com/eleven-am/voice-capture/internal/metrics"
	"github.com/eleven-am/voice-capture/internal/pipeline"
	"github.com/eleven-am/voice-capture/internal/shared"
	"github.com/eleven-am/voice-capture/internal/sink"
	"github.com/eleven-am/voice-capture/internal/source"
	"github.com/eleven-am/voice-capture/internal/transcription"
	"github.com/redis/go-redis/v9"
)

var (
	ErrAlreadyCapturing = errors.New("capture already running")
	ErrNotCapturing     = errors.New("no capture running")
)

const recentTranscripts = 50

type Config struct {
	Driver  source.Driver
	Connect func(ctx context.Context) (transcription.Backend, error)

	Audio   audio.Config
	Session transcription.SessionOptions
	Source  source.Options

	// Redis, when set, receives every transcript on transcripts:<run_id>.
	Redis *redis.Client
	Hub   *Hub
	// Sink is an extra consumer for every run, e.g. a CLI printer.
	Sink sink.Sink

	Metrics *metrics.Metrics
	Log     *slog.Logger
}

type RecentTranscript struct {
	RunID string `json:"run_id"`
	transcription.TranscriptEvent
	ReceivedAt time.Time `json:"received_at"`
}

type Status struct {
	State string `json:"state"`
	RunID string `json:"run_id,omitempty"`
	pipeline.Stats
	LastError         string             `json:"last_error,omitempty"`
	LastErrorKind     shared.ErrorKind   `json:"last_error_kind,omitempty"`
	RecentTranscripts []RecentTranscript `json:"recent_transcripts"`
}

// Service owns the capture lifecycle for the process. At most one run is
// active; each run is a fresh pipeline.Loop.
type Service struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	active *pipeline.Loop
	last   *pipeline.Loop

	recentMu sync.Mutex
	recent   []RecentTranscript
}

func New(cfg Config) *Service {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Service{
		cfg:    cfg,
		logger: cfg.Log.With("component", "capture_service"),
	}
}

// StartCapture begins a new run and returns its id once the microphone is
// open and the recognition handshake has been sent.
func (s *Service) StartCapture(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return "", ErrAlreadyCapturing
	}

	runID := shared.NewID("run_")
	var loop *pipeline.Loop
	loop = pipeline.New(pipeline.Config{
		Driver:    s.cfg.Driver,
		Connect:   s.cfg.Connect,
		Audio:     s.cfg.Audio,
		Session:   s.cfg.Session,
		Source:    s.cfg.Source,
		Sink:      s.sinksFor(runID),
		OnStopped: func(err error) { s.onStopped(loop, err) },
		RunID:     runID,
		Metrics:   s.cfg.Metrics,
		Log:       s.cfg.Log,
	})

	s.last = loop
	if err := loop.Start(ctx); err != nil {
		s.broadcastStopped(runID, err)
		return "", err
	}
	s.active = loop

	s.logger.Info("capture run started", "run_id", runID)
	return runID, nil
}

// StopCapture requests the active run to stop and waits until it has
// released its resources or ctx ends.
func (s *Service) StopCapture(ctx context.Context) error {
	s.mu.Lock()
	loop := s.active
	s.mu.Unlock()

	if loop == nil {
		return ErrNotCapturing
	}
	if err := loop.Stop(); err != nil && !errors.Is(err, pipeline.ErrInvalidState) {
		return err
	}

	select {
	case <-loop.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops any active run. Used on process exit.
func (s *Service) Shutdown(ctx context.Context) error {
	err := s.StopCapture(ctx)
	if errors.Is(err, ErrNotCapturing) {
		return nil
	}
	return err
}

func (s *Service) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

func (s *Service) Status() Status {
	s.mu.Lock()
	loop := s.last
	s.mu.Unlock()

	st := Status{
		State:             pipeline.StateIdle.String(),
		RecentTranscripts: s.Recent(),
	}
	if loop == nil {
		return st
	}

	st.State = loop.State().String()
	st.RunID = loop.RunID()
	st.Stats = loop.Stats()
	if err := loop.Err(); err != nil {
		st.LastError = err.Error()
		st.LastErrorKind = shared.KindOf(err)
	}
	return st
}

// Recent returns up to the last 50 transcripts across runs, oldest first.
func (s *Service) Recent() []RecentTranscript {
	s.recentMu.Lock()
	defer s.recentMu.Unlock()
	return append([]RecentTranscript{}, s.recent...)
}

func (s *Service) remember(runID string, evt transcription.TranscriptEvent) {
	s.recentMu.Lock()
	defer s.recentMu.Unlock()
	s.recent = append(s.recent, RecentTranscript{RunID: runID, TranscriptEvent: evt, ReceivedAt: time.Now().UTC()})
	if over := len(s.recent) - recentTranscripts; over > 0 {
		s.recent = append(s.recent[:0], s.recent[over:]...)
	}
}

func (s *Service) sinksFor(runID string) sink.Sink {
	sinks := sink.Fanout{
		sink.Func(func(evt transcription.TranscriptEvent) { s.remember(runID, evt) }),
	}
	if s.cfg.Hub != nil {
		sinks = append(sinks, s.cfg.Hub.SinkFor(runID))
	}
	if s.cfg.Redis != nil {
		sinks = append(sinks, sink.NewPublisher(s.cfg.Redis, runID, s.cfg.Log))
	}
	if s.cfg.Sink != nil {
		sinks = append(sinks, s.cfg.Sink)
	}
	return sinks
}

func (s *Service) onStopped(loop *pipeline.Loop, err error) {
	s.mu.Lock()
	if s.active == loop {
		s.active = nil
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("capture run ended with error", "run_id", loop.RunID(), "error", err, "kind", shared.KindOf(err))
	} else {
		s.logger.Info("capture run ended", "run_id", loop.RunID())
	}
	s.broadcastStopped(loop.RunID(), err)
}

func (s *Service) broadcastStopped(runID string, err error) {
	if s.cfg.Hub == nil {
		return
	}
	evt := Event{Type: EventStopped, RunID: runID}
	if err != nil {
		evt.Error = err.Error()
		evt.ErrorKind = shared.KindOf(err)
	}
	s.cfg.Hub.Broadcast(evt)
}
