package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/eleven-am/voice-capture/internal/audio"
	"github.com/eleven-am/voice-capture/internal/shared"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var ErrSessionClosed = errors.New("session closed")

// Session is one recognize stream: a single handshake, audio frames in
// order, one end-of-input. It is not reusable; a new handshake needs a new
// Session on a new Backend.
type Session struct {
	backend Backend
	stream  Stream
	opts    SessionOptions
	cb      Callbacks
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	handshakeSent atomic.Bool
	closing       atomic.Bool
	sendMu        sync.Mutex
	inputClosed   bool

	closeSendOnce sync.Once
	closeSendErr  error
	closeOnce     sync.Once
	closeErr      error

	errMu sync.Mutex
	err   error
}

var _ Transcriber = (*Session)(nil)

// Open starts a recognize stream on backend and sends the configuration
// request before returning. The session owns backend from here on, including
// on error.
func Open(ctx context.Context, backend Backend, opts SessionOptions, cb Callbacks, log *slog.Logger) (*Session, error) {
	if log == nil {
		log = slog.Default()
	}
	opts = opts.withDefaults()
	streamCtx, cancel := context.WithCancel(ctx)

	s := &Session{
		backend: backend,
		opts:    opts,
		cb:      cb,
		log:     log.With("component", "streaming_session"),
		ctx:     streamCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	stream, err := backend.Open(streamCtx)
	if err != nil {
		s.log.Error("open recognize stream failed", "error", err)
		cancel()
		_ = backend.Close()
		return nil, fmt.Errorf("%w: open stream: %v", shared.ErrTransport, err)
	}
	s.stream = stream
	s.log.Info("recognize stream opened")

	if err := s.sendConfig(); err != nil {
		s.log.Error("send config failed", "error", err)
		cancel()
		_ = backend.Close()
		return nil, fmt.Errorf("%w: send config: %v", shared.ErrTransport, err)
	}
	s.log.Info("recognition config sent", "language", opts.LanguageCode, "sample_rate", opts.SampleRateHz)

	go s.readLoop()
	return s, nil
}

func (s *Session) sendConfig() error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	err := s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: configRequest(s.opts),
		},
	})
	if err != nil {
		return err
	}
	s.handshakeSent.Store(true)
	return nil
}

func configRequest(opts SessionOptions) *speechpb.StreamingRecognitionConfig {
	return &speechpb.StreamingRecognitionConfig{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            int32(opts.SampleRateHz),
			AudioChannelCount:          audio.Channels,
			LanguageCode:               opts.LanguageCode,
			MaxAlternatives:            int32(opts.MaxAlternatives),
			ProfanityFilter:            opts.ProfanityFilter,
			EnableAutomaticPunctuation: opts.Punctuation,
			Model:                      opts.Model,
		},
		InterimResults:  opts.InterimResults,
		SingleUtterance: opts.SingleUtterance,
	}
}

// SendAudio sends one frame as one request. It blocks under transport
// backpressure.
func (s *Session) SendAudio(frame []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if !s.handshakeSent.Load() || s.inputClosed {
		return ErrSessionClosed
	}
	err := s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: frame},
	})
	if err != nil {
		return fmt.Errorf("%w: send audio: %v", shared.ErrTransport, err)
	}
	return nil
}

// CloseSend signals end-of-input exactly once. Inbound results keep flowing
// until the backend completes.
func (s *Session) CloseSend() error {
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		s.inputClosed = true
		err := s.stream.CloseSend()
		s.sendMu.Unlock()

		if err != nil {
			s.closeSendErr = fmt.Errorf("%w: close send: %v", shared.ErrTransport, err)
			return
		}
		s.log.Info("end of input sent")
	})
	return s.closeSendErr
}

// Close ends input, waits up to the drain timeout for trailing results,
// then tears the stream and backend down. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		sendErr := s.CloseSend()

		select {
		case <-s.done:
		case <-time.After(s.opts.DrainTimeout):
			s.log.Warn("recognition results not drained before timeout", "timeout", s.opts.DrainTimeout)
		}

		s.closing.Store(true)
		s.cancel()
		<-s.done

		s.closeErr = errors.Join(sendErr, s.backend.Close())
		s.log.Info("streaming session closed")
	})
	return s.closeErr
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err is the terminal inbound error, nil after normal completion.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Session) readLoop() {
	defer close(s.done)

	for {
		resp, err := s.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.log.Info("recognition stream completed")
				return
			}
			if s.closing.Load() && (errors.Is(err, context.Canceled) || status.Code(err) == codes.Canceled) {
				return
			}
			s.fail(fmt.Errorf("%w: receive: %v", shared.ErrTransport, err))
			return
		}

		if e := resp.GetError(); e != nil && e.GetCode() != int32(codes.OK) {
			s.fail(fmt.Errorf("%w: %s (code %d)", shared.ErrBackend, e.GetMessage(), e.GetCode()))
			continue
		}

		for _, result := range resp.GetResults() {
			for _, alt := range result.GetAlternatives() {
				evt := TranscriptEvent{
					Text:         alt.GetTranscript(),
					IsFinal:      result.GetIsFinal(),
					Confidence:   alt.GetConfidence(),
					Stability:    result.GetStability(),
					LanguageCode: result.GetLanguageCode(),
				}
				s.log.Debug("transcript received", "text", evt.Text, "final", evt.IsFinal)
				if s.cb.OnTranscript != nil {
					s.cb.OnTranscript(evt)
				}
			}
		}
	}
}

func (s *Session) fail(err error) {
	s.log.Error("recognition stream error", "error", err)
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
	if s.cb.OnError != nil {
		s.cb.OnError(err)
	}
}
