package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/alicebob/miniredis/v2"
	"github.com/eleven-am/voice-capture/internal/audio"
	"github.com/eleven-am/voice-capture/internal/shared"
	"github.com/eleven-am/voice-capture/internal/sink"
	"github.com/eleven-am/voice-capture/internal/source"
	"github.com/eleven-am/voice-capture/internal/transcription"
	"github.com/redis/go-redis/v9"
)

type liveDevice struct {
	mu       sync.Mutex
	released bool
}

func (d *liveDevice) Start() error { return nil }

func (d *liveDevice) Read(buf []int16) (int, error) {
	d.mu.Lock()
	released := d.released
	d.mu.Unlock()
	if released {
		return 0, source.ErrDeviceClosed
	}
	time.Sleep(time.Millisecond)
	return len(buf), nil
}

func (d *liveDevice) Stop() error { return nil }

func (d *liveDevice) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = true
	return nil
}

type testDriver struct {
	openErr error
}

func (t *testDriver) MinBufferSize(audio.Config) (int, error) { return 320, nil }

func (t *testDriver) Open(audio.Config, int) (source.Device, error) {
	if t.openErr != nil {
		return nil, t.openErr
	}
	return &liveDevice{}, nil
}

type backends struct {
	mu   sync.Mutex
	list []*transcription.MockBackend
}

func (b *backends) connect(context.Context) (transcription.Backend, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	mb := transcription.NewMockBackend()
	b.list = append(b.list, mb)
	return mb, nil
}

func (b *backends) latest() *transcription.MockBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.list[len(b.list)-1]
}

func (b *backends) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.list)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(drv source.Driver, b *backends, extra func(*Config)) *Service {
	cfg := Config{
		Driver:  drv,
		Connect: b.connect,
		Session: transcription.SessionOptions{DrainTimeout: 500 * time.Millisecond},
		Log:     testLogger(),
	}
	if extra != nil {
		extra(&cfg)
	}
	return New(cfg)
}

func stopWithin(t *testing.T, s *Service) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return s.StopCapture(ctx)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func transcriptResponse(text string, final bool) *speechpb.StreamingRecognizeResponse {
	return &speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{{
			Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: text}},
			IsFinal:      final,
		}},
	}
}

func TestService_StartStopLifecycle(t *testing.T) {
	b := &backends{}
	s := newTestService(&testDriver{}, b, nil)

	if st := s.Status(); st.State != "idle" {
		t.Errorf("expected idle before first run, got %s", st.State)
	}
	if err := stopWithin(t, s); !errors.Is(err, ErrNotCapturing) {
		t.Errorf("stop while idle: expected ErrNotCapturing, got %v", err)
	}

	runID, err := s.StartCapture(context.Background())
	if err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	if runID == "" {
		t.Fatal("expected run id")
	}
	if st := s.Status(); st.State != "capturing" || st.RunID != runID {
		t.Errorf("unexpected status %+v", st)
	}
	if _, err := s.StartCapture(context.Background()); !errors.Is(err, ErrAlreadyCapturing) {
		t.Errorf("second start: expected ErrAlreadyCapturing, got %v", err)
	}

	waitFor(t, func() bool { return s.Status().FramesSent > 0 })

	if err := stopWithin(t, s); err != nil {
		t.Fatalf("StopCapture: %v", err)
	}
	st := s.Status()
	if st.State != "stopped" || st.LastError != "" {
		t.Errorf("unexpected status after stop %+v", st)
	}
	if s.Active() {
		t.Error("service still reports an active run")
	}
	if n := b.latest().Stream.CloseSendCount(); n != 1 {
		t.Errorf("expected one end-of-input, got %d", n)
	}

	second, err := s.StartCapture(context.Background())
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if second == runID {
		t.Error("new run reused the previous run id")
	}
	if b.count() != 2 {
		t.Errorf("expected a fresh backend per run, got %d", b.count())
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown when idle: %v", err)
	}
}

func TestService_StartFailureIsReported(t *testing.T) {
	b := &backends{}
	s := newTestService(&testDriver{openErr: errors.New("no such device")}, b, nil)

	_, err := s.StartCapture(context.Background())
	if !errors.Is(err, shared.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if s.Active() {
		t.Error("failed start left an active run")
	}
	st := s.Status()
	if st.State != "stopped" || st.LastErrorKind != shared.KindDeviceUnavailable {
		t.Errorf("unexpected status %+v", st)
	}
	if b.count() != 0 {
		t.Error("backend connected despite device failure")
	}
}

func TestService_RunEndsOnInboundError(t *testing.T) {
	b := &backends{}
	s := newTestService(&testDriver{}, b, nil)

	if _, err := s.StartCapture(context.Background()); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	b.latest().Stream.Fail(errors.New("stream reset"))

	waitFor(t, func() bool { return !s.Active() })
	st := s.Status()
	if st.LastErrorKind != shared.KindTransport {
		t.Errorf("expected transport error kind, got %q", st.LastErrorKind)
	}
}

func TestService_TranscriptsReachEveryConsumer(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	b := &backends{}
	extra := sink.NewChannel(8)
	s := newTestService(&testDriver{}, b, func(cfg *Config) {
		cfg.Redis = rdb
		cfg.Sink = extra
	})

	runID, err := s.StartCapture(context.Background())
	if err != nil {
		t.Fatalf("StartCapture: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sub := rdb.Subscribe(ctx, sink.ChannelFor(runID))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	b.latest().Stream.Push(transcriptResponse("hola mundo", true))

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	var published sink.Message
	if err := json.Unmarshal([]byte(msg.Payload), &published); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if published.Text != "hola mundo" || published.RunID != runID {
		t.Errorf("unexpected published message %+v", published)
	}

	select {
	case evt := <-extra.Events():
		if evt.Text != "hola mundo" {
			t.Errorf("extra sink got %q", evt.Text)
		}
	case <-ctx.Done():
		t.Fatal("extra sink never received the transcript")
	}

	if err := stopWithin(t, s); err != nil {
		t.Fatalf("StopCapture: %v", err)
	}
	recent := s.Status().RecentTranscripts
	if len(recent) != 1 || recent[0].Text != "hola mundo" || recent[0].RunID != runID {
		t.Errorf("unexpected recent transcripts %+v", recent)
	}
	if n := s.Status().Transcripts; n != 1 {
		t.Errorf("expected 1 transcript counted, got %d", n)
	}
}

func TestService_RecentTranscriptsAreCapped(t *testing.T) {
	s := New(Config{Log: testLogger()})
	for i := 0; i < recentTranscripts+10; i++ {
		s.remember("run_x", transcription.TranscriptEvent{Text: string(rune('a' + i%26))})
	}

	recent := s.Recent()
	if len(recent) != recentTranscripts {
		t.Fatalf("expected %d recent transcripts, got %d", recentTranscripts, len(recent))
	}
	if recent[0].Text != string(rune('a'+10%26)) {
		t.Errorf("oldest entries not evicted first, head is %q", recent[0].Text)
	}
}
