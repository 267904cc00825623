package transcription

import (
	"context"
	"io"
	"sync"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/protobuf/proto"
)

// MockStream is an in-memory recognize stream. It records every request and
// replays responses pushed by the test or dev harness. Useful for local
// development when no recognition service is configured.
type MockStream struct {
	mu         sync.Mutex
	ctx        context.Context
	requests   []*speechpb.StreamingRecognizeRequest
	closeSends int
	audioSent  int

	inMu      sync.Mutex
	inbound   chan mockInbound
	completed bool

	// SendErr is returned from the FailAt-th audio frame (1 based) onward.
	SendErr error
	FailAt  int
	// CompleteOnCloseSend ends the inbound side once end-of-input arrives.
	CompleteOnCloseSend bool
}

type mockInbound struct {
	resp *speechpb.StreamingRecognizeResponse
	err  error
}

func NewMockStream() *MockStream {
	return &MockStream{
		ctx:                 context.Background(),
		inbound:             make(chan mockInbound, 256),
		CompleteOnCloseSend: true,
	}
}

func (m *MockStream) Send(req *speechpb.StreamingRecognizeRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := req.GetStreamingRequest().(*speechpb.StreamingRecognizeRequest_AudioContent); ok {
		m.audioSent++
		if m.SendErr != nil && m.FailAt > 0 && m.audioSent >= m.FailAt {
			return m.SendErr
		}
	}
	m.requests = append(m.requests, proto.Clone(req).(*speechpb.StreamingRecognizeRequest))
	return nil
}

func (m *MockStream) Recv() (*speechpb.StreamingRecognizeResponse, error) {
	m.mu.Lock()
	ctx := m.ctx
	m.mu.Unlock()

	select {
	case in, ok := <-m.inbound:
		if !ok {
			return nil, io.EOF
		}
		return in.resp, in.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *MockStream) CloseSend() error {
	m.mu.Lock()
	m.closeSends++
	complete := m.CompleteOnCloseSend
	m.mu.Unlock()
	if complete {
		m.Complete()
	}
	return nil
}

// Push queues an inbound response.
func (m *MockStream) Push(resp *speechpb.StreamingRecognizeResponse) {
	m.enqueue(mockInbound{resp: resp})
}

// Fail makes the next Recv return err after earlier pushes drain.
func (m *MockStream) Fail(err error) {
	m.enqueue(mockInbound{err: err})
}

// Complete ends the inbound side; Recv returns io.EOF once drained.
func (m *MockStream) Complete() {
	m.inMu.Lock()
	defer m.inMu.Unlock()
	if !m.completed {
		m.completed = true
		close(m.inbound)
	}
}

func (m *MockStream) enqueue(in mockInbound) {
	m.inMu.Lock()
	defer m.inMu.Unlock()
	if m.completed {
		return
	}
	m.inbound <- in
}

func (m *MockStream) Requests() []*speechpb.StreamingRecognizeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*speechpb.StreamingRecognizeRequest(nil), m.requests...)
}

// AudioFrames returns the audio payloads that were accepted, in send order.
func (m *MockStream) AudioFrames() [][]byte {
	var frames [][]byte
	for _, req := range m.Requests() {
		if _, ok := req.GetStreamingRequest().(*speechpb.StreamingRecognizeRequest_AudioContent); ok {
			frames = append(frames, req.GetAudioContent())
		}
	}
	return frames
}

func (m *MockStream) CloseSendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeSends
}

// MockBackend hands out a single MockStream.
type MockBackend struct {
	mu      sync.Mutex
	Stream  *MockStream
	OpenErr error
	opens   int
	closes  int
}

func NewMockBackend() *MockBackend {
	return &MockBackend{Stream: NewMockStream()}
}

func (b *MockBackend) Open(ctx context.Context) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opens++
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	if b.Stream == nil {
		b.Stream = NewMockStream()
	}
	b.Stream.mu.Lock()
	b.Stream.ctx = ctx
	b.Stream.mu.Unlock()
	return b.Stream, nil
}

func (b *MockBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closes++
	return nil
}

func (b *MockBackend) Opens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}

func (b *MockBackend) Closes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closes
}
