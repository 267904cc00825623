package transcription

import (
	"context"

	"cloud.google.com/go/speech/apiv1/speechpb"
)

// Stream is one bidirectional recognize call. Send and Recv may run
// concurrently with each other but not with themselves.
type Stream interface {
	Send(*speechpb.StreamingRecognizeRequest) error
	Recv() (*speechpb.StreamingRecognizeResponse, error)
	CloseSend() error
}

// Backend opens recognize streams against the recognition service.
type Backend interface {
	Open(ctx context.Context) (Stream, error)
	Close() error
}

type Transcriber interface {
	SendAudio(frame []byte) error
	CloseSend() error
	Close() error
	Done() <-chan struct{}
	Err() error
}
