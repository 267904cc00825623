package sink

import "github.com/eleven-am/voice-capture/internal/transcription"

// Sink receives transcript events. Implementations must not assume a
// particular goroutine.
type Sink interface {
	Deliver(evt transcription.TranscriptEvent)
}

// Func adapts a plain function to Sink.
type Func func(evt transcription.TranscriptEvent)

func (f Func) Deliver(evt transcription.TranscriptEvent) {
	f(evt)
}

// Fanout delivers each event to every member in order.
type Fanout []Sink

func (f Fanout) Deliver(evt transcription.TranscriptEvent) {
	for _, s := range f {
		if s != nil {
			s.Deliver(evt)
		}
	}
}

// Discard drops everything.
var Discard Sink = Func(func(transcription.TranscriptEvent) {})
