package sink

import (
	"sync"

	"github.com/eleven-am/voice-capture/internal/transcription"
)

// Channel exposes events as a receive channel. Deliver blocks when the
// buffer is full, so put it behind a Queue when the reader may stall.
type Channel struct {
	mu     sync.RWMutex
	ch     chan transcription.TranscriptEvent
	closed bool
}

func NewChannel(buffer int) *Channel {
	return &Channel{ch: make(chan transcription.TranscriptEvent, buffer)}
}

func (c *Channel) Deliver(evt transcription.TranscriptEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	c.ch <- evt
}

func (c *Channel) Events() <-chan transcription.TranscriptEvent {
	return c.ch
}

func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
