package sink

import (
	"log/slog"
	"sync"

	"github.com/eleven-am/voice-capture/internal/transcription"
)

// Queue decouples the producer from a slow sink. Deliver appends and
// returns; a single dispatcher forwards events to next in arrival order.
type Queue struct {
	next Sink
	log  *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending []transcription.TranscriptEvent
	closed  bool

	done      chan struct{}
	closeOnce sync.Once
}

func NewQueue(next Sink, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	if next == nil {
		next = Discard
	}
	q := &Queue{
		next: next,
		log:  log.With("component", "transcript_queue"),
		done: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.dispatch()
	return q
}

func (q *Queue) Deliver(evt transcription.TranscriptEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.log.Warn("transcript dropped after queue close", "text", evt.Text)
		return
	}
	q.pending = append(q.pending, evt)
	q.cond.Signal()
}

// Len is the number of events not yet handed to the next sink.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops accepting events, waits for everything queued to be
// delivered, then returns. Safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	<-q.done
}

func (q *Queue) dispatch() {
	defer close(q.done)

	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		evt := q.pending[0]
		q.pending[0] = transcription.TranscriptEvent{}
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.deliver(evt)
	}
}

func (q *Queue) deliver(evt transcription.TranscriptEvent) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("transcript sink panicked", "panic", r)
		}
	}()
	q.next.Deliver(evt)
}
