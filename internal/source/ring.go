package source

import "sync"

// sampleRing bridges callback-driven drivers to the blocking Read contract.
// When full, the oldest samples are overwritten.
type sampleRing struct {
	mu      sync.Mutex
	cond    *sync.Cond
	data    []int16
	head    int
	size    int
	closed  bool
	dropped uint64
}

func newSampleRing(capacity int) *sampleRing {
	if capacity <= 0 {
		capacity = 1
	}
	r := &sampleRing{data: make([]int16, capacity)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *sampleRing) write(samples []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	for _, s := range samples {
		if r.size == len(r.data) {
			r.head = (r.head + 1) % len(r.data)
			r.size--
			r.dropped++
		}
		r.data[(r.head+r.size)%len(r.data)] = s
		r.size++
	}
	r.cond.Signal()
}

func (r *sampleRing) read(buf []int16) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.size == 0 && !r.closed {
		r.cond.Wait()
	}
	if r.size == 0 {
		return 0, ErrDeviceClosed
	}
	n := min(len(buf), r.size)
	for i := 0; i < n; i++ {
		buf[i] = r.data[(r.head+i)%len(r.data)]
	}
	r.head = (r.head + n) % len(r.data)
	r.size -= n
	return n, nil
}

func (r *sampleRing) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cond.Broadcast()
}

func (r *sampleRing) overruns() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
