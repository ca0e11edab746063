package stream

// replayRing is a fixed-capacity ring of the most recent envelopes for
// one topic. Appending past capacity evicts the oldest entry. Not safe
// for concurrent use, callers hold the topic entry lock.
type replayRing struct {
	buf  []Envelope
	head int
	size int
}

func newReplayRing(capacity int) *replayRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &replayRing{buf: make([]Envelope, capacity)}
}

func (r *replayRing) Append(env Envelope) {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = env
		r.size++
		return
	}
	r.buf[r.head] = env
	r.head = (r.head + 1) % len(r.buf)
}

// Snapshot returns the buffered envelopes oldest first.
func (r *replayRing) Snapshot() []Envelope {
	out := make([]Envelope, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}

func (r *replayRing) Len() int {
	return r.size
}
