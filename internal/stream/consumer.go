package stream

import "sync"

// OverflowPolicy decides what happens when a consumer queue is full.
type OverflowPolicy uint8

const (
	// OverflowDropOldest evicts the oldest queued envelope to make room.
	OverflowDropOldest OverflowPolicy = iota
	// OverflowDropNewest discards the incoming envelope.
	OverflowDropNewest
	// OverflowBlock makes Push wait for space. Use only when the
	// publisher can tolerate slow consumers.
	OverflowBlock
)

// Consumer is one downstream receiver. Envelopes are delivered through
// a bounded queue so a slow consumer never stalls the publisher.
type Consumer struct {
	queue *envelopeQueue
}

// NewConsumer creates a consumer with a bounded queue.
func NewConsumer(capacity int, policy OverflowPolicy) *Consumer {
	return &Consumer{queue: newEnvelopeQueue(capacity, policy)}
}

// Next blocks until an envelope is available or the queue is closed.
func (c *Consumer) Next() (Envelope, bool) {
	if c == nil || c.queue == nil {
		return Envelope{}, false
	}
	return c.queue.Pop()
}

// TryNext returns immediately; ok is false when the queue is empty or
// closed.
func (c *Consumer) TryNext() (Envelope, bool) {
	if c == nil || c.queue == nil {
		return Envelope{}, false
	}
	return c.queue.TryPop()
}

// Close closes the queue; pending envelopes are discarded.
func (c *Consumer) Close() {
	if c == nil || c.queue == nil {
		return
	}
	c.queue.Close()
}

// Len returns the number of queued envelopes.
func (c *Consumer) Len() int {
	if c == nil || c.queue == nil {
		return 0
	}
	return c.queue.Len()
}

// Dropped reports how many envelopes overflow has discarded.
func (c *Consumer) Dropped() uint64 {
	if c == nil || c.queue == nil {
		return 0
	}
	return c.queue.Dropped()
}

func (c *Consumer) enqueue(env Envelope) bool {
	if c == nil || c.queue == nil {
		return false
	}
	return c.queue.Push(env)
}

// envelopeQueue is a bounded ring buffer with blocking Pop.
type envelopeQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	buf      []Envelope
	head     int
	tail     int
	size     int
	dropped  uint64
	closed   bool
	policy   OverflowPolicy
}

func newEnvelopeQueue(capacity int, policy OverflowPolicy) *envelopeQueue {
	if capacity <= 0 {
		capacity = 1
	}
	q := &envelopeQueue{
		buf:    make([]Envelope, capacity),
		policy: policy,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

func (q *envelopeQueue) Push(env Envelope) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.closed {
			return false
		}
		if q.size < len(q.buf) {
			q.buf[q.tail] = env
			q.tail = (q.tail + 1) % len(q.buf)
			q.size++
			q.notEmpty.Signal()
			return true
		}
		switch q.policy {
		case OverflowBlock:
			q.notFull.Wait()
		case OverflowDropOldest:
			q.buf[q.head] = Envelope{}
			q.head = (q.head + 1) % len(q.buf)
			q.size--
			q.dropped++
		default:
			q.dropped++
			return false
		}
	}
}

func (q *envelopeQueue) Pop() (Envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.size > 0 {
			return q.pop(), true
		}
		if q.closed {
			return Envelope{}, false
		}
		q.notEmpty.Wait()
	}
}

func (q *envelopeQueue) TryPop() (Envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return Envelope{}, false
	}
	return q.pop(), true
}

func (q *envelopeQueue) pop() Envelope {
	env := q.buf[q.head]
	q.buf[q.head] = Envelope{}
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	q.notFull.Signal()
	return env
}

func (q *envelopeQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for i := range q.buf {
		q.buf[i] = Envelope{}
	}
	q.size = 0
	q.head = 0
	q.tail = 0
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	q.mu.Unlock()
}

func (q *envelopeQueue) Len() int {
	q.mu.Lock()
	size := q.size
	q.mu.Unlock()
	return size
}

func (q *envelopeQueue) Dropped() uint64 {
	q.mu.Lock()
	dropped := q.dropped
	q.mu.Unlock()
	return dropped
}
