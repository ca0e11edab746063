package whale

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
)

var (
	ErrQueueFull   = errors.New("whale: promotion queue full")
	ErrQueueClosed = errors.New("whale: promotion queue closed")
)

// Promotion is emitted once when a counterparty first crosses the
// notional threshold.
type Promotion struct {
	Counterparty  string    `json:"counterparty"`
	TotalNotional float64   `json:"totalNotional"`
	TradeCount    int       `json:"tradeCount"`
	At            time.Time `json:"at"`
}

// PromotionQueue is a bounded, non-blocking promotion queue.
type PromotionQueue struct {
	ch     chan Promotion
	closed uint32
}

func NewPromotionQueue(capacity int) *PromotionQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &PromotionQueue{ch: make(chan Promotion, capacity)}
}

// TryPublish enqueues a promotion without blocking.
func (q *PromotionQueue) TryPublish(p Promotion) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	select {
	case q.ch <- p:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the queue from accepting new promotions.
func (q *PromotionQueue) Close() {
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Run consumes promotions until the context is done or the queue is
// closed.
func (q *PromotionQueue) Run(ctx context.Context, handler func(Promotion)) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-q.ch:
			if !ok {
				return
			}
			handler(p)
		}
	}
}
