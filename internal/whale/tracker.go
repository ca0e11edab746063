// Package whale aggregates per-counterparty trade flow and promotes
// counterparties whose cumulative notional crosses a threshold.
package whale

import (
	"sort"
	"strings"
	"sync"
	"time"

	"feedcore/internal/model"

	"github.com/yanun0323/logs"
)

const (
	DefaultMaxWhales   = 50
	DefaultThreshold   = 100_000
	DefaultSampleCap   = 20
	DefaultEventBuffer = 256
	// DefaultExplorerBase is the address explorer prefix for derived
	// ExplorerURL fields.
	DefaultExplorerBase = "https://polygonscan.com/address"
)

type Config struct {
	// MaxWhales bounds every ranked read and drives trimming.
	MaxWhales int
	// Threshold is the cumulative notional that promotes a counterparty.
	Threshold float64
	// SampleCap bounds the per-counterparty recent trade samples.
	SampleCap int
	// ExplorerBase prefixes derived ExplorerURL fields.
	ExplorerBase string
	// EventBuffer sizes the promotion queue.
	EventBuffer int
}

func (c Config) withDefaults() Config {
	if c.MaxWhales <= 0 {
		c.MaxWhales = DefaultMaxWhales
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.SampleCap <= 0 {
		c.SampleCap = DefaultSampleCap
	}
	if c.ExplorerBase == "" {
		c.ExplorerBase = DefaultExplorerBase
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
	return c
}

// Summary is the read-side view of one counterparty.
type Summary struct {
	Counterparty  string             `json:"counterparty"`
	TotalNotional float64            `json:"totalNotional"`
	TotalSize     float64            `json:"totalSize"`
	TradeCount    int                `json:"tradeCount"`
	MarketCount   int                `json:"marketCount"`
	Promoted      bool               `json:"promoted"`
	LastSeen      time.Time          `json:"lastSeen"`
	ExplorerURL   string             `json:"explorerUrl"`
	Samples       []model.WhaleTrade `json:"samples,omitempty"`
}

type stats struct {
	totalNotional float64
	totalSize     float64
	tradeCount    int
	markets       map[string]struct{}
	samples       []model.WhaleTrade
	lastSeen      time.Time
}

// Tracker aggregates counterparty activity. All methods are safe for
// concurrent use.
type Tracker struct {
	mu       sync.Mutex
	cfg      Config
	stats    map[string]*stats
	promoted map[string]struct{}
	queue    *PromotionQueue
}

func NewTracker(cfg Config) *Tracker {
	cfg = cfg.withDefaults()
	return &Tracker{
		cfg:      cfg,
		stats:    make(map[string]*stats),
		promoted: make(map[string]struct{}),
		queue:    NewPromotionQueue(cfg.EventBuffer),
	}
}

// Promotions exposes the one-shot promotion event queue.
func (t *Tracker) Promotions() *PromotionQueue {
	return t.queue
}

// Close stops promotion delivery.
func (t *Tracker) Close() {
	t.queue.Close()
}

// Record folds one trade into its counterparty's aggregate. Trades
// without a counterparty are ignored. Counterparty ids are compared
// case-insensitively.
func (t *Tracker) Record(tx model.WhaleTrade) {
	counterparty := strings.ToLower(strings.TrimSpace(tx.Counterparty))
	if counterparty == "" {
		return
	}
	notional := tx.Notional
	if notional <= 0 {
		notional = tx.Price * tx.Size
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.stats[counterparty]
	if !ok {
		s = &stats{markets: make(map[string]struct{})}
		t.stats[counterparty] = s
	}
	s.totalNotional += notional
	s.totalSize += tx.Size
	s.tradeCount++
	if tx.MarketID != "" {
		s.markets[tx.MarketID] = struct{}{}
	}
	s.samples = append(s.samples, tx)
	if len(s.samples) > t.cfg.SampleCap {
		s.samples = s.samples[1:]
	}
	if tx.At.After(s.lastSeen) {
		s.lastSeen = tx.At
	}

	t.maybePromoteLocked(counterparty, s)
	if len(t.stats) > 2*t.cfg.MaxWhales {
		t.trimLocked()
	}
}

func (t *Tracker) maybePromoteLocked(counterparty string, s *stats) {
	if s.totalNotional < t.cfg.Threshold {
		return
	}
	if _, done := t.promoted[counterparty]; done {
		return
	}
	t.promoted[counterparty] = struct{}{}
	promotion := Promotion{
		Counterparty:  counterparty,
		TotalNotional: s.totalNotional,
		TradeCount:    s.tradeCount,
		At:            s.lastSeen,
	}
	if err := t.queue.TryPublish(promotion); err != nil {
		logs.Warnf("whale: promotion for %s not delivered: %v", counterparty, err)
	}
	logs.Infof("whale: %s promoted at %.2f notional", counterparty, s.totalNotional)
}

// trimLocked keeps the top MaxWhales counterparties by notional and
// forgets everything else, promotion markers included, so a trimmed
// counterparty that reappears can be promoted again.
func (t *Tracker) trimLocked() {
	type ranked struct {
		counterparty string
		notional     float64
	}
	all := make([]ranked, 0, len(t.stats))
	for counterparty, s := range t.stats {
		all = append(all, ranked{counterparty, s.totalNotional})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].notional > all[j].notional })

	for _, victim := range all[t.cfg.MaxWhales:] {
		delete(t.stats, victim.counterparty)
		delete(t.promoted, victim.counterparty)
	}
	logs.Infof("whale: trimmed to top %d counterparties", t.cfg.MaxWhales)
}

// TopByNotional returns up to limit counterparties ranked by cumulative
// notional. limit is clamped to [1, MaxWhales].
func (t *Tracker) TopByNotional(limit int) []Summary {
	return t.ranked(limit, false)
}

// AboveThreshold is TopByNotional restricted to promoted counterparties.
func (t *Tracker) AboveThreshold(limit int) []Summary {
	return t.ranked(limit, true)
}

func (t *Tracker) ranked(limit int, promotedOnly bool) []Summary {
	if limit < 1 {
		limit = 1
	}
	if limit > t.cfg.MaxWhales {
		limit = t.cfg.MaxWhales
	}

	t.mu.Lock()
	out := make([]Summary, 0, len(t.stats))
	for counterparty, s := range t.stats {
		_, promoted := t.promoted[counterparty]
		if promotedOnly && !promoted {
			continue
		}
		out = append(out, Summary{
			Counterparty:  counterparty,
			TotalNotional: s.totalNotional,
			TotalSize:     s.totalSize,
			TradeCount:    s.tradeCount,
			MarketCount:   len(s.markets),
			Promoted:      promoted,
			LastSeen:      s.lastSeen,
			ExplorerURL:   t.cfg.ExplorerBase + "/" + counterparty,
			Samples:       append([]model.WhaleTrade(nil), s.samples...),
		})
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TotalNotional > out[j].TotalNotional })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Len reports the tracked counterparty count.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.stats)
}
