package model

import (
	"strings"
	"time"

	"feedcore/internal/model/enum"
)

// NormalizedTick is one executed trade after connector-boundary
// canonicalization. Immutable once emitted; every downstream component
// receives the same value.
type NormalizedTick struct {
	Exchange     enum.Exchange `json:"exchange"`
	InstrumentID string        `json:"symbol"`
	Price        float64       `json:"price"`
	Size         float64       `json:"size"`
	Side         enum.Side     `json:"side"`
	TradeID      string        `json:"tradeId,omitempty"`
	At           time.Time     `json:"ts"`
}

// Notional is the monetary value of the trade.
func (t NormalizedTick) Notional() float64 {
	return t.Price * t.Size
}

// QuoteSnapshot is the latest observed top-of-book for one instrument.
// Mid and Spread are derived at construction; Spread is never negative.
type QuoteSnapshot struct {
	Exchange     enum.Exchange `json:"exchange"`
	InstrumentID string        `json:"symbol"`
	Bid          float64       `json:"bid"`
	Ask          float64       `json:"ask"`
	Mid          float64       `json:"mid"`
	Spread       float64       `json:"spread"`
	LastPrice    float64       `json:"lastPrice,omitempty"`
	ObservedAt   time.Time     `json:"ts"`
	Source       string        `json:"source"`
}

// NewQuoteSnapshot derives spread and mid from raw bid/ask.
func NewQuoteSnapshot(exchange enum.Exchange, instrumentID string, bid, ask, last float64, observedAt time.Time) QuoteSnapshot {
	spread := ask - bid
	if spread < 0 {
		spread = 0
	}
	return QuoteSnapshot{
		Exchange:     exchange,
		InstrumentID: instrumentID,
		Bid:          bid,
		Ask:          ask,
		Mid:          bid + spread/2,
		Spread:       spread,
		LastPrice:    last,
		ObservedAt:   observedAt,
		Source:       exchange.String(),
	}
}

// Topic is the unit of subscription.
type Topic struct {
	Exchange     enum.Exchange
	Channel      enum.Channel
	InstrumentID string
}

func (t Topic) IsAvailable() bool {
	return t.Exchange.IsAvailable() && t.Channel.IsAvailable() && t.InstrumentID != ""
}

// Key renders the routing key, e.g. "binance:trades:BTC-USDT".
// Keys must be bit-exact; InstrumentID is always canonical uppercase.
func (t Topic) Key() string {
	return t.Exchange.String() + ":" + t.Channel.String() + ":" + t.InstrumentID
}

// ParseTopicKey parses a routing key produced by Key.
func ParseTopicKey(key string) (Topic, bool) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 {
		return Topic{}, false
	}
	exchange, ok := enum.ParseExchange(parts[0])
	if !ok {
		return Topic{}, false
	}
	channel, ok := enum.ParseChannel(parts[1])
	if !ok {
		return Topic{}, false
	}
	if parts[2] == "" {
		return Topic{}, false
	}
	return Topic{Exchange: exchange, Channel: channel, InstrumentID: parts[2]}, true
}

// WhaleTrade is one counterparty transaction entering the aggregator.
type WhaleTrade struct {
	Counterparty string    `json:"trader"`
	MarketID     string    `json:"marketId"`
	Price        float64   `json:"price"`
	Size         float64   `json:"size"`
	Notional     float64   `json:"notional"`
	Side         enum.Side `json:"side"`
	At           time.Time `json:"ts"`
}
