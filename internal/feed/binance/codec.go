// Package binance speaks the Binance combined trade stream dialect.
package binance

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"feedcore/internal/feed"
	"feedcore/internal/model"
	"feedcore/internal/model/enum"

	"github.com/yanun0323/errors"
)

const DefaultURL = "wss://stream.binance.com:9443/ws"

// Codec encodes subscription management frames and decodes trade events.
// Binance streams are public, no auth handshake is required.
type Codec struct {
	seq atomic.Int64
}

func New() *Codec {
	return &Codec{}
}

func (c *Codec) RequiresAuth() bool { return false }

func (c *Codec) AuthFrame(string) ([]byte, error) {
	return nil, errors.New("binance: stream has no auth handshake")
}

type request struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

func (c *Codec) SubscribeFrame(topics []model.Topic) ([]byte, error) {
	return c.request("SUBSCRIBE", topics)
}

func (c *Codec) UnsubscribeFrame(topics []model.Topic) ([]byte, error) {
	return c.request("UNSUBSCRIBE", topics)
}

func (c *Codec) request(method string, topics []model.Topic) ([]byte, error) {
	params := make([]string, 0, len(topics))
	for _, topic := range topics {
		stream, err := StreamName(topic)
		if err != nil {
			return nil, err
		}
		params = append(params, stream)
	}
	return json.Marshal(request{Method: method, Params: params, ID: c.seq.Add(1)})
}

// StreamName maps a canonical topic onto the lower-cased Binance stream
// name, e.g. BTC-USDT trades -> "btcusdt@trade".
func StreamName(topic model.Topic) (string, error) {
	if topic.Channel != enum.ChannelTrades {
		return "", errors.Errorf("binance: unsupported channel %q", topic.Channel.String())
	}
	raw, ok := model.RawBinanceSymbol(topic.InstrumentID)
	if !ok {
		return "", errors.Errorf("binance: bad instrument %q", topic.InstrumentID)
	}
	return strings.ToLower(raw) + "@trade", nil
}

type tradeEvent struct {
	Event     string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	BuyerIsMM bool   `json:"m"`
	TradeTime int64  `json:"T"`
	TradeID   int64  `json:"t"`
}

type ack struct {
	Result json.RawMessage `json:"result"`
	ID     *int64          `json:"id"`
}

func (c *Codec) Decode(raw []byte) (feed.Frame, error) {
	var probe ack
	if err := json.Unmarshal(raw, &probe); err != nil {
		return feed.Frame{}, errors.Wrap(err, "binance: decode")
	}
	// SUBSCRIBE/UNSUBSCRIBE acks echo the request id with a null result.
	if probe.ID != nil {
		return feed.Frame{Kind: feed.FrameStatus, Status: feed.Status{Message: "ack"}}, nil
	}

	var event tradeEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return feed.Frame{}, errors.Wrap(err, "binance: decode trade")
	}
	if event.Event != "trade" {
		return feed.Frame{Kind: feed.FrameUnknown}, nil
	}

	instrument, ok := model.NormalizeSymbol(event.Symbol)
	if !ok {
		return feed.Frame{}, errors.Errorf("binance: unknown symbol %q", event.Symbol)
	}
	price, err := strconv.ParseFloat(event.Price, 64)
	if err != nil {
		return feed.Frame{}, errors.Wrap(err, "binance: parse price")
	}
	size, err := strconv.ParseFloat(event.Quantity, 64)
	if err != nil {
		return feed.Frame{}, errors.Wrap(err, "binance: parse quantity")
	}

	// m=true means the buyer is the maker, i.e. the aggressor sold.
	side := enum.SideBuy
	if event.BuyerIsMM {
		side = enum.SideSell
	}
	return feed.Frame{Kind: feed.FrameTrade, Tick: model.NormalizedTick{
		Exchange:     enum.ExchangeBinance,
		InstrumentID: instrument,
		Price:        price,
		Size:         size,
		Side:         side,
		TradeID:      strconv.FormatInt(event.TradeID, 10),
		At:           time.UnixMilli(event.TradeTime),
	}}, nil
}
