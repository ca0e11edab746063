// Package polygon speaks the Polygon.io crypto websocket dialect,
// including its key-based auth handshake.
package polygon

import (
	"encoding/json"
	"strings"
	"time"

	"feedcore/internal/feed"
	"feedcore/internal/model"
	"feedcore/internal/model/enum"

	"github.com/yanun0323/errors"
)

const DefaultURL = "wss://socket.polygon.io/crypto"

// Codec encodes action frames and decodes the array-wrapped event stream.
type Codec struct{}

func New() Codec { return Codec{} }

func (Codec) RequiresAuth() bool { return true }

type action struct {
	Action string `json:"action"`
	Params string `json:"params"`
}

func (Codec) AuthFrame(credential string) ([]byte, error) {
	if credential == "" {
		return nil, errors.New("polygon: empty api key")
	}
	return json.Marshal(action{Action: "auth", Params: credential})
}

func (Codec) SubscribeFrame(topics []model.Topic) ([]byte, error) {
	params, err := streamParams(topics)
	if err != nil {
		return nil, err
	}
	return json.Marshal(action{Action: "subscribe", Params: params})
}

func (Codec) UnsubscribeFrame(topics []model.Topic) ([]byte, error) {
	params, err := streamParams(topics)
	if err != nil {
		return nil, err
	}
	return json.Marshal(action{Action: "unsubscribe", Params: params})
}

// streamParams maps canonical topics onto the comma-joined "XA.PAIR" form.
func streamParams(topics []model.Topic) (string, error) {
	names := make([]string, 0, len(topics))
	for _, topic := range topics {
		if topic.Channel != enum.ChannelTicker {
			return "", errors.Errorf("polygon: unsupported channel %q", topic.Channel.String())
		}
		names = append(names, "XA."+topic.InstrumentID)
	}
	return strings.Join(names, ","), nil
}

type message struct {
	Event   string  `json:"ev"`
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Pair    string  `json:"pair"`
	Bid     float64 `json:"bp"`
	Ask     float64 `json:"ap"`
	Close   float64 `json:"c"`
	At      int64   `json:"t"`
}

func (Codec) Decode(raw []byte) (feed.Frame, error) {
	// every server message arrives as a JSON array, even single events
	var batch []message
	if err := json.Unmarshal(raw, &batch); err != nil {
		return feed.Frame{}, errors.Wrap(err, "polygon: decode")
	}
	if len(batch) == 0 {
		return feed.Frame{Kind: feed.FrameUnknown}, nil
	}

	first := batch[0]
	switch first.Event {
	case "status":
		return statusFrame(first), nil
	case "XA":
		instrument, ok := model.NormalizeSymbol(first.Pair)
		if !ok {
			return feed.Frame{}, errors.Errorf("polygon: unknown pair %q", first.Pair)
		}
		return feed.Frame{Kind: feed.FrameQuote, Quote: model.NewQuoteSnapshot(
			enum.ExchangePolygon, instrument, first.Bid, first.Ask, first.Close, time.UnixMilli(first.At),
		)}, nil
	default:
		return feed.Frame{Kind: feed.FrameUnknown}, nil
	}
}

func statusFrame(msg message) feed.Frame {
	status := feed.Status{Message: msg.Message}
	switch msg.Status {
	case "auth_success":
		status.AuthOK = true
	case "auth_failed":
		status.AuthFailed = true
	}
	return feed.Frame{Kind: feed.FrameStatus, Status: status}
}
