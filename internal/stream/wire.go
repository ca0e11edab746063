// Package stream is the subscription registry and fan-out core: it
// ref-counts topic interest, keeps a short replay ring per topic and
// routes published envelopes to bounded per-consumer queues.
package stream

import (
	"encoding/json"

	"feedcore/internal/model"
	"feedcore/internal/model/enum"

	"github.com/yanun0323/errors"
)

// Command is the client-to-server control message.
type Command struct {
	Type     string `json:"type"`
	Exchange string `json:"exchange"`
	Channel  string `json:"channel"`
	Symbol   string `json:"symbol"`
}

const (
	CommandSubscribe   = "subscribe"
	CommandUnsubscribe = "unsubscribe"
)

// Envelope is the server-to-client data message. Payload is marshaled
// once at publish time, fan-out shares the bytes.
type Envelope struct {
	Type    string          `json:"type"`
	Stream  string          `json:"stream"`
	Payload json.RawMessage `json:"payload"`
}

// ErrorMessage is the server-to-client failure message.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewErrorMessage(message string) ErrorMessage {
	return ErrorMessage{Type: "error", Message: message}
}

// ParseCommand decodes and validates a control message, resolving the
// topic it addresses.
func ParseCommand(raw []byte) (Command, model.Topic, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return Command{}, model.Topic{}, errors.Wrap(err, "decode command")
	}
	if cmd.Type != CommandSubscribe && cmd.Type != CommandUnsubscribe {
		return Command{}, model.Topic{}, errors.Errorf("unknown command type %q", cmd.Type)
	}

	exchange, ok := enum.ParseExchange(cmd.Exchange)
	if !ok {
		return Command{}, model.Topic{}, errors.Errorf("unknown exchange %q", cmd.Exchange)
	}
	channel, ok := enum.ParseChannel(cmd.Channel)
	if !ok {
		return Command{}, model.Topic{}, errors.Errorf("unknown channel %q", cmd.Channel)
	}
	instrument, ok := model.NormalizeSymbol(cmd.Symbol)
	if !ok {
		return Command{}, model.Topic{}, errors.Errorf("unrecognized symbol %q", cmd.Symbol)
	}
	return cmd, model.Topic{Exchange: exchange, Channel: channel, InstrumentID: instrument}, nil
}
