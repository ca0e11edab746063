package feed

import "feedcore/internal/model"

// FrameKind tags decoded upstream frames. Everything a codec does not
// recognize decodes to FrameUnknown and is silently ignored so newer
// upstream message types never break the connector.
type FrameKind uint8

const (
	FrameUnknown FrameKind = iota
	FrameStatus
	FrameTrade
	FrameQuote
)

// Status is the payload of a FrameStatus frame: connection acks, auth
// results and upstream-reported errors. Status frames are consumed by the
// connector itself and never forwarded downstream.
type Status struct {
	AuthOK     bool
	AuthFailed bool
	Message    string
}

// Frame is the tagged decode result for one raw upstream message.
type Frame struct {
	Kind   FrameKind
	Status Status
	Tick   model.NormalizedTick
	Quote  model.QuoteSnapshot
}

// Codec translates between one feed's wire protocol and normalized frames.
// Implementations live under internal/feed/<exchange>.
type Codec interface {
	// RequiresAuth reports whether the feed expects an auth handshake
	// before data flows.
	RequiresAuth() bool

	// AuthFrame builds the handshake payload sent on socket open.
	AuthFrame(credential string) ([]byte, error)

	// SubscribeFrame builds the payload registering interest in topics.
	SubscribeFrame(topics []model.Topic) ([]byte, error)

	// UnsubscribeFrame builds the payload dropping interest in topics.
	UnsubscribeFrame(topics []model.Topic) ([]byte, error)

	// Decode parses one raw message. A returned error means the message
	// was malformed; the connection is kept open either way.
	Decode(raw []byte) (Frame, error)
}
