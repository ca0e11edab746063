package feed

import "feedcore/internal/model"

// EventKind discriminates connector events.
type EventKind uint8

const (
	EventConnected EventKind = iota + 1
	EventDisconnected
	EventTick
	EventQuote
	EventError
)

// Event is the unit emitted on a connector's event queue. The connector is
// the only publisher; consumers only observe.
type Event struct {
	Kind   EventKind
	Tick   model.NormalizedTick
	Quote  model.QuoteSnapshot
	Err    error
	Reason string
}
