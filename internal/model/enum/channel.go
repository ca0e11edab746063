package enum

type Channel uint8

const (
	_channel_beg Channel = iota
	ChannelTrades
	ChannelOrderbook
	ChannelTicker
	_channel_end
)

func (c Channel) IsAvailable() bool {
	return c > _channel_beg && c < _channel_end
}

func (c Channel) String() string {
	switch c {
	case ChannelTrades:
		return "trades"
	case ChannelOrderbook:
		return "orderbook"
	case ChannelTicker:
		return "ticker"
	default:
		return "unknown"
	}
}

// ParseChannel maps a wire name to a channel id.
func ParseChannel(s string) (Channel, bool) {
	switch s {
	case "trades":
		return ChannelTrades, true
	case "orderbook":
		return ChannelOrderbook, true
	case "ticker":
		return ChannelTicker, true
	default:
		return 0, false
	}
}
