package enum

import "strings"

type Exchange uint8

const (
	_exchange_beg Exchange = iota
	ExchangeBinance
	ExchangePolygon
	ExchangePolymarket
	_exchange_end
)

func (e Exchange) IsAvailable() bool {
	return e > _exchange_beg && e < _exchange_end
}

func (e Exchange) String() string {
	switch e {
	case ExchangeBinance:
		return "binance"
	case ExchangePolygon:
		return "polygon"
	case ExchangePolymarket:
		return "polymarket"
	default:
		return "unknown"
	}
}

func (e Exchange) MarshalJSON() ([]byte, error) {
	return []byte(`"` + e.String() + `"`), nil
}

func (e *Exchange) UnmarshalJSON(data []byte) error {
	parsed, ok := ParseExchange(strings.Trim(string(data), `"`))
	if !ok {
		*e = 0
		return nil
	}
	*e = parsed
	return nil
}

// ParseExchange maps a wire name to an exchange id.
func ParseExchange(s string) (Exchange, bool) {
	switch s {
	case "binance":
		return ExchangeBinance, true
	case "polygon":
		return ExchangePolygon, true
	case "polymarket":
		return ExchangePolymarket, true
	default:
		return 0, false
	}
}
