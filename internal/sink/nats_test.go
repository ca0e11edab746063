package sink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubjectMapping(t *testing.T) {
	p := &Publisher{cfg: Config{}.withDefaults()}
	assert.Equal(t, "marketdata.binance.trades.BTC-USDT", p.Subject("binance:trades:BTC-USDT"))

	p = &Publisher{cfg: Config{SubjectPrefix: "md"}.withDefaults()}
	assert.Equal(t, "md.polygon.ticker.BTC-USD", p.Subject("polygon:ticker:BTC-USD"))
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.NotEmpty(t, cfg.URL)
	assert.Equal(t, "feedcore", cfg.ClientName)
	assert.Equal(t, -1, cfg.MaxReconnects)
	assert.Positive(t, cfg.ConnectWait)
	assert.Positive(t, cfg.ReconnectWait)
}
