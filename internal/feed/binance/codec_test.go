package binance

import (
	"encoding/json"
	"testing"
	"time"

	"feedcore/internal/feed"
	"feedcore/internal/model"
	"feedcore/internal/model/enum"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func topic(instrument string) model.Topic {
	return model.Topic{Exchange: enum.ExchangeBinance, Channel: enum.ChannelTrades, InstrumentID: instrument}
}

func TestSubscribeFrame(t *testing.T) {
	codec := New()
	payload, err := codec.SubscribeFrame([]model.Topic{topic("BTC-USDT"), topic("ETH-USDT")})
	require.NoError(t, err)

	var req struct {
		Method string   `json:"method"`
		Params []string `json:"params"`
		ID     int64    `json:"id"`
	}
	require.NoError(t, json.Unmarshal(payload, &req))
	assert.Equal(t, "SUBSCRIBE", req.Method)
	assert.Equal(t, []string{"btcusdt@trade", "ethusdt@trade"}, req.Params)
	assert.Equal(t, int64(1), req.ID)

	payload, err = codec.UnsubscribeFrame([]model.Topic{topic("BTC-USDT")})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(payload, &req))
	assert.Equal(t, "UNSUBSCRIBE", req.Method)
	assert.Equal(t, int64(2), req.ID, "request ids are monotonic")
}

func TestSubscribeFrameRejectsUnsupportedChannel(t *testing.T) {
	codec := New()
	_, err := codec.SubscribeFrame([]model.Topic{{
		Exchange: enum.ExchangeBinance, Channel: enum.ChannelOrderbook, InstrumentID: "BTC-USDT",
	}})
	assert.Error(t, err)
}

func TestStreamNameRejectsNonCanonicalInstrument(t *testing.T) {
	name, err := StreamName(topic("BTC-USDT"))
	require.NoError(t, err)
	assert.Equal(t, "btcusdt@trade", name)

	for _, bad := range []string{"BTCUSDT", "-USDT", "A-B-C"} {
		_, err := StreamName(topic(bad))
		assert.Error(t, err, "instrument %q", bad)
	}
}

func TestDecodeTrade(t *testing.T) {
	codec := New()
	raw := []byte(`{"e":"trade","E":1714000000123,"s":"BTCUSDT","t":987654,"p":"64250.10","q":"0.0040","T":1714000000120,"m":false}`)

	frame, err := codec.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, feed.FrameTrade, frame.Kind)

	tick := frame.Tick
	assert.Equal(t, enum.ExchangeBinance, tick.Exchange)
	assert.Equal(t, "BTC-USDT", tick.InstrumentID)
	assert.Equal(t, 64250.10, tick.Price)
	assert.Equal(t, 0.0040, tick.Size)
	assert.Equal(t, enum.SideBuy, tick.Side)
	assert.Equal(t, "987654", tick.TradeID)
	assert.Equal(t, time.UnixMilli(1714000000120), tick.At)
}

func TestDecodeTradeMakerBuyerIsSell(t *testing.T) {
	codec := New()
	raw := []byte(`{"e":"trade","s":"ETHUSDT","t":1,"p":"3000","q":"1.5","T":1714000000120,"m":true}`)

	frame, err := codec.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, enum.SideSell, frame.Tick.Side)
}

func TestDecodeAckAndUnknown(t *testing.T) {
	codec := New()

	frame, err := codec.Decode([]byte(`{"result":null,"id":3}`))
	require.NoError(t, err)
	assert.Equal(t, feed.FrameStatus, frame.Kind)

	frame, err = codec.Decode([]byte(`{"e":"kline","s":"BTCUSDT"}`))
	require.NoError(t, err)
	assert.Equal(t, feed.FrameUnknown, frame.Kind)
}

func TestDecodeMalformed(t *testing.T) {
	codec := New()

	_, err := codec.Decode([]byte(`not json`))
	assert.Error(t, err)

	_, err = codec.Decode([]byte(`{"e":"trade","s":"BTCUSDT","p":"oops","q":"1","T":1,"t":1}`))
	assert.Error(t, err)
}
