package polygon

import (
	"testing"
	"time"

	"feedcore/internal/feed"
	"feedcore/internal/model"
	"feedcore/internal/model/enum"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func topic(instrument string) model.Topic {
	return model.Topic{Exchange: enum.ExchangePolygon, Channel: enum.ChannelTicker, InstrumentID: instrument}
}

func TestActionFrames(t *testing.T) {
	codec := New()
	require.True(t, codec.RequiresAuth())

	payload, err := codec.AuthFrame("pk_test_123")
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"auth","params":"pk_test_123"}`, string(payload))

	_, err = codec.AuthFrame("")
	assert.Error(t, err)

	payload, err = codec.SubscribeFrame([]model.Topic{topic("BTC-USD"), topic("ETH-USD")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"subscribe","params":"XA.BTC-USD,XA.ETH-USD"}`, string(payload))

	payload, err = codec.UnsubscribeFrame([]model.Topic{topic("BTC-USD")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"unsubscribe","params":"XA.BTC-USD"}`, string(payload))
}

func TestSubscribeFrameRejectsUnsupportedChannel(t *testing.T) {
	_, err := New().SubscribeFrame([]model.Topic{{
		Exchange: enum.ExchangePolygon, Channel: enum.ChannelTrades, InstrumentID: "BTC-USD",
	}})
	assert.Error(t, err)
}

func TestDecodeStatus(t *testing.T) {
	codec := New()

	frame, err := codec.Decode([]byte(`[{"ev":"status","status":"auth_success","message":"authenticated"}]`))
	require.NoError(t, err)
	require.Equal(t, feed.FrameStatus, frame.Kind)
	assert.True(t, frame.Status.AuthOK)
	assert.False(t, frame.Status.AuthFailed)

	frame, err = codec.Decode([]byte(`[{"ev":"status","status":"auth_failed","message":"invalid key"}]`))
	require.NoError(t, err)
	assert.True(t, frame.Status.AuthFailed)
	assert.Equal(t, "invalid key", frame.Status.Message)

	// connection greetings carry no auth verdict
	frame, err = codec.Decode([]byte(`[{"ev":"status","status":"connected","message":"Connected Successfully"}]`))
	require.NoError(t, err)
	require.Equal(t, feed.FrameStatus, frame.Kind)
	assert.False(t, frame.Status.AuthOK)
	assert.False(t, frame.Status.AuthFailed)
}

func TestDecodeQuote(t *testing.T) {
	codec := New()
	raw := []byte(`[{"ev":"XA","pair":"X:BTC-USD","bp":64000,"ap":64010,"c":64004,"t":1714000000500}]`)

	frame, err := codec.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, feed.FrameQuote, frame.Kind)

	quote := frame.Quote
	assert.Equal(t, enum.ExchangePolygon, quote.Exchange)
	assert.Equal(t, "BTC-USD", quote.InstrumentID)
	assert.Equal(t, 64000.0, quote.Bid)
	assert.Equal(t, 64010.0, quote.Ask)
	assert.Equal(t, 10.0, quote.Spread)
	assert.Equal(t, 64005.0, quote.Mid)
	assert.Equal(t, 64004.0, quote.LastPrice)
	assert.Equal(t, time.UnixMilli(1714000000500), quote.ObservedAt)
}

func TestDecodeUnknownAndMalformed(t *testing.T) {
	codec := New()

	frame, err := codec.Decode([]byte(`[{"ev":"T","pair":"BTC-USD"}]`))
	require.NoError(t, err)
	assert.Equal(t, feed.FrameUnknown, frame.Kind)

	frame, err = codec.Decode([]byte(`[]`))
	require.NoError(t, err)
	assert.Equal(t, feed.FrameUnknown, frame.Kind)

	_, err = codec.Decode([]byte(`{"ev":"status"}`))
	assert.Error(t, err, "bare objects are rejected, the stream is array framed")
}
