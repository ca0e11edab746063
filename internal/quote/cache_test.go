package quote

import (
	"context"
	"testing"
	"time"

	"feedcore/internal/feed"
	"feedcore/internal/model"
	"feedcore/internal/model/enum"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(id string, bid, ask float64, at time.Time) model.QuoteSnapshot {
	return model.NewQuoteSnapshot(enum.ExchangePolygon, id, bid, ask, 0, at)
}

func TestUpsertNewerObservationWins(t *testing.T) {
	cache := NewCache(time.Minute)
	base := time.Unix(1714000000, 0)
	cache.now = func() time.Time { return base }

	cache.Upsert(snapshot("BTC-USD", 64000, 64010, base))
	cache.Upsert(snapshot("BTC-USD", 63990, 64000, base.Add(-time.Second))) // stale, ignored

	got := cache.Snapshots("BTC-USD")
	require.Len(t, got, 1)
	assert.Equal(t, 64000.0, got[0].Bid)

	cache.Upsert(snapshot("BTC-USD", 64100, 64110, base.Add(time.Second)))
	got = cache.Snapshots("BTC-USD")
	require.Len(t, got, 1)
	assert.Equal(t, 64100.0, got[0].Bid)
}

func TestSnapshotsFilterAndSort(t *testing.T) {
	cache := NewCache(time.Minute)
	now := time.Now()
	cache.Upsert(snapshot("ETH-USD", 3000, 3001, now))
	cache.Upsert(snapshot("BTC-USD", 64000, 64010, now))
	cache.Upsert(snapshot("SOL-USD", 150, 151, now))

	got := cache.Snapshots()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"BTC-USD", "ETH-USD", "SOL-USD"},
		[]string{got[0].InstrumentID, got[1].InstrumentID, got[2].InstrumentID})

	got = cache.Snapshots("eth-usd", "SOL-USD")
	require.Len(t, got, 2)
	assert.Equal(t, "ETH-USD", got[0].InstrumentID)
	assert.Equal(t, "SOL-USD", got[1].InstrumentID)
}

func TestTTLBoundary(t *testing.T) {
	cache := NewCache(time.Minute)
	base := time.Unix(1714000000, 0)
	clock := base
	cache.now = func() time.Time { return clock }

	cache.Upsert(snapshot("BTC-USD", 64000, 64010, base))

	clock = base.Add(time.Minute) // exactly TTL old: still live
	assert.Equal(t, 1, cache.Len())

	clock = base.Add(time.Minute + time.Millisecond) // past TTL: gone
	assert.Equal(t, 0, cache.Len())
	assert.Empty(t, cache.Snapshots("BTC-USD"))
}

func TestFallbackOnlyWhenFilteredSetEmpty(t *testing.T) {
	cache := NewCache(time.Minute)
	fallback := []model.QuoteSnapshot{
		snapshot("ZZZ-USD", 2, 3, time.Unix(0, 0)),
		snapshot("AAA-USD", 1, 2, time.Unix(0, 0)),
	}
	cache.SetFallback(fallback)

	// nothing live at all: fallback verbatim, configured order kept
	got := cache.Snapshots()
	require.Len(t, got, 2)
	assert.Equal(t, "ZZZ-USD", got[0].InstrumentID)
	assert.Equal(t, "AAA-USD", got[1].InstrumentID)

	cache.Upsert(snapshot("BTC-USD", 64000, 64010, time.Now()))

	// live set non-empty but the filter matches nothing: still fallback
	got = cache.Snapshots("ETH-USD")
	require.Len(t, got, 2)

	// filter matches: live data, no fallback
	got = cache.Snapshots("BTC-USD")
	require.Len(t, got, 1)
	assert.Equal(t, "BTC-USD", got[0].InstrumentID)
}

func TestStartConsumesQuoteEvents(t *testing.T) {
	cache := NewCache(time.Minute)
	events := make(chan feed.Event, 4)
	cache.Start(context.Background(), events)

	events <- feed.Event{Kind: feed.EventQuote, Quote: snapshot("BTC-USD", 64000, 64010, time.Now())}
	events <- feed.Event{Kind: feed.EventConnected} // ignored

	require.Eventually(t, func() bool { return cache.Len() == 1 }, time.Second, 5*time.Millisecond)

	cache.Stop()
	events <- feed.Event{Kind: feed.EventQuote, Quote: snapshot("ETH-USD", 3000, 3001, time.Now())}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, cache.Len(), "no consumption after Stop")
}
