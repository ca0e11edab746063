package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"feedcore/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePromotionReader struct {
	records   []store.PromotionRecord
	lastLimit int
}

func (f *fakePromotionReader) Recent(_ context.Context, limit int) ([]store.PromotionRecord, error) {
	f.lastLimit = limit
	return f.records, nil
}

func TestPromotionsEndpoint(t *testing.T) {
	reader := &fakePromotionReader{records: []store.PromotionRecord{
		{ID: 2, Counterparty: "0xabc", TotalNotional: 250_000, TradeCount: 4, PromotedAt: time.Unix(1714000100, 0)},
		{ID: 1, Counterparty: "0xdef", TotalNotional: 120_000, TradeCount: 2, PromotedAt: time.Unix(1714000000, 0)},
	}}
	gw := &gateway{promotions: reader}
	server := httptest.NewServer(gw.routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/promotions?limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, reader.lastLimit)

	var body struct {
		Promotions []store.PromotionRecord `json:"promotions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Promotions, 2)
	assert.Equal(t, "0xabc", body.Promotions[0].Counterparty)
}

func TestPromotionsEndpointRejectsBadLimit(t *testing.T) {
	gw := &gateway{promotions: &fakePromotionReader{}}
	server := httptest.NewServer(gw.routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/promotions?limit=abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPromotionsEndpointWithoutStore(t *testing.T) {
	gw := &gateway{}
	server := httptest.NewServer(gw.routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/promotions")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
