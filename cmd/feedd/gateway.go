package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"feedcore/internal/quote"
	"feedcore/internal/store"
	"feedcore/internal/stream"
	"feedcore/internal/whale"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/logs"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// promotionReader serves persisted promotion history.
// *store.PromotionStore satisfies it; nil means no store is configured.
type promotionReader interface {
	Recent(ctx context.Context, limit int) ([]store.PromotionRecord, error)
}

// gateway exposes the websocket stream and the read endpoints.
type gateway struct {
	registry   *stream.Registry
	cache      *quote.Cache
	whales     *whale.Tracker
	promotions promotionReader
	queueCap   int
}

func (g *gateway) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/stream", g.handleStream)
	mux.HandleFunc("/quotes", g.handleQuotes)
	mux.HandleFunc("/whales", g.handleWhales)
	mux.HandleFunc("/promotions", g.handlePromotions)
	return mux
}

func (g *gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logs.Warnf("gateway: upgrade: %v", err)
		return
	}

	consumer := stream.NewConsumer(g.queueCap, stream.OverflowDropOldest)
	defer func() {
		g.registry.DropConsumer(consumer)
		_ = conn.Close()
	}()

	// gorilla allows one concurrent writer; the pump goroutine and the
	// command loop share the connection.
	var writeMu sync.Mutex
	writeJSON := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	go func() {
		for {
			env, ok := consumer.Next()
			if !ok {
				return
			}
			if err := writeJSON(env); err != nil {
				_ = conn.Close()
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		cmd, topic, err := stream.ParseCommand(raw)
		if err != nil {
			_ = writeJSON(stream.NewErrorMessage(err.Error()))
			continue
		}
		switch cmd.Type {
		case stream.CommandSubscribe:
			if err := g.registry.Subscribe(consumer, topic); err != nil {
				_ = writeJSON(stream.NewErrorMessage(err.Error()))
				continue
			}
			// catch the new subscriber up on the buffered history
			for _, env := range g.registry.History(topic) {
				if err := writeJSON(env); err != nil {
					return
				}
			}
		case stream.CommandUnsubscribe:
			if err := g.registry.Unsubscribe(consumer, topic); err != nil {
				_ = writeJSON(stream.NewErrorMessage(err.Error()))
			}
		}
	}
}

func (g *gateway) handleQuotes(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get("symbols"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	writeData(w, map[string]any{"quotes": g.cache.Snapshots(ids...)})
}

func (g *gateway) handleWhales(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "limit must be an integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	var summaries []whale.Summary
	if r.URL.Query().Get("promoted") == "true" {
		summaries = g.whales.AboveThreshold(limit)
	} else {
		summaries = g.whales.TopByNotional(limit)
	}
	writeData(w, map[string]any{"whales": summaries})
}

func (g *gateway) handlePromotions(w http.ResponseWriter, r *http.Request) {
	if g.promotions == nil {
		http.Error(w, "promotion history not configured", http.StatusNotFound)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "limit must be an integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	records, err := g.promotions.Recent(r.Context(), limit)
	if err != nil {
		logs.Errorf("gateway: promotion history: %v", err)
		http.Error(w, "promotion history unavailable", http.StatusInternalServerError)
		return
	}
	writeData(w, map[string]any{"promotions": records})
}

func writeData(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logs.Warnf("gateway: encode response: %v", err)
	}
}
