package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"sync"
	"time"

	"feedcore/internal/feed"
	"feedcore/internal/feed/binance"
	"feedcore/internal/feed/polygon"
	"feedcore/internal/model"
	"feedcore/internal/model/enum"
	"feedcore/internal/ops"
	"feedcore/internal/quote"
	"feedcore/internal/sink"
	"feedcore/internal/store"
	"feedcore/internal/stream"
	"feedcore/internal/whale"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

// whaleTradeSubject carries inbound counterparty trades for aggregation.
const whaleTradeSubject = "marketdata.polymarket.trades"

func main() {
	configPath := flag.String("config", "", "Path to YAML config")
	flag.Parse()

	cfg, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.PyroscopeServerAddress != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "feedcore.feedd",
			ServerAddress:   cfg.PyroscopeServerAddress,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() { _ = profiler.Stop() }()
	}

	backoff := feed.Backoff{Min: cfg.BackoffMin, Max: cfg.BackoffMax}
	binanceConn, err := feed.NewConnector(feed.Config{
		Name:    "binance",
		URL:     cfg.BinanceURL,
		Codec:   binance.New(),
		Backoff: backoff,
	})
	if err != nil {
		log.Fatalf("binance connector init failed: %v", err)
	}
	polygonConn, err := feed.NewConnector(feed.Config{
		Name:       "polygon",
		URL:        cfg.PolygonURL,
		Credential: cfg.PolygonAPIKey,
		Codec:      polygon.New(),
		Backoff:    backoff,
	})
	if err != nil {
		log.Fatalf("polygon connector init failed: %v", err)
	}

	registry := stream.NewRegistry(cfg.RingSize)
	registry.RegisterUpstream(enum.ExchangeBinance, binanceConn)
	registry.RegisterUpstream(enum.ExchangePolygon, polygonConn)

	cache := quote.NewCache(cfg.QuoteTTL)
	cache.SetFallback(fallbackSnapshots(cfg.QuoteFallbacks))

	tracker := whale.NewTracker(whale.Config{
		MaxWhales:    cfg.WhaleMax,
		Threshold:    cfg.WhaleThreshold,
		SampleCap:    cfg.WhaleSampleCap,
		ExplorerBase: cfg.WhaleExplorerBase,
	})
	defer tracker.Close()

	var publisher *sink.Publisher
	if cfg.NATSURL != "" {
		publisher, err = sink.NewPublisher(sink.Config{URL: cfg.NATSURL, ClientName: "feedd"})
		if err != nil {
			log.Fatalf("nats connect failed: %v", err)
		}
		defer publisher.Close()

		sub, err := publisher.SubscribeJSON(whaleTradeSubject, func(data []byte) {
			var tx model.WhaleTrade
			if err := json.Unmarshal(data, &tx); err != nil {
				logs.Warnf("feedd: bad whale trade payload: %v", err)
				return
			}
			tracker.Record(tx)
		})
		if err != nil {
			log.Fatalf("whale trade subscription failed: %v", err)
		}
		defer func() { _ = sub.Unsubscribe() }()
	}

	var promotions *store.PromotionStore
	if cfg.PostgresURL != "" {
		promotions, err = store.Open(store.Option{ConnString: cfg.PostgresURL})
		if err != nil {
			log.Fatalf("promotion store open failed: %v", err)
		}
		defer func() { _ = promotions.Close() }()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tracker.Promotions().Run(ctx, func(p whale.Promotion) {
			logs.Infof("feedd: whale promoted: %s (%.2f notional)", p.Counterparty, p.TotalNotional)
			if promotions == nil {
				return
			}
			if err := promotions.Record(ctx, p); err != nil {
				logs.Errorf("feedd: persist promotion: %v", err)
			}
		})
	}()

	if err := binanceConn.Start(ctx); err != nil {
		log.Fatalf("binance connector start failed: %v", err)
	}
	if err := polygonConn.Start(ctx); err != nil {
		if errors.Is(err, feed.ErrMissingCredential) {
			logs.Warnf("feedd: polygon feed disabled, no api key configured")
		} else {
			log.Fatalf("polygon connector start failed: %v", err)
		}
	}

	wg.Add(2)
	go bridge(&wg, binanceConn, registry, cache, publisher)
	go bridge(&wg, polygonConn, registry, cache, publisher)

	gw := &gateway{
		registry: registry,
		cache:    cache,
		whales:   tracker,
		queueCap: cfg.ConsumerQueue,
	}
	if promotions != nil {
		gw.promotions = promotions
	}
	server := &http.Server{Addr: cfg.GatewayAddr, Handler: gw.routes()}
	go func() {
		logs.Infof("feedd: gateway listening on %s", cfg.GatewayAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logs.Errorf("feedd: gateway: %v", err)
		}
	}()

	<-sys.Shutdown()
	logs.Info("feedd: shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logs.Warnf("feedd: gateway shutdown: %v", err)
	}

	binanceConn.Stop()
	polygonConn.Stop()
	cancel()
	wg.Wait()
}

// bridge fans connector events into the registry, the quote cache and
// the optional NATS republisher.
func bridge(wg *sync.WaitGroup, conn *feed.Connector, registry *stream.Registry, cache *quote.Cache, publisher *sink.Publisher) {
	defer wg.Done()
	for event := range conn.Events() {
		switch event.Kind {
		case feed.EventTick:
			topic := model.Topic{
				Exchange:     event.Tick.Exchange,
				Channel:      enum.ChannelTrades,
				InstrumentID: event.Tick.InstrumentID,
			}
			if err := registry.Publish(topic, event.Tick); err != nil {
				logs.Warnf("feedd: publish %s: %v", topic.Key(), err)
			}
			republish(publisher, topic, event.Tick)
		case feed.EventQuote:
			cache.Upsert(event.Quote)
			topic := model.Topic{
				Exchange:     event.Quote.Exchange,
				Channel:      enum.ChannelTicker,
				InstrumentID: event.Quote.InstrumentID,
			}
			if err := registry.Publish(topic, event.Quote); err != nil {
				logs.Warnf("feedd: publish %s: %v", topic.Key(), err)
			}
			republish(publisher, topic, event.Quote)
		case feed.EventDisconnected:
			logs.Warnf("feedd: feed disconnected: %s", event.Reason)
		case feed.EventError:
			logs.Warnf("feedd: feed error: %v", event.Err)
		}
	}
}

func republish(publisher *sink.Publisher, topic model.Topic, payload any) {
	if publisher == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := publisher.Publish(topic.Key(), data); err != nil {
		logs.Warnf("feedd: nats publish %s: %v", topic.Key(), err)
	}
}

func fallbackSnapshots(fallbacks []ops.FallbackQuote) []model.QuoteSnapshot {
	snapshots := make([]model.QuoteSnapshot, 0, len(fallbacks))
	for _, fb := range fallbacks {
		instrument, ok := model.NormalizeSymbol(fb.Symbol)
		if !ok {
			logs.Warnf("feedd: skipping fallback quote with bad symbol %q", fb.Symbol)
			continue
		}
		snapshots = append(snapshots, model.NewQuoteSnapshot(
			enum.ExchangePolygon, instrument, fb.Bid, fb.Ask, 0, time.Now(),
		))
	}
	return snapshots
}
