// Package ops loads and validates runtime configuration. Values resolve
// in three layers: built-in defaults, then an optional YAML file, then
// environment variables.
package ops

import (
	"os"
	"strconv"
	"time"

	"github.com/yanun0323/errors"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors the YAML config layout. Zero values mean "keep the
// default".
type FileConfig struct {
	Gateway struct {
		Addr string `yaml:"addr"`
	} `yaml:"gateway"`
	Stream struct {
		RingSize      int `yaml:"ringSize"`
		ConsumerQueue int `yaml:"consumerQueue"`
	} `yaml:"stream"`
	Quote struct {
		TTL       string          `yaml:"ttl"`
		Fallbacks []FallbackQuote `yaml:"fallbacks"`
	} `yaml:"quote"`
	Whale struct {
		MaxWhales    int     `yaml:"maxWhales"`
		Threshold    float64 `yaml:"threshold"`
		SampleCap    int     `yaml:"sampleCap"`
		ExplorerBase string  `yaml:"explorerBase"`
	} `yaml:"whale"`
	Feeds struct {
		BinanceURL    string `yaml:"binanceUrl"`
		PolygonURL    string `yaml:"polygonUrl"`
		PolygonAPIKey string `yaml:"polygonApiKey"`
		BackoffMin    string `yaml:"backoffMin"`
		BackoffMax    string `yaml:"backoffMax"`
	} `yaml:"feeds"`
	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`
	Postgres struct {
		ConnString string `yaml:"connString"`
	} `yaml:"postgres"`
	Pyroscope struct {
		ServerAddress string `yaml:"serverAddress"`
	} `yaml:"pyroscope"`
}

// FallbackQuote is a static quote served when the cache has no live
// match.
type FallbackQuote struct {
	Symbol string  `yaml:"symbol"`
	Bid    float64 `yaml:"bid"`
	Ask    float64 `yaml:"ask"`
}

// Config is the resolved configuration ready for use.
type Config struct {
	GatewayAddr   string
	RingSize      int
	ConsumerQueue int

	QuoteTTL       time.Duration
	QuoteFallbacks []FallbackQuote

	WhaleMax          int
	WhaleThreshold    float64
	WhaleSampleCap    int
	WhaleExplorerBase string

	BinanceURL    string
	PolygonURL    string
	PolygonAPIKey string
	BackoffMin    time.Duration
	BackoffMax    time.Duration

	NATSURL     string
	PostgresURL string

	PyroscopeServerAddress string
}

// Load resolves configuration. path may be empty, then only defaults
// and environment apply.
func Load(path string) (Config, error) {
	var file FileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "read config file")
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Config{}, errors.Wrap(err, "parse config file")
		}
	}

	cfg := Config{
		GatewayAddr:       ":8080",
		RingSize:          200,
		ConsumerQueue:     256,
		QuoteTTL:          60 * time.Second,
		WhaleMax:          50,
		WhaleThreshold:    100_000,
		WhaleSampleCap:    20,
		WhaleExplorerBase: "https://polygonscan.com/address",
		BinanceURL:        "wss://stream.binance.com:9443/ws",
		PolygonURL:        "wss://socket.polygon.io/crypto",
		BackoffMin:        time.Second,
		BackoffMax:        30 * time.Second,
	}

	applyString(&cfg.GatewayAddr, file.Gateway.Addr)
	applyInt(&cfg.RingSize, file.Stream.RingSize)
	applyInt(&cfg.ConsumerQueue, file.Stream.ConsumerQueue)
	if err := applyDuration(&cfg.QuoteTTL, "quote.ttl", file.Quote.TTL); err != nil {
		return Config{}, err
	}
	cfg.QuoteFallbacks = file.Quote.Fallbacks
	applyInt(&cfg.WhaleMax, file.Whale.MaxWhales)
	applyFloat(&cfg.WhaleThreshold, file.Whale.Threshold)
	applyInt(&cfg.WhaleSampleCap, file.Whale.SampleCap)
	applyString(&cfg.WhaleExplorerBase, file.Whale.ExplorerBase)
	applyString(&cfg.BinanceURL, file.Feeds.BinanceURL)
	applyString(&cfg.PolygonURL, file.Feeds.PolygonURL)
	applyString(&cfg.PolygonAPIKey, file.Feeds.PolygonAPIKey)
	if err := applyDuration(&cfg.BackoffMin, "feeds.backoffMin", file.Feeds.BackoffMin); err != nil {
		return Config{}, err
	}
	if err := applyDuration(&cfg.BackoffMax, "feeds.backoffMax", file.Feeds.BackoffMax); err != nil {
		return Config{}, err
	}
	applyString(&cfg.NATSURL, file.NATS.URL)
	applyString(&cfg.PostgresURL, file.Postgres.ConnString)
	applyString(&cfg.PyroscopeServerAddress, file.Pyroscope.ServerAddress)

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	applyString(&c.GatewayAddr, os.Getenv("FEEDCORE_GATEWAY_ADDR"))
	applyString(&c.BinanceURL, os.Getenv("FEEDCORE_BINANCE_URL"))
	applyString(&c.PolygonURL, os.Getenv("FEEDCORE_POLYGON_URL"))
	applyString(&c.PolygonAPIKey, os.Getenv("FEEDCORE_POLYGON_API_KEY"))
	applyString(&c.WhaleExplorerBase, os.Getenv("FEEDCORE_WHALE_EXPLORER_BASE"))
	applyString(&c.NATSURL, os.Getenv("FEEDCORE_NATS_URL"))
	applyString(&c.PostgresURL, os.Getenv("FEEDCORE_PG_CONN"))
	applyString(&c.PyroscopeServerAddress, os.Getenv("FEEDCORE_PYROSCOPE_URL"))

	for _, bind := range []struct {
		key string
		dst *int
	}{
		{"FEEDCORE_RING_SIZE", &c.RingSize},
		{"FEEDCORE_CONSUMER_QUEUE", &c.ConsumerQueue},
		{"FEEDCORE_WHALE_MAX", &c.WhaleMax},
		{"FEEDCORE_WHALE_SAMPLE_CAP", &c.WhaleSampleCap},
	} {
		if raw := os.Getenv(bind.key); raw != "" {
			value, err := strconv.Atoi(raw)
			if err != nil {
				return errors.Errorf("%s: %v", bind.key, err)
			}
			*bind.dst = value
		}
	}

	if raw := os.Getenv("FEEDCORE_WHALE_THRESHOLD"); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return errors.Errorf("FEEDCORE_WHALE_THRESHOLD: %v", err)
		}
		c.WhaleThreshold = value
	}

	for _, bind := range []struct {
		key string
		dst *time.Duration
	}{
		{"FEEDCORE_QUOTE_TTL", &c.QuoteTTL},
		{"FEEDCORE_BACKOFF_MIN", &c.BackoffMin},
		{"FEEDCORE_BACKOFF_MAX", &c.BackoffMax},
	} {
		if raw := os.Getenv(bind.key); raw != "" {
			value, err := time.ParseDuration(raw)
			if err != nil {
				return errors.Errorf("%s: %v", bind.key, err)
			}
			*bind.dst = value
		}
	}
	return nil
}

func (c Config) validate() error {
	if c.RingSize <= 0 {
		return errors.New("stream ring size must be > 0")
	}
	if c.ConsumerQueue <= 0 {
		return errors.New("consumer queue size must be > 0")
	}
	if c.QuoteTTL <= 0 {
		return errors.New("quote ttl must be > 0")
	}
	if c.WhaleMax <= 0 {
		return errors.New("whale max must be > 0")
	}
	if c.WhaleThreshold <= 0 {
		return errors.New("whale threshold must be > 0")
	}
	if c.BackoffMin <= 0 || c.BackoffMax < c.BackoffMin {
		return errors.New("backoff range is invalid")
	}
	return nil
}

func applyString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func applyInt(dst *int, value int) {
	if value != 0 {
		*dst = value
	}
}

func applyFloat(dst *float64, value float64) {
	if value != 0 {
		*dst = value
	}
}

func applyDuration(dst *time.Duration, field, raw string) error {
	if raw == "" {
		return nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return errors.Errorf("%s: %v", field, err)
	}
	*dst = value
	return nil
}
