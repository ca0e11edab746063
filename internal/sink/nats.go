// Package sink republishes routed market data onto NATS subjects.
package sink

import (
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const DefaultSubjectPrefix = "marketdata"

type Config struct {
	URL           string
	ClientName    string
	SubjectPrefix string
	ConnectWait   time.Duration
	ReconnectWait time.Duration
	MaxReconnects int
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.ClientName == "" {
		c.ClientName = "feedcore"
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = DefaultSubjectPrefix
	}
	if c.ConnectWait <= 0 {
		c.ConnectWait = 5 * time.Second
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = -1
	}
	return c
}

// Publisher is a fire-and-forget NATS republisher. The client library
// handles reconnects, publishes during an outage are dropped.
type Publisher struct {
	cfg Config
	nc  *nats.Conn
}

func NewPublisher(cfg Config) (*Publisher, error) {
	cfg = cfg.withDefaults()
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.ClientName),
		nats.Timeout(cfg.ConnectWait),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logs.Warnf("sink: nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logs.Infof("sink: nats reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "connect nats")
	}
	return &Publisher{cfg: cfg, nc: nc}, nil
}

// Publish sends payload on the subject derived from the stream key,
// e.g. "binance:trades:BTC-USDT" -> "marketdata.binance.trades.BTC-USDT".
func (p *Publisher) Publish(streamKey string, payload []byte) error {
	if !p.nc.IsConnected() {
		return errors.New("sink: nats not connected")
	}
	return p.nc.Publish(p.Subject(streamKey), payload)
}

func (p *Publisher) Subject(streamKey string) string {
	return p.cfg.SubjectPrefix + "." + strings.ReplaceAll(streamKey, ":", ".")
}

// SubscribeJSON delivers raw message payloads from subject to handler.
// The caller owns the returned subscription.
func (p *Publisher) SubscribeJSON(subject string, handler func([]byte)) (*nats.Subscription, error) {
	sub, err := p.nc.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, errors.Wrap(err, "subscribe "+subject)
	}
	return sub, nil
}

func (p *Publisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}
