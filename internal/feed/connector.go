package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"feedcore/internal/model"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

var (
	ErrMissingCredential = errors.New("feed: credential required but missing")
	ErrAuthRejected      = errors.New("feed: auth rejected by upstream")
	ErrInvalidTopic      = errors.New("feed: invalid topic")
	ErrStopped           = errors.New("feed: connector stopped")
)

// State is the connector lifecycle state.
type State uint8

const (
	StateIdle State = iota
	StateConnecting
	StateAuthPending
	StateOpen
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthPending:
		return "auth_pending"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Conn is the duplex surface the connector needs from a socket.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens connections; swapped for a fake in tests.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type wsDialer struct {
	handshakeTimeout time.Duration
}

func (d wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Config defines one upstream feed connection.
type Config struct {
	Name        string
	URL         string
	Credential  string
	Codec       Codec
	Dialer      Dialer
	Backoff     Backoff
	EventBuffer int
}

// Connector owns one persistent upstream connection: handshake, normalized
// frame decoding and reconnection with exponential backoff. Normalized
// events leave through the bounded Events queue; the connector never calls
// back into its consumers.
type Connector struct {
	cfg Config

	mu      sync.Mutex
	state   State
	desired map[string]model.Topic
	conn    Conn
	cancel  context.CancelFunc
	started bool

	writeMu sync.Mutex
	stopped atomic.Bool
	drops   atomic.Uint64
	wg      sync.WaitGroup

	events chan Event
}

// NewConnector builds a connector; Start must be called before any events
// flow.
func NewConnector(cfg Config) (*Connector, error) {
	if cfg.URL == "" || cfg.Codec == nil {
		return nil, errors.New("feed: url and codec are required")
	}
	if cfg.Dialer == nil {
		cfg.Dialer = wsDialer{handshakeTimeout: 10 * time.Second}
	}
	if cfg.Backoff.Min == 0 && cfg.Backoff.Max == 0 {
		cfg.Backoff = DefaultBackoff()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 1024
	}
	return &Connector{
		cfg:     cfg,
		desired: make(map[string]model.Topic),
		events:  make(chan Event, cfg.EventBuffer),
	}, nil
}

// Events returns the connector's event queue. Closed after Stop returns.
func (c *Connector) Events() <-chan Event {
	return c.events
}

// State reports the current lifecycle state.
func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DroppedEvents reports how many events were discarded because the queue
// was full.
func (c *Connector) DroppedEvents() uint64 {
	return c.drops.Load()
}

// Start opens the connection loop. It is a no-op when already running and
// fails without side effects when a mandatory credential is missing; the
// connector then stays Idle.
func (c *Connector) Start(ctx context.Context) error {
	if c.stopped.Load() {
		return ErrStopped
	}
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	if c.cfg.Codec.RequiresAuth() && c.cfg.Credential == "" {
		c.mu.Unlock()
		return ErrMissingCredential
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.started = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(runCtx)
	return nil
}

// Stop tears the connection down and suppresses any pending reconnect.
// When it returns, no further events are delivered and the queue is closed.
func (c *Connector) Stop() {
	if !c.stopped.CompareAndSwap(false, true) {
		return
	}
	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	started := c.started
	c.state = StateStopped
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if started {
		c.wg.Wait()
	}
	close(c.events)
	logs.Infof("feed %s: stopped", c.cfg.Name)
}

// Subscribe records interest in a topic and, when the connection is open,
// registers it upstream immediately. Interest survives reconnects: every
// successful (re)connection replays the whole desired set, so callers never
// re-subscribe. Duplicate subscribes are no-ops.
func (c *Connector) Subscribe(topic model.Topic) error {
	if !topic.IsAvailable() {
		return ErrInvalidTopic
	}
	c.mu.Lock()
	key := topic.Key()
	if _, ok := c.desired[key]; ok {
		c.mu.Unlock()
		return nil
	}
	c.desired[key] = topic
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()

	if !open || conn == nil {
		return nil
	}
	payload, err := c.cfg.Codec.SubscribeFrame([]model.Topic{topic})
	if err != nil {
		return errors.Wrap(err, "build subscribe frame")
	}
	return c.write(conn, payload)
}

// Unsubscribe drops interest in a topic, sending the upstream teardown
// frame before returning when the connection is open.
func (c *Connector) Unsubscribe(topic model.Topic) error {
	if !topic.IsAvailable() {
		return ErrInvalidTopic
	}
	c.mu.Lock()
	key := topic.Key()
	if _, ok := c.desired[key]; !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.desired, key)
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()

	if !open || conn == nil {
		return nil
	}
	payload, err := c.cfg.Codec.UnsubscribeFrame([]model.Topic{topic})
	if err != nil {
		return errors.Wrap(err, "build unsubscribe frame")
	}
	return c.write(conn, payload)
}

func (c *Connector) run(ctx context.Context) {
	defer c.wg.Done()
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		c.setState(StateConnecting)
		conn, err := c.cfg.Dialer.Dial(ctx, c.cfg.URL)
		if err != nil {
			attempt++
			c.emit(Event{Kind: EventError, Err: errors.Wrap(err, "dial")})
			if !c.sleepBackoff(ctx, attempt) {
				return
			}
			continue
		}

		c.setConn(conn)
		err = c.session(ctx, conn, &attempt)
		c.setConn(nil)
		_ = conn.Close()

		reason := "session closed"
		if err != nil {
			reason = err.Error()
		}
		c.emit(Event{Kind: EventDisconnected, Reason: reason})
		if ctx.Err() != nil {
			return
		}
		attempt++
		c.setState(StateReconnecting)
		if !c.sleepBackoff(ctx, attempt) {
			return
		}
	}
}

// session drives one established connection until it fails. attempt is
// reset once the connection reaches Open so the next failure backs off
// from the minimum again.
func (c *Connector) session(ctx context.Context, conn Conn, attempt *int) error {
	if c.cfg.Codec.RequiresAuth() {
		payload, err := c.cfg.Codec.AuthFrame(c.cfg.Credential)
		if err != nil {
			return errors.Wrap(err, "build auth frame")
		}
		c.setState(StateAuthPending)
		if err := c.write(conn, payload); err != nil {
			return errors.Wrap(err, "send auth frame")
		}
	} else {
		if err := c.open(conn); err != nil {
			return err
		}
		*attempt = 0
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "read")
		}

		frame, err := c.cfg.Codec.Decode(raw)
		if err != nil {
			// malformed payload: drop the message, keep the connection
			c.emit(Event{Kind: EventError, Err: errors.Wrap(err, "decode frame")})
			continue
		}

		switch frame.Kind {
		case FrameStatus:
			if c.State() != StateAuthPending {
				continue
			}
			if frame.Status.AuthFailed {
				c.emit(Event{Kind: EventError, Err: errors.Wrap(ErrAuthRejected, frame.Status.Message)})
				return ErrAuthRejected
			}
			if frame.Status.AuthOK {
				if err := c.open(conn); err != nil {
					return err
				}
				*attempt = 0
			}
		case FrameTrade:
			if c.State() == StateOpen {
				c.emit(Event{Kind: EventTick, Tick: frame.Tick})
			}
		case FrameQuote:
			if c.State() == StateOpen {
				c.emit(Event{Kind: EventQuote, Quote: frame.Quote})
			}
		default:
			// unrecognized frame kinds are ignored for forward compatibility
		}
	}
}

// open transitions to Open and replays the desired topic set. The state
// flips inside the same critical section that snapshots the set, so a
// concurrent Subscribe either lands in the replay or observes Open and
// sends its own frame; no topic can fall between the two.
func (c *Connector) open(conn Conn) error {
	c.mu.Lock()
	topics := make([]model.Topic, 0, len(c.desired))
	for _, topic := range c.desired {
		topics = append(topics, topic)
	}
	if c.state != StateStopped {
		c.state = StateOpen
	}
	c.mu.Unlock()

	if len(topics) > 0 {
		payload, err := c.cfg.Codec.SubscribeFrame(topics)
		if err != nil {
			return errors.Wrap(err, "build resubscribe frame")
		}
		if err := c.write(conn, payload); err != nil {
			return errors.Wrap(err, "resubscribe")
		}
	}
	c.emit(Event{Kind: EventConnected})
	logs.Infof("feed %s: open, %d topics resent", c.cfg.Name, len(topics))
	return nil
}

func (c *Connector) write(conn Conn, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Connector) emit(event Event) {
	if c.stopped.Load() {
		return
	}
	select {
	case c.events <- event:
	default:
		if c.drops.Add(1)%1024 == 1 {
			logs.Warnf("feed %s: event queue full, dropping", c.cfg.Name)
		}
	}
}

func (c *Connector) setState(state State) {
	c.mu.Lock()
	if c.state != StateStopped {
		c.state = state
	}
	c.mu.Unlock()
}

func (c *Connector) setConn(conn Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Connector) sleepBackoff(ctx context.Context, attempt int) bool {
	wait := c.cfg.Backoff.Next(attempt)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
