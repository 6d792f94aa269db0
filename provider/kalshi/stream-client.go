package kalshi

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/sirupsen/logrus"

	"github.com/spooky-finn/go-kalshi-bridge/config"
	promclient "github.com/spooky-finn/go-kalshi-bridge/infrastructure/prometheus"
	"github.com/spooky-finn/go-kalshi-bridge/logger"
)

type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateOpen
	StateClosing
)

var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

type pendingRequest struct {
	key     string
	payload []byte
}

// StreamClient owns the lifecycle of the single Kalshi websocket: dialing,
// reading frames, and scheduling redials with exponential backoff when the
// connection drops. At most one physical connection is live at a time; every
// deliberate teardown bumps the generation counter so close events from an
// abandoned connection can never trigger a stray redial.
type StreamClient struct {
	endpoint string
	dialer   *websocket.Dialer

	// Callbacks are set once before Connect and invoked from the client's
	// own goroutines, one event at a time.
	OnOpen         func()
	OnEnvelope     func(*Envelope)
	OnStatusChange func(connected bool)
	OnTerminal     func(error)

	mu         sync.Mutex
	conn       *websocket.Conn
	state      ConnState
	generation uint64
	closed     bool

	bo           *backoff.Backoff
	maxAttempts  int
	disconnectAt time.Time

	// Priority requests queued while disconnected, replayed on the next
	// successful open. De-duplicated by caller-supplied key.
	pending     deque.Deque[*pendingRequest]
	pendingKeys map[string]struct{}

	writeMx sync.Mutex
	log     *logrus.Entry
}

func NewStreamClient(cfg *config.Config) *StreamClient {
	return &StreamClient{
		endpoint: cfg.WsEndpoint,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 5 * time.Second,
		},
		bo: &backoff.Backoff{
			Min:    cfg.ReconnectBaseDelay,
			Max:    cfg.ReconnectMaxDelay,
			Factor: cfg.ReconnectMultiplier,
		},
		maxAttempts: cfg.ReconnectMaxAttempts,
		pendingKeys: make(map[string]struct{}),
		log:         logger.Component("stream-client"),
	}
}

// Connect tears down any existing connection and dials a fresh one.
// Dial failures are retried internally on the backoff schedule, so the
// caller only needs to call Connect once.
func (c *StreamClient) Connect() error {
	gen, err := c.beginConnect()
	if err != nil {
		return err
	}
	return c.dial(gen)
}

// beginConnect claims a fresh generation for the upcoming dial. The bump is
// unconditional: it detaches the read loop of any live connection AND stales
// any redial timer armed by an earlier drop, so a manual Connect can never
// race a pending timer into a second live connection.
func (c *StreamClient) beginConnect() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, errors.New("stream client is shut down")
	}
	c.generation++
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateConnecting
	return c.generation, nil
}

func (c *StreamClient) dial(gen uint64) error {
	conn, _, err := c.dialer.Dial(c.endpoint, nil)
	if err != nil {
		c.log.Warnf("dial %s failed: %s", c.endpoint, err)
		c.handleClose(gen, err)
		return err
	}

	c.mu.Lock()
	if gen != c.generation || c.closed {
		// A newer Connect or Shutdown superseded this dial.
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.state = StateOpen
	c.bo.Reset()
	if !c.disconnectAt.IsZero() {
		promclient.WsReconnectDuration.Observe(time.Since(c.disconnectAt).Seconds())
		promclient.WsReconnectsTotal.Inc()
		c.disconnectAt = time.Time{}
	}
	replay := c.drainPendingLocked()
	c.mu.Unlock()

	c.log.Infof("connected to %s", c.endpoint)

	for _, req := range replay {
		if err := c.write(req.payload); err != nil {
			c.log.Warnf("replaying queued request %q failed: %s", req.key, err)
		}
	}

	if c.OnStatusChange != nil {
		c.OnStatusChange(true)
	}
	if c.OnOpen != nil {
		c.OnOpen()
	}

	go c.readLoop(conn, gen)
	return nil
}

// readLoop delivers frames one at a time, so downstream consumers never see
// two inbound messages concurrently.
func (c *StreamClient) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(gen, err)
			return
		}

		env, err := DecodeFrame(frame)
		if err != nil {
			// One bad frame must not tear down the session.
			promclient.MalformedFramesTotal.Inc()
			c.log.Warnf("dropping frame: %s", err)
			continue
		}

		if c.OnEnvelope != nil {
			c.OnEnvelope(env)
		}
	}
}

func (c *StreamClient) handleClose(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.generation || c.closed {
		// Deliberate teardown or an already-superseded connection.
		c.mu.Unlock()
		return
	}
	c.generation++
	nextGen := c.generation
	wasOpen := c.state == StateOpen
	c.state = StateDisconnected
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.disconnectAt.IsZero() {
		c.disconnectAt = time.Now()
	}

	if c.maxAttempts > 0 && int(c.bo.Attempt()) >= c.maxAttempts {
		c.mu.Unlock()
		c.log.Errorf("giving up after %d reconnect attempts: %s", c.maxAttempts, cause)
		if wasOpen && c.OnStatusChange != nil {
			c.OnStatusChange(false)
		}
		if c.OnTerminal != nil {
			c.OnTerminal(ErrReconnectExhausted)
		}
		return
	}

	delay := c.bo.Duration()
	c.mu.Unlock()

	// Failed redial attempts are part of the same outage; listeners are
	// told about the transition out of OPEN, not about every attempt.
	if wasOpen && c.OnStatusChange != nil {
		c.OnStatusChange(false)
	}
	c.log.Warnf("connection lost (%s), reconnecting in %s", cause, delay)

	time.AfterFunc(delay, func() {
		c.mu.Lock()
		stale := nextGen != c.generation || c.closed
		if !stale {
			c.state = StateConnecting
		}
		c.mu.Unlock()
		if stale {
			return
		}
		c.dial(nextGen)
	})
}

type sendOptions struct {
	priority bool
	key      string
}

type SendOption func(*sendOptions)

// WithPriority queues the message for replay on the next successful open
// when the connection is down. Queued requests are de-duplicated by key so a
// repeated intent (e.g. a cancel for the same order id) is sent only once.
func WithPriority(key string) SendOption {
	return func(o *sendOptions) {
		o.priority = true
		o.key = key
	}
}

// Send serializes and transmits the message if the connection is open.
// Otherwise the call is a silent no-op, unless marked as priority.
func (c *StreamClient) Send(v interface{}, opts ...SendOption) error {
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state == StateOpen && c.conn != nil {
		c.mu.Unlock()
		return c.write(payload)
	}

	if o.priority {
		if _, dup := c.pendingKeys[o.key]; !dup {
			c.pendingKeys[o.key] = struct{}{}
			c.pending.PushBack(&pendingRequest{key: o.key, payload: payload})
		}
	}
	c.mu.Unlock()
	return nil
}

func (c *StreamClient) write(payload []byte) error {
	c.writeMx.Lock()
	defer c.writeMx.Unlock()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("connection is not open")
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *StreamClient) drainPendingLocked() []*pendingRequest {
	replay := make([]*pendingRequest, 0, c.pending.Len())
	for c.pending.Len() > 0 {
		req := c.pending.PopFront()
		delete(c.pendingKeys, req.key)
		replay = append(replay, req)
	}
	return replay
}

func (c *StreamClient) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *StreamClient) IsConnected() bool {
	return c.State() == StateOpen
}

// Shutdown closes the connection for good; no reconnect is scheduled.
func (c *StreamClient) Shutdown() {
	c.mu.Lock()
	c.closed = true
	c.generation++
	c.state = StateClosing
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutting down"),
		)
		conn.Close()
	}
	c.log.Info("stream client stopped")
}
