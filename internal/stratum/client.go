package stratum

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/silentarmy/stratum-miner/internal/workunit"
	"github.com/silentarmy/stratum-miner/pkg/errors"
	"github.com/silentarmy/stratum-miner/pkg/log"
)

// ClientConfig holds the pool endpoint and credentials for a Client.
type ClientConfig struct {
	Host string
	Port int
	User string
	Pwd  string

	DialTimeout  time.Duration
	WriteTimeout time.Duration
	ReconnectGap time.Duration // fixed delay between reconnect attempts after the first.
}

// sessionState is the Stratum connection's state machine position, per the
// DISCONNECTED -> CONNECTING -> SENT_SUBSCRIBE -> SENT_AUTHORIZE -> AUTHORIZED
// progression.
type sessionState int

const (
	stateDisconnected sessionState = iota
	stateConnecting
	stateSentSubscribe
	stateSentAuthorize
	stateAuthorized
)

// Client owns a single persistent, reconnecting Stratum connection. It is an
// actor: all connection state lives in its own goroutines, and the outside
// world only observes it through the channel returned by Events.
type Client struct {
	cfg    ClientConfig
	logger *log.Logger

	events chan Event

	mu         sync.Mutex
	state      sessionState
	nextID     int64
	expectID   int64
	hasExpect  bool
	outbound   chan []byte // nil when disconnected; swapped in on each connection.
	conn       net.Conn
}

// NewClient constructs a Client. Call Run to start the connect/reconnect loop.
func NewClient(cfg ClientConfig, logger *log.Logger) *Client {
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.ReconnectGap == 0 {
		cfg.ReconnectGap = time.Second
	}
	return &Client{
		cfg:    cfg,
		logger: logger.WithComponent("stratum_client"),
		events: make(chan Event, 64),
	}
}

// Events returns the channel the Coordinator consumes. Closed once Run returns.
func (c *Client) Events() <-chan Event {
	return c.events
}

// User returns the pool username this client authorizes as.
func (c *Client) User() string {
	return c.cfg.User
}

// Run drives connect, subscribe, authorize, and reconnect until ctx is
// cancelled. The first connection attempt is immediate; every attempt after
// a failure or disconnect waits ReconnectGap (spec: fixed backoff, no
// exponential growth — the pool is assumed reachable, not overloaded).
func (c *Client) Run(ctx context.Context) {
	defer close(c.events)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		attempt++
		if err := c.connectAndServe(ctx); err != nil {
			c.logger.WithError(err).Warn("stratum connection ended")
		}

		select {
		case c.events <- Disconnected{Attempt: attempt}:
		case <-ctx.Done():
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.ReconnectGap):
		}
	}
}

// connectAndServe performs one connection attempt's full lifetime: dial,
// subscribe, authorize, then read notifications and responses until the
// connection drops or ctx is cancelled.
func (c *Client) connectAndServe(ctx context.Context) error {
	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	c.logger.LogConnection("connected", addr)

	outbound := make(chan []byte, 16)
	done := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.outbound = outbound
	c.state = stateConnecting
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.outbound = nil
		c.state = stateDisconnected
		c.mu.Unlock()
		_ = conn.Close()
		c.logger.LogConnection("disconnected", addr)
	}()

	go c.writeLoop(ctx, conn, outbound, done)

	if err := c.sendSubscribe(); err != nil {
		close(done)
		return err
	}

	err = c.readLoop(ctx, conn)
	close(done)
	return err
}

// writeLoop serializes all writes to conn. Mirrors the owned-outbound-channel
// pattern used for the pool-facing session: a connection's writer never
// shares its socket with the reader goroutine.
func (c *Client) writeLoop(ctx context.Context, conn net.Conn, outbound chan []byte, done chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case data := <-outbound:
			if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.logger.WithError(err).Error("failed to set write deadline")
				return
			}
			if _, err := conn.Write(data); err != nil {
				c.logger.WithError(err).Error("failed to write to pool")
				return
			}
			c.logger.LogStratumMessage("sent", string(data[:len(data)-1]))
		}
	}
}

// readLoop scans newline-delimited lines from conn and dispatches each
// decoded message to the state machine until EOF, an error, or ctx cancellation.
func (c *Client) readLoop(ctx context.Context, conn net.Conn) error {
	buf := getBuffer()
	defer putBuffer(buf)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(buf, 1<<20)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return fmt.Errorf("pool closed connection")
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		c.logger.LogStratumMessage("received", string(line))

		msg, err := DecodeMessage(line)
		if err != nil {
			c.logger.WithError(err).Warn("discarding malformed line from pool")
			continue
		}

		if closeConn := c.handleMessage(msg); closeConn {
			return fmt.Errorf("authorization rejected by pool")
		}
	}
}

// handleMessage advances the state machine for one decoded message and
// emits the corresponding event(s). Returns true if the caller should tear
// the connection down (authorize failed).
func (c *Client) handleMessage(msg *Message) bool {
	if msg.IsNotification() {
		c.handleNotification(msg)
		return false
	}
	return c.handleResponse(msg)
}

func (c *Client) handleNotification(msg *Message) {
	switch msg.Method {
	case "mining.notify":
		np, err := ParseNotifyParams(msg.Params)
		if err != nil {
			c.logger.WithError(err).Warn("malformed mining.notify")
			return
		}
		if !np.CleanJobs {
			// Per spec this deployment never sees clean_jobs=false; ignore
			// rather than guess at append semantics nothing exercises.
			c.logger.Warn("ignoring mining.notify with clean_jobs=false")
			return
		}
		c.emit(JobSet{Notify: np})

	case "mining.set_target":
		targetHex, err := ParseSetTargetParams(msg.Params)
		if err != nil {
			c.logger.WithError(err).Warn("malformed mining.set_target")
			return
		}
		target, err := workunit.ReverseTarget(targetHex)
		if err != nil {
			c.logger.WithError(err).Warn("malformed target value")
			return
		}
		c.emit(TargetSet{Target: target})

	default:
		c.logger.WithFields("method", msg.Method).Debug("ignoring unhandled notification")
	}
}

func (c *Client) handleResponse(msg *Message) (closeConn bool) {
	c.mu.Lock()
	state := c.state
	if c.hasExpect && msg.ID != nil {
		if !idsEqual(msg.ID, c.expectID) {
			c.logger.WithFields("expected_id", c.expectID, "got_id", msg.ID).
				Warn("response id does not match outstanding request, proceeding anyway")
		}
	}
	c.mu.Unlock()

	if msg.Error != nil {
		c.logger.WithFields("code", msg.Error.Code, "message", msg.Error.Message).
			Warn("pool returned an error response")
	}

	switch state {
	case stateConnecting, stateSentSubscribe:
		nonceLeftHex, err := ParseSubscribeResult(msg.Result)
		if err != nil {
			c.logger.WithError(err).Error("malformed mining.subscribe response")
			return true
		}
		nonceLeft, err := workunit.ParseNonceLeft(nonceLeftHex)
		if err != nil {
			if errors.IsType(err, errors.ErrorTypeFatal) {
				c.logger.WithError(err).Error("pool fixed too many nonce bytes, exiting")
				os.Exit(1)
			}
			c.logger.WithError(err).Error("nonce_left from pool is unusable")
			return true
		}
		c.emit(Subscribed{NonceLeft: nonceLeft})
		if err := c.sendAuthorize(); err != nil {
			c.logger.WithError(err).Error("failed to send mining.authorize")
			return true
		}
		return false

	case stateSentAuthorize:
		if !IsTruthy(msg.Result) {
			c.emit(AuthFailed{})
			return true
		}
		c.mu.Lock()
		c.state = stateAuthorized
		c.mu.Unlock()
		c.emit(Authorized{})
		return false

	case stateAuthorized:
		if IsTruthy(msg.Result) {
			c.emit(ShareAccepted{})
		}
		return false

	default:
		return false
	}
}

func (c *Client) sendSubscribe() error {
	id := c.nextRequestID()
	data, err := EncodeRequest("mining.subscribe", id, SubscribeRequest(c.cfg.Host, c.cfg.Port))
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.state = stateSentSubscribe
	c.mu.Unlock()
	return c.write(data)
}

func (c *Client) sendAuthorize() error {
	id := c.nextRequestID()
	data, err := EncodeRequest("mining.authorize", id, AuthorizeRequest(c.cfg.User, c.cfg.Pwd))
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.state = stateSentAuthorize
	c.mu.Unlock()
	return c.write(data)
}

// Submit forwards a solver's solution to the pool, verbatim and in order.
// A best-effort send: if the connection dropped between dispatch and
// submission, the share is simply lost, same as the pool never having
// received it.
func (c *Client) Submit(jobID, ntime, nonceRightPart, sol string) error {
	id := c.nextRequestID()
	data, err := EncodeRequest("mining.submit", id, SubmitRequest(c.cfg.User, jobID, ntime, nonceRightPart, sol))
	if err != nil {
		return err
	}
	return c.write(data)
}

func (c *Client) write(data []byte) error {
	c.mu.Lock()
	outbound := c.outbound
	c.mu.Unlock()
	if outbound == nil {
		return fmt.Errorf("not connected")
	}
	select {
	case outbound <- data:
		return nil
	default:
		return fmt.Errorf("outbound buffer full")
	}
}

func (c *Client) nextRequestID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.expectID = c.nextID
	c.hasExpect = true
	return c.nextID
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("event channel full, dropping event")
	}
}

// idsEqual compares a decoded JSON id (float64, string, or nil) against the
// int64 id we sent.
func idsEqual(got any, want int64) bool {
	switch v := got.(type) {
	case float64:
		return int64(v) == want
	case int64:
		return v == want
	default:
		return false
	}
}
