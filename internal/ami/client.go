package ami

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ResponseFunc receives the response block matching a sent action's ActionID.
type ResponseFunc func(Event)

// Client wraps a single AMI TCP session: it authenticates, streams decoded
// events to a handler, and sends actions whose responses are routed back by
// ActionID. A Client is not reconnecting; the caller owns the session loop.
type Client struct {
	conn   net.Conn
	parser *Parser

	mu      sync.Mutex
	pending map[string]ResponseFunc
	closed  bool
}

// ClientOptions configures a Client connection.
type ClientOptions struct {
	Addr        string
	Username    string
	Secret      string
	DialTimeout time.Duration
}

// Dial connects to the AMI port, consumes the banner, and sends a login
// action. The login response is observed in the read loop like any other
// response; Asterisk drops the connection on auth failure, which surfaces
// as a read error from Run.
func Dial(opts ClientOptions) (*Client, error) {
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	conn, err := net.DialTimeout("tcp", opts.Addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial AMI: %w", err)
	}

	reader := bufio.NewReader(conn)
	banner, err := reader.ReadString('\n')
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading AMI banner: %w", err)
	}
	_ = strings.TrimSpace(banner)

	c := &Client{
		conn:    conn,
		parser:  NewParser(reader),
		pending: map[string]ResponseFunc{},
	}

	login := NewAction("Login", "Username", opts.Username, "Secret", opts.Secret)
	if err := c.Send(login, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending login: %w", err)
	}
	return c, nil
}

// Send writes an action to the switch. If cb is non-nil it is invoked with
// the response block whose ActionID matches; an ActionID is assigned when
// the action has none. The callback runs on the Run goroutine.
func (c *Client) Send(a Action, cb ResponseFunc) error {
	if cb != nil && a.ID == "" {
		a.ID = uuid.NewString()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("AMI client closed")
	}
	if cb != nil {
		c.pending[a.ID] = cb
	}
	_, err := c.conn.Write(a.Marshal())
	c.mu.Unlock()

	if err != nil {
		c.mu.Lock()
		delete(c.pending, a.ID)
		c.mu.Unlock()
		return fmt.Errorf("writing action %s: %w", a.Name, err)
	}
	return nil
}

// Run reads the event stream until the connection closes, passing every
// non-response block to onEvent. Responses are matched to pending actions;
// unmatched responses are dropped.
func (c *Client) Run(onEvent func(Event)) error {
	for {
		evt, ok := c.parser.Next()
		if !ok {
			if err := c.parser.Err(); err != nil {
				return fmt.Errorf("AMI read: %w", err)
			}
			return fmt.Errorf("AMI connection closed")
		}

		if evt.IsResponse() {
			c.mu.Lock()
			cb := c.pending[evt.ActionID()]
			delete(c.pending, evt.ActionID())
			c.mu.Unlock()
			if cb != nil {
				cb(evt)
			}
			continue
		}

		onEvent(evt)
	}
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}
