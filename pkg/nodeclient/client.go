// Package nodeclient implements reliable per-node RPC (ResilientClient)
// and the handoff wrapper (HandoffClient) that covers a down node with two
// backups, per spec §4.3-§4.4.
package nodeclient

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bowlofstew/nimbus.io/internal/logger"
	"github.com/bowlofstew/nimbus.io/pkg/gwerrors"
)

// ResilientClient owns a single long-lived connection to one storage
// node. It is a process-wide singleton shared by all concurrent requests;
// submission order is FIFO per client, replies may arrive out of order
// and are matched by request id.
type ResilientClient struct {
	NodeName string
	Addr     string

	mu        sync.Mutex
	conn      net.Conn
	connected bool
	pending   map[string]chan *Reply
	writeMu   sync.Mutex

	dialTimeout time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

// NewResilientClient constructs a client for one node. Dial is not
// attempted until Connect is called, so construction itself cannot fail.
func NewResilientClient(nodeName, addr string, dialTimeout time.Duration) *ResilientClient {
	return &ResilientClient{
		NodeName:    nodeName,
		Addr:        addr,
		pending:     make(map[string]chan *Reply),
		dialTimeout: dialTimeout,
		closed:      make(chan struct{}),
	}
}

// Connect dials the node and starts the background reply-draining task.
// Safe to call again after a disconnect to reconnect.
func (c *ResilientClient) Connect(ctx context.Context) error {
	d := net.Dialer{Timeout: c.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return fmt.Errorf("nodeclient: dial %s (%s): %w", c.NodeName, c.Addr, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readLoop(conn)

	logger.Info("node client connected", logger.Node(c.NodeName), "addr", c.Addr)
	return nil
}

// Connected reports the client's observable connection state. The
// gateway only reads this at request-entry time to decide handoff; it
// does not poll mid-request.
func (c *ResilientClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Send submits a request and blocks until a reply with a matching
// RequestID arrives, ctx is cancelled, or the connection fails. On
// disconnect, in-flight sends fail with ErrTransportFailure; new sends
// are rejected outright while disconnected.
func (c *ResilientClient) Send(ctx context.Context, msg Message) (*Reply, error) {
	if msg.Control.RequestID == "" {
		msg.Control.RequestID = newRequestID()
	}

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, gwerrors.ErrDisconnected
	}
	conn := c.conn
	replyCh := make(chan *Reply, 1)
	c.pending[msg.Control.RequestID] = replyCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.Control.RequestID)
		c.mu.Unlock()
	}()

	framed, err := EncodeMessage(msg)
	if err != nil {
		return nil, fmt.Errorf("nodeclient: %w", err)
	}

	// Writes are serialized through writeMu so FIFO submission order per
	// client is preserved even under concurrent Send calls.
	c.writeMu.Lock()
	_, werr := conn.Write(framed)
	c.writeMu.Unlock()
	if werr != nil {
		c.fail(werr)
		return nil, gwerrors.ErrTransportFailure
	}

	select {
	case reply := <-replyCh:
		if reply == nil {
			return nil, gwerrors.ErrTransportFailure
		}
		return reply, nil
	case <-ctx.Done():
		return nil, gwerrors.ErrCancelled
	case <-c.closed:
		return nil, gwerrors.ErrDisconnected
	}
}

func (c *ResilientClient) readLoop(conn net.Conn) {
	for {
		msg, err := DecodeMessage(conn)
		if err != nil {
			c.fail(err)
			return
		}

		reply := &Reply{
			RequestID: msg.Control.RequestID,
			Control:   msg.Control,
			Body:      msg.Body,
		}

		c.mu.Lock()
		ch, ok := c.pending[reply.RequestID]
		c.mu.Unlock()

		if ok {
			select {
			case ch <- reply:
			default:
			}
		}
		// Unmatched replies (late arrivals after cancellation) are
		// discarded by id, per the best-effort cancellation contract.
	}
}

// fail marks the client disconnected and fails every pending send.
func (c *ResilientClient) fail(cause error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	conn := c.conn
	c.conn = nil
	pending := c.pending
	c.pending = make(map[string]chan *Reply)
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	for _, ch := range pending {
		select {
		case ch <- nil:
		default:
		}
	}

	logger.Warn("node client disconnected", logger.Node(c.NodeName), logger.Err(cause))
}

// Disconnect tears down the current connection and fails in-flight
// sends, the same as an unplanned transport failure, but leaves the
// client reconnectable — unlike Close, it does not touch closeOnce or
// the closed channel, so a later Connect call works normally.
func (c *ResilientClient) Disconnect() {
	c.fail(fmt.Errorf("disconnected by operator"))
}

// Close shuts the client down permanently, failing in-flight futures.
func (c *ResilientClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.fail(fmt.Errorf("closed"))
	})
	return nil
}

func newRequestID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
