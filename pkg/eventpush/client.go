// Package eventpush implements the gateway's structured telemetry
// publisher, per spec §1 and §B.3. Events are written to a durable
// local Badger buffer first and drained to the event-push service on a
// background ticker, so a transient outage of that service never blocks
// or loses an Application-boundary event (§7 ServerError) or an
// Archiver/Retriever/Destroyer failure-path event.
package eventpush

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bowlofstew/nimbus.io/internal/logger"
	"github.com/bowlofstew/nimbus.io/pkg/config"
	"github.com/bowlofstew/nimbus.io/pkg/gateway"
	"github.com/bowlofstew/nimbus.io/pkg/metrics"
)

const bufferKeyPrefix = "evt:"

// maxEventsPerFlush bounds how many buffered events one ticker round
// drains, so a long outage followed by recovery doesn't stall the
// ticker goroutine delivering one enormous batch.
const maxEventsPerFlush = 200

// Client buffers events in Badger and drains them to the event-push
// service. It implements pkg/gateway's EventPusher interface.
type Client struct {
	db         *badger.DB
	httpClient *http.Client
	cfg        config.EventPushConfig
	metrics    metrics.BufferMetrics

	seq    atomic.Uint64
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New opens the durable buffer at cfg.BufferPath and returns a ready
// Client. Callers must call Run in a goroutine to start draining, and
// Close on shutdown.
func New(cfg config.EventPushConfig, m metrics.BufferMetrics) (*Client, error) {
	if m == nil {
		m = metrics.NoopBufferMetrics{}
	}

	opts := badger.DefaultOptions(cfg.BufferPath).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("eventpush: open buffer at %q: %w", cfg.BufferPath, err)
	}

	return &Client{
		db:         db,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cfg:        cfg,
		metrics:    m,
		stopCh:     make(chan struct{}),
	}, nil
}

// Push durably enqueues event for later delivery. It never blocks on
// the network and never returns an error to the caller — per
// gateway.EventPusher, a buffer write failure is logged and the event
// is dropped rather than risked blocking request handling.
func (c *Client) Push(ctx context.Context, event gateway.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("eventpush: failed to marshal event", "name", event.Name, "error", err)
		return
	}

	key := bufferKey(c.seq.Add(1))
	if err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, payload)
	}); err != nil {
		logger.Error("eventpush: failed to buffer event", "name", event.Name, "error", err)
		return
	}

	c.metrics.RecordBufferDepth(c.bufferedCount())
}

// Run drains the buffer on cfg.FlushInterval until ctx is cancelled or
// Close is called.
func (c *Client) Run(ctx context.Context) {
	c.wg.Add(1)
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.flush(ctx)
		}
	}
}

// Close stops Run and closes the underlying Badger database.
func (c *Client) Close() error {
	close(c.stopCh)
	c.wg.Wait()
	return c.db.Close()
}

type bufferedEvent struct {
	key     []byte
	payload []byte
}

// flush attempts to deliver up to maxEventsPerFlush buffered events, in
// insertion order, stopping at the first delivery failure so
// not-yet-sent events stay buffered for the next tick.
func (c *Client) flush(ctx context.Context) {
	pending, err := c.readPending()
	if err != nil {
		logger.Error("eventpush: failed to read buffer", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	delivered := make([][]byte, 0, len(pending))
	for _, ev := range pending {
		if err := c.deliver(ctx, ev.payload); err != nil {
			c.metrics.RecordFlushFailure()
			logger.Warn("eventpush: delivery failed, will retry on next tick", "error", err)
			break
		}
		delivered = append(delivered, ev.key)
	}

	if len(delivered) == 0 {
		return
	}

	if err := c.db.Update(func(txn *badger.Txn) error {
		for _, key := range delivered {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		logger.Error("eventpush: failed to clear delivered events", "error", err)
		return
	}

	c.metrics.RecordFlushSuccess(len(delivered))
	c.metrics.RecordBufferDepth(c.bufferedCount())
}

func (c *Client) readPending() ([]bufferedEvent, error) {
	var out []bufferedEvent
	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(bufferKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(out) < maxEventsPerFlush; it.Next() {
			item := it.Item()
			key := append([]byte(nil), item.Key()...)
			err := item.Value(func(val []byte) error {
				out = append(out, bufferedEvent{key: key, payload: append([]byte(nil), val...)})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func (c *Client) bufferedCount() int {
	count := 0
	_ = c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		defer it.Close()
		prefix := []byte(bufferKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count
}

func (c *Client) deliver(ctx context.Context, payload []byte) error {
	if c.cfg.Endpoint == "" {
		return nil
	}

	token, err := c.signToken()
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+"/events", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("event-push returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) signToken() (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    "nimbusio-web-server",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(c.cfg.JWTSigningKey))
}

// bufferKey produces a lexicographically ordered key so the iterator in
// readPending naturally yields events in insertion order.
func bufferKey(seq uint64) []byte {
	buf := make([]byte, len(bufferKeyPrefix)+8)
	copy(buf, bufferKeyPrefix)
	binary.BigEndian.PutUint64(buf[len(bufferKeyPrefix):], seq)
	return buf
}
