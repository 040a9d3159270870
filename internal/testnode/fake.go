// Package testnode provides an in-memory nodeclient.Client double for
// exercising the Archiver/Retriever/Destroyer/HandoffClient fan-out
// logic without a real TCP node on the other end.
package testnode

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/bowlofstew/nimbus.io/pkg/gwerrors"
	"github.com/bowlofstew/nimbus.io/pkg/nodeclient"
)

// ReplyFunc computes what FakeClient hands back for a given Send call, or the
// error to fail with instead.
type ReplyFunc func(msg nodeclient.Message) (*nodeclient.Reply, error)

// FakeClient is a programmable nodeclient.Client: toggle Connected,
// install a ReplyFunc, and inspect every Message it was sent.
type FakeClient struct {
	Name string

	mu        sync.Mutex
	connected bool
	reply     ReplyFunc
	sent      []nodeclient.Message

	sendCount atomic.Int64
}

// NewFakeClient builds a connected FakeClient that echoes a successful,
// empty-body reply for every message unless reconfigured.
func NewFakeClient(name string) *FakeClient {
	return &FakeClient{Name: name, connected: true}
}

func (f *FakeClient) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// SetConnected toggles the client's reported connectivity.
func (f *FakeClient) SetConnected(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = v
}

// SetReply installs the function used to answer every subsequent Send.
// A nil ReplyFunc restores the default success echo.
func (f *FakeClient) SetReply(fn ReplyFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reply = fn
}

// Sent returns a copy of every Message passed to Send so far.
func (f *FakeClient) Sent() []nodeclient.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]nodeclient.Message, len(f.sent))
	copy(out, f.sent)
	return out
}

// SendCount returns how many times Send has been called.
func (f *FakeClient) SendCount() int64 { return f.sendCount.Load() }

func (f *FakeClient) Send(ctx context.Context, msg nodeclient.Message) (*nodeclient.Reply, error) {
	f.sendCount.Add(1)

	f.mu.Lock()
	connected := f.connected
	fn := f.reply
	f.sent = append(f.sent, msg)
	f.mu.Unlock()

	if !connected {
		return nil, gwerrors.ErrDisconnected
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if fn != nil {
		return fn(msg)
	}

	return &nodeclient.Reply{
		RequestID: msg.Control.RequestID,
		Control:   msg.Control,
		Body:      nil,
	}, nil
}

// Fail installs a ReplyFunc that always fails with err.
func (f *FakeClient) Fail(err error) {
	f.SetReply(func(nodeclient.Message) (*nodeclient.Reply, error) {
		return nil, err
	})
}
