package nodeclient

import (
	"context"
)

// Client is the interface both ResilientClient and HandoffClient satisfy,
// so DataWriter/DataReader facades and the Archiver/Retriever/Destroyer
// never need to know which one they were handed.
type Client interface {
	Send(ctx context.Context, msg Message) (*Reply, error)
	Connected() bool
}

// HandoffClient wraps two backup ResilientClients standing in for one
// down primary node. Every send is dispatched to both backups
// concurrently, tagged with the primary's node name so the backups know
// whom to forward to out-of-band; the first backup to reply successfully
// wins. There are no cyclic references: HandoffClient holds its backups,
// the backups do not know of the wrapper.
type HandoffClient struct {
	PrimaryNodeName string
	Backups         [2]Client
}

// NewHandoffClient constructs a wrapper covering primaryNodeName with
// exactly two backup clients, per spec §3's fixed handoff fan-out H=2.
func NewHandoffClient(primaryNodeName string, backup1, backup2 Client) *HandoffClient {
	return &HandoffClient{
		PrimaryNodeName: primaryNodeName,
		Backups:         [2]Client{backup1, backup2},
	}
}

// Connected reports true if at least one backup is connected; the
// wrapper only needs one live path to the pair.
func (h *HandoffClient) Connected() bool {
	for _, b := range h.Backups {
		if b != nil && b.Connected() {
			return true
		}
	}
	return false
}

// Send dispatches msg to both backups concurrently, tagging it as a
// handoff copy for PrimaryNodeName, and resolves on the first success.
// If both fail, Send fails.
func (h *HandoffClient) Send(ctx context.Context, msg Message) (*Reply, error) {
	msg.Control.HandoffOf = h.PrimaryNodeName

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		reply *Reply
		err   error
	}
	results := make(chan result, 2)

	for _, backup := range h.Backups {
		backup := backup
		go func() {
			reply, err := backup.Send(ctx, msg)
			results <- result{reply, err}
		}()
	}

	var lastErr error
	for i := 0; i < 2; i++ {
		r := <-results
		if r.err == nil {
			return r.reply, nil
		}
		lastErr = r.err
	}
	return nil, lastErr
}
