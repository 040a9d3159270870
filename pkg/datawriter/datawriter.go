// Package datawriter implements the typed write-side facade over a
// nodeclient.Client, per spec §4.5. Facades are stateless and cheap; they
// do not buffer.
package datawriter

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/bowlofstew/nimbus.io/internal/telemetry"
	"github.com/bowlofstew/nimbus.io/pkg/nodeclient"
)

// DataWriter exposes the three archive phases and tombstone destroy as
// typed calls over one client (direct to a node, or a HandoffClient
// covering a down one). SegmentNum is fixed at construction: it equals
// the 1-based index of NodeName in the cluster's ordered node list.
type DataWriter struct {
	NodeName   string
	SegmentNum int
	client     nodeclient.Client
}

// New wraps client as a DataWriter addressed to nodeName (the primary
// node name, even when client is a HandoffClient) at the given segment
// number.
func New(nodeName string, segmentNum int, client nodeclient.Client) *DataWriter {
	return &DataWriter{NodeName: nodeName, SegmentNum: segmentNum, client: client}
}

// Connected reports the underlying client's connectivity.
func (w *DataWriter) Connected() bool { return w.client.Connected() }

// ArchiveStart sends the first slice of a new archive transaction.
func (w *DataWriter) ArchiveStart(ctx context.Context, collectionID int64, key string, timestamp int64, segmentSize int64, payload []byte) (*nodeclient.Reply, error) {
	return w.send(ctx, nodeclient.Control{
		MessageType:  nodeclient.MsgArchiveStart,
		CollectionID: collectionID,
		Key:          key,
		Timestamp:    timestamp,
		SegmentNum:   w.SegmentNum,
		Sequence:     0,
		SegmentSize:  segmentSize,
	}, payload)
}

// ArchiveNext sends an intermediate slice.
func (w *DataWriter) ArchiveNext(ctx context.Context, collectionID int64, key string, timestamp int64, sequence int, payload []byte) (*nodeclient.Reply, error) {
	return w.send(ctx, nodeclient.Control{
		MessageType:  nodeclient.MsgArchiveNext,
		CollectionID: collectionID,
		Key:          key,
		Timestamp:    timestamp,
		SegmentNum:   w.SegmentNum,
		Sequence:     sequence,
	}, payload)
}

// ArchiveFinal sends the last slice, carrying whole-object checksums and
// user meta.
func (w *DataWriter) ArchiveFinal(ctx context.Context, collectionID int64, key string, timestamp int64, sequence int, totalSize int64, fileAdler32 uint32, fileMD5 []byte, meta map[string]string, payload []byte) (*nodeclient.Reply, error) {
	return w.send(ctx, nodeclient.Control{
		MessageType:  nodeclient.MsgArchiveFinal,
		CollectionID: collectionID,
		Key:          key,
		Timestamp:    timestamp,
		SegmentNum:   w.SegmentNum,
		Sequence:     sequence,
		TotalSize:    totalSize,
		FileAdler32:  fileAdler32,
		FileMD5:      fileMD5,
		Meta:         meta,
	}, payload)
}

// DestroyKey sends a tombstone RPC for (collectionID, key, timestamp).
func (w *DataWriter) DestroyKey(ctx context.Context, collectionID int64, key string, timestamp int64) (*nodeclient.Reply, error) {
	return w.send(ctx, nodeclient.Control{
		MessageType:  nodeclient.MsgDestroyKey,
		CollectionID: collectionID,
		Key:          key,
		Timestamp:    timestamp,
		SegmentNum:   w.SegmentNum,
	}, nil)
}

func (w *DataWriter) send(ctx context.Context, control nodeclient.Control, payload []byte) (*nodeclient.Reply, error) {
	var spanAttrs []attribute.KeyValue
	if hc, ok := w.client.(*nodeclient.HandoffClient); ok {
		spanAttrs = append(spanAttrs, telemetry.HandoffOf(hc.PrimaryNodeName))
	}
	ctx, span := telemetry.StartNodeSendSpan(ctx, w.NodeName, w.SegmentNum, spanAttrs...)
	defer span.End()

	reply, err := w.client.Send(ctx, nodeclient.Message{Control: control, Body: payload})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, fmt.Errorf("datawriter(%s): %s: %w", w.NodeName, control.MessageType, err)
	}
	return reply, nil
}
