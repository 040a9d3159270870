// Package datareader implements the typed read-side facade over a
// nodeclient.Client, per spec §4.5. Facades are stateless and cheap; they
// do not buffer.
package datareader

import (
	"context"
	"fmt"

	"github.com/bowlofstew/nimbus.io/internal/telemetry"
	"github.com/bowlofstew/nimbus.io/pkg/nodeclient"
)

// DataReader exposes the three retrieve phases as typed calls over one
// client.
type DataReader struct {
	NodeName   string
	SegmentNum int
	client     nodeclient.Client
}

// New wraps client as a DataReader for the node at the given 1-based
// segment number.
func New(nodeName string, segmentNum int, client nodeclient.Client) *DataReader {
	return &DataReader{NodeName: nodeName, SegmentNum: segmentNum, client: client}
}

// Connected reports the underlying client's connectivity.
func (r *DataReader) Connected() bool { return r.client.Connected() }

// RetrieveStart begins a retrieve transaction, requesting slice 0.
func (r *DataReader) RetrieveStart(ctx context.Context, collectionID int64, key string) (*nodeclient.Reply, error) {
	return r.send(ctx, nodeclient.Control{
		MessageType:  nodeclient.MsgRetrieveStart,
		CollectionID: collectionID,
		Key:          key,
		SegmentNum:   r.SegmentNum,
		Sequence:     0,
	})
}

// RetrieveNext pulls an intermediate slice.
func (r *DataReader) RetrieveNext(ctx context.Context, collectionID int64, key string, timestamp int64, sequence int) (*nodeclient.Reply, error) {
	return r.send(ctx, nodeclient.Control{
		MessageType:  nodeclient.MsgRetrieveNext,
		CollectionID: collectionID,
		Key:          key,
		Timestamp:    timestamp,
		SegmentNum:   r.SegmentNum,
		Sequence:     sequence,
	})
}

// RetrieveFinal pulls the last slice.
func (r *DataReader) RetrieveFinal(ctx context.Context, collectionID int64, key string, timestamp int64, sequence int) (*nodeclient.Reply, error) {
	return r.send(ctx, nodeclient.Control{
		MessageType:  nodeclient.MsgRetrieveFinal,
		CollectionID: collectionID,
		Key:          key,
		Timestamp:    timestamp,
		SegmentNum:   r.SegmentNum,
		Sequence:     sequence,
	})
}

func (r *DataReader) send(ctx context.Context, control nodeclient.Control) (*nodeclient.Reply, error) {
	ctx, span := telemetry.StartNodeSendSpan(ctx, r.NodeName, r.SegmentNum)
	defer span.End()

	reply, err := r.client.Send(ctx, nodeclient.Message{Control: control})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, fmt.Errorf("datareader(%s): %s: %w", r.NodeName, control.MessageType, err)
	}
	return reply, nil
}
