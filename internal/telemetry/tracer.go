package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for the gateway's own fan-out operations. These follow
// OpenTelemetry semantic conventions where applicable; the rest are
// domain-specific to the archive/retrieve/destroy/listmatch surface.
const (
	// ========================================================================
	// Client attributes (protocol-agnostic)
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	// ========================================================================
	// Gateway operation attributes
	// ========================================================================
	AttrOperation     = "gateway.operation"  // archive, retrieve, destroy, listmatch, head
	AttrCollection    = "gateway.collection" // collection name
	AttrCollectionID  = "gateway.collection_id"
	AttrKey           = "gateway.key"       // object key
	AttrTimestamp     = "gateway.timestamp" // logical version (UnixNano)
	AttrBytesTotal    = "gateway.bytes_total"
	AttrSliceSize     = "gateway.slice_size"
	AttrSegmentCount  = "gateway.segment_count"

	// ========================================================================
	// Cluster / node attributes
	// ========================================================================
	AttrNode           = "cluster.node"    // node name
	AttrSegmentNum     = "cluster.segment" // 1-based segment number
	AttrNodesConnected = "cluster.nodes_connected"
	AttrNodesTotal     = "cluster.nodes_total"
	AttrK              = "cluster.k"
	AttrH              = "cluster.h"
	AttrHandoffOf      = "cluster.handoff_of" // set when a send is a handoff copy

	// ========================================================================
	// User/Auth attributes
	// ========================================================================
	AttrKeyID = "auth.key_id"
)

// Span names for the gateway's own operations and per-node RPCs.
const (
	SpanArchive   = "gateway.archive"
	SpanRetrieve  = "gateway.retrieve"
	SpanDestroy   = "gateway.destroy"
	SpanListmatch = "gateway.listmatch"
	SpanHead      = "gateway.head"

	SpanNodeSend = "node.send"
)

// ClientIP returns an attribute for client IP address.
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address.
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// Operation returns an attribute for the gateway operation name.
func Operation(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

// Collection returns an attribute for the collection name.
func Collection(name string) attribute.KeyValue {
	return attribute.String(AttrCollection, name)
}

// CollectionID returns an attribute for the resolved collection id.
func CollectionID(id int64) attribute.KeyValue {
	return attribute.Int64(AttrCollectionID, id)
}

// Key returns an attribute for the object key.
func Key(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// Timestamp returns an attribute for the logical version timestamp.
func Timestamp(ts int64) attribute.KeyValue {
	return attribute.Int64(AttrTimestamp, ts)
}

// BytesTotal returns an attribute for the object's total size.
func BytesTotal(n int64) attribute.KeyValue {
	return attribute.Int64(AttrBytesTotal, n)
}

// SliceSize returns an attribute for the configured streaming slice size.
func SliceSize(n int) attribute.KeyValue {
	return attribute.Int(AttrSliceSize, n)
}

// SegmentCount returns an attribute for the object's segment count.
func SegmentCount(n int) attribute.KeyValue {
	return attribute.Int(AttrSegmentCount, n)
}

// Node returns an attribute for a storage node's name.
func Node(name string) attribute.KeyValue {
	return attribute.String(AttrNode, name)
}

// SegmentNum returns an attribute for a node's 1-based segment number.
func SegmentNum(n int) attribute.KeyValue {
	return attribute.Int(AttrSegmentNum, n)
}

// NodesConnected returns an attribute for the current connected-node count.
func NodesConnected(n int) attribute.KeyValue {
	return attribute.Int(AttrNodesConnected, n)
}

// NodesTotal returns an attribute for the configured cluster size N.
func NodesTotal(n int) attribute.KeyValue {
	return attribute.Int(AttrNodesTotal, n)
}

// ClusterK returns an attribute for the minimum shard count K.
func ClusterK(k int) attribute.KeyValue {
	return attribute.Int(AttrK, k)
}

// ClusterH returns an attribute for the handoff fan-out H.
func ClusterH(h int) attribute.KeyValue {
	return attribute.Int(AttrH, h)
}

// HandoffOf returns an attribute naming the primary node a handoff send
// is standing in for.
func HandoffOf(primary string) attribute.KeyValue {
	return attribute.String(AttrHandoffOf, primary)
}

// KeyID returns an attribute for the signing key id presented on a request.
func KeyID(id string) attribute.KeyValue {
	return attribute.String(AttrKeyID, id)
}

// StartArchiveSpan starts a span for an archive request.
func StartArchiveSpan(ctx context.Context, collectionID int64, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{CollectionID(collectionID), Key(key)}, attrs...)
	return StartSpan(ctx, SpanArchive, trace.WithAttributes(allAttrs...))
}

// StartRetrieveSpan starts a span for a retrieve request.
func StartRetrieveSpan(ctx context.Context, collectionID int64, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{CollectionID(collectionID), Key(key)}, attrs...)
	return StartSpan(ctx, SpanRetrieve, trace.WithAttributes(allAttrs...))
}

// StartDestroySpan starts a span for a destroy request.
func StartDestroySpan(ctx context.Context, collectionID int64, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{CollectionID(collectionID), Key(key)}, attrs...)
	return StartSpan(ctx, SpanDestroy, trace.WithAttributes(allAttrs...))
}

// StartNodeSendSpan starts a span for a single per-node RPC, tagging the
// node name, its segment number, and (if this send is a handoff copy)
// the primary node it stands in for.
func StartNodeSendSpan(ctx context.Context, nodeName string, segmentNum int, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Node(nodeName), SegmentNum(segmentNum)}, attrs...)
	return StartSpan(ctx, SpanNodeSend, trace.WithAttributes(allAttrs...))
}
