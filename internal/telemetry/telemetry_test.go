package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "nimbusio-web-server", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Enabled = false

	shutdown, err := Init(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	// Should be able to call shutdown without error
	err = shutdown(ctx)
	assert.NoError(t, err)

	// Should not be enabled
	assert.False(t, IsEnabled())
}

func TestTracerReturnsNoOp(t *testing.T) {
	// Reset state
	tracer = nil
	enabled = false

	// Without initialization, should return no-op tracer
	tr := Tracer()
	require.NotNil(t, tr)
}

func TestStartSpan(t *testing.T) {
	ctx := context.Background()

	// Even without initialization, StartSpan should work (no-op)
	newCtx, span := StartSpan(ctx, "test.operation")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)

	// Should be able to end the span
	span.End()
}

func TestSpanFromContext(t *testing.T) {
	ctx := context.Background()

	// Should return a span even without active span
	span := SpanFromContext(ctx)
	require.NotNil(t, span)
}

func TestAddEvent(t *testing.T) {
	ctx := context.Background()

	// Should not panic with no active span
	require.NotPanics(t, func() {
		AddEvent(ctx, "test.event")
	})
}

func TestRecordError(t *testing.T) {
	ctx := context.Background()

	// Should not panic with nil error
	require.NotPanics(t, func() {
		RecordError(ctx, nil)
	})

	// Should not panic with error
	require.NotPanics(t, func() {
		RecordError(ctx, errors.New("test error"))
	})
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Ok, "success")
	})

	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Error, "failed")
	})
}

func TestSetAttributes(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetAttributes(ctx, ClientIP("192.168.1.1"))
	})
}

func TestTraceID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	traceID := TraceID(ctx)
	assert.Equal(t, "", traceID)
}

func TestSpanID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	spanID := SpanID(ctx)
	assert.Equal(t, "", spanID)
}

func TestAttributeHelpers(t *testing.T) {
	t.Run("ClientIP", func(t *testing.T) {
		attr := ClientIP("192.168.1.100")
		assert.Equal(t, AttrClientIP, string(attr.Key))
		assert.Equal(t, "192.168.1.100", attr.Value.AsString())
	})

	t.Run("ClientAddr", func(t *testing.T) {
		attr := ClientAddr("192.168.1.100:12345")
		assert.Equal(t, AttrClientAddr, string(attr.Key))
		assert.Equal(t, "192.168.1.100:12345", attr.Value.AsString())
	})

	t.Run("Operation", func(t *testing.T) {
		attr := Operation("archive")
		assert.Equal(t, AttrOperation, string(attr.Key))
		assert.Equal(t, "archive", attr.Value.AsString())
	})

	t.Run("Collection", func(t *testing.T) {
		attr := Collection("my-collection")
		assert.Equal(t, AttrCollection, string(attr.Key))
		assert.Equal(t, "my-collection", attr.Value.AsString())
	})

	t.Run("CollectionID", func(t *testing.T) {
		attr := CollectionID(42)
		assert.Equal(t, AttrCollectionID, string(attr.Key))
		assert.Equal(t, int64(42), attr.Value.AsInt64())
	})

	t.Run("Key", func(t *testing.T) {
		attr := Key("path/to/object")
		assert.Equal(t, AttrKey, string(attr.Key))
		assert.Equal(t, "path/to/object", attr.Value.AsString())
	})

	t.Run("Timestamp", func(t *testing.T) {
		attr := Timestamp(1234567890)
		assert.Equal(t, AttrTimestamp, string(attr.Key))
		assert.Equal(t, int64(1234567890), attr.Value.AsInt64())
	})

	t.Run("BytesTotal", func(t *testing.T) {
		attr := BytesTotal(1048576)
		assert.Equal(t, AttrBytesTotal, string(attr.Key))
		assert.Equal(t, int64(1048576), attr.Value.AsInt64())
	})

	t.Run("SliceSize", func(t *testing.T) {
		attr := SliceSize(65536)
		assert.Equal(t, AttrSliceSize, string(attr.Key))
		assert.Equal(t, int64(65536), attr.Value.AsInt64())
	})

	t.Run("SegmentCount", func(t *testing.T) {
		attr := SegmentCount(4)
		assert.Equal(t, AttrSegmentCount, string(attr.Key))
		assert.Equal(t, int64(4), attr.Value.AsInt64())
	})

	t.Run("Node", func(t *testing.T) {
		attr := Node("node-a")
		assert.Equal(t, AttrNode, string(attr.Key))
		assert.Equal(t, "node-a", attr.Value.AsString())
	})

	t.Run("SegmentNum", func(t *testing.T) {
		attr := SegmentNum(2)
		assert.Equal(t, AttrSegmentNum, string(attr.Key))
		assert.Equal(t, int64(2), attr.Value.AsInt64())
	})

	t.Run("NodesConnected", func(t *testing.T) {
		attr := NodesConnected(3)
		assert.Equal(t, AttrNodesConnected, string(attr.Key))
		assert.Equal(t, int64(3), attr.Value.AsInt64())
	})

	t.Run("NodesTotal", func(t *testing.T) {
		attr := NodesTotal(5)
		assert.Equal(t, AttrNodesTotal, string(attr.Key))
		assert.Equal(t, int64(5), attr.Value.AsInt64())
	})

	t.Run("ClusterK", func(t *testing.T) {
		attr := ClusterK(3)
		assert.Equal(t, AttrK, string(attr.Key))
		assert.Equal(t, int64(3), attr.Value.AsInt64())
	})

	t.Run("ClusterH", func(t *testing.T) {
		attr := ClusterH(2)
		assert.Equal(t, AttrH, string(attr.Key))
		assert.Equal(t, int64(2), attr.Value.AsInt64())
	})

	t.Run("HandoffOf", func(t *testing.T) {
		attr := HandoffOf("node-b")
		assert.Equal(t, AttrHandoffOf, string(attr.Key))
		assert.Equal(t, "node-b", attr.Value.AsString())
	})

	t.Run("KeyID", func(t *testing.T) {
		attr := KeyID("akid-123")
		assert.Equal(t, AttrKeyID, string(attr.Key))
		assert.Equal(t, "akid-123", attr.Value.AsString())
	})
}

func TestStartArchiveSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartArchiveSpan(ctx, 7, "my-key")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	// With additional attributes
	newCtx2, span2 := StartArchiveSpan(ctx, 7, "my-key", BytesTotal(4096))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}

func TestStartRetrieveSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartRetrieveSpan(ctx, 7, "my-key")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}

func TestStartDestroySpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartDestroySpan(ctx, 7, "my-key", Timestamp(123))
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}

func TestStartNodeSendSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartNodeSendSpan(ctx, "node-a", 1)
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	// With a handoff attribute
	newCtx2, span2 := StartNodeSendSpan(ctx, "node-c", 1, HandoffOf("node-a"))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}
