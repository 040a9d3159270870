package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bowlofstew/nimbus.io/internal/logger"
	"github.com/bowlofstew/nimbus.io/internal/telemetry"
	"github.com/bowlofstew/nimbus.io/pkg/gwerrors"
	"github.com/bowlofstew/nimbus.io/pkg/retriever"
	"github.com/bowlofstew/nimbus.io/pkg/segmenter"
)

// RetrieveKey handles GET /data/<collection>/<key>, per spec §4.9 and
// §4.7. Once the response status line is written, an HTTP response
// cannot change status mid-stream; a mid-stream fan-in failure is
// surfaced the way spec §5 describes — by terminating the body early —
// rather than by a literal status-code flip, since the wire protocol has
// already committed to 200 by the time streaming starts.
func (a *Application) RetrieveKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	collectionName := chi.URLParam(r, "collection")
	key := chi.URLParam(r, "key")

	if _, err := a.authenticate(ctx, r); err != nil {
		a.writeError(ctx, w, 0, key, err)
		return
	}

	_, collectionID, err := a.resolveCollection(ctx, collectionName)
	if err != nil {
		a.writeError(ctx, w, 0, key, err)
		return
	}
	annotateLog(ctx, "retrieve", collectionName)

	ctx, span := telemetry.StartRetrieveSpan(ctx, collectionID, key, telemetry.ClusterK(a.Cluster.K()))
	defer span.End()

	readers, err := a.buildReaders()
	if err != nil {
		telemetry.RecordError(ctx, err)
		a.writeError(ctx, w, collectionID, key, err)
		return
	}

	a.retrievesInFlight.Add(1)
	defer a.retrievesInFlight.Add(-1)

	a.Metrics.RetrieveStarted()
	started := time.Now()

	ret := retriever.New(readers, collectionID, key, a.Cluster.K())

	start, err := ret.Start(ctx, a.Config.ReplyTimeout)
	if err != nil {
		a.Metrics.RetrieveFinished(time.Since(started), err)
		telemetry.RecordError(ctx, err)
		if errors.Is(err, gwerrors.ErrNotFound) {
			a.writeError(ctx, w, collectionID, key, gwerrors.NewNotFound("key %q not found", key))
			return
		}
		a.writeError(ctx, w, collectionID, key, gwerrors.NewTransientBackend("%s", err.Error()))
		return
	}
	telemetry.SetAttributes(ctx, telemetry.BytesTotal(start.Info.TotalSize), telemetry.Timestamp(start.Info.Timestamp), telemetry.SegmentCount(start.Info.SegmentCount))

	seg, err := segmenter.New(a.Cluster.K(), a.Cluster.N())
	if err != nil {
		a.writeError(ctx, w, collectionID, key, gwerrors.NewServerError(err, "segmenter construction failed"))
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(start.Info.TotalSize, 10))
	if len(start.Info.FileMD5) > 0 {
		w.Header().Set("Content-MD5", base64.StdEncoding.EncodeToString(start.Info.FileMD5))
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)

	if err := a.streamRetrieve(ctx, w, ret, seg, start); err != nil {
		a.Metrics.RetrieveFinished(time.Since(started), err)
		logger.Warn("mid-stream retrieve failure, truncating response", "collection_id", collectionID, "key", key, "error", err)
		a.pushEvent(ctx, "retrieve_failed_mid_stream", collectionID, key, start.Info.Timestamp, err.Error())
		return
	}

	a.Metrics.RetrieveFinished(time.Since(started), nil)
	a.Metrics.BytesRetrieved(start.Info.TotalSize)
	a.Accounting.Retrieved(ctx, collectionID, start.Info.Timestamp, start.Info.TotalSize)
	a.pushEvent(ctx, "retrieve_complete", collectionID, key, start.Info.Timestamp, "")
}

func (a *Application) streamRetrieve(ctx context.Context, w http.ResponseWriter, ret *retriever.Retriever, seg *segmenter.Segmenter, start *retriever.StartResult) error {
	info := start.Info

	sliceOriginalSize := func(seq int) int64 {
		if seq == info.SegmentCount-1 {
			return info.TotalSize - info.SliceSize*int64(info.SegmentCount-1)
		}
		return info.SliceSize
	}

	b, err := seg.Decode(start.Slice0, int(sliceOriginalSize(0)))
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	for seq := 1; seq < info.SegmentCount; seq++ {
		final := seq == info.SegmentCount-1
		sliceResult, err := ret.Next(ctx, a.Config.ReplyTimeout, seq, final)
		if err != nil {
			return err
		}

		b, err := seg.Decode(sliceResult, int(sliceOriginalSize(seq)))
		if err != nil {
			return err
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}

	return nil
}
