package gateway

import (
	"context"
	"crypto/md5"
	"hash/adler32"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bowlofstew/nimbus.io/internal/telemetry"
	"github.com/bowlofstew/nimbus.io/pkg/archiver"
	"github.com/bowlofstew/nimbus.io/pkg/datawriter"
	"github.com/bowlofstew/nimbus.io/pkg/gwerrors"
	"github.com/bowlofstew/nimbus.io/pkg/segmenter"
	"github.com/bowlofstew/nimbus.io/pkg/slicer"
)

// ArchiveKey handles POST /data/<collection>/<key>, per spec §4.9 and
// §6. The request body is consumed lazily, one slice at a time: each
// slice is erasure-encoded and fanned out to all N writers before the
// next slice is read, so the handler never buffers the full object in
// memory.
func (a *Application) ArchiveKey(w http.ResponseWriter, r *http.Request) {
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
	annotateLog(ctx, "archive", collectionName)

	ctx, span := telemetry.StartArchiveSpan(ctx, collectionID, key,
		telemetry.ClusterK(a.Cluster.K()), telemetry.NodesTotal(a.Cluster.N()))
	defer span.End()

	if r.ContentLength <= 0 {
		a.writeError(ctx, w, collectionID, key, gwerrors.NewForbiddenContentLength("missing or zero Content-Length"))
		return
	}

	writers, err := a.buildWriters()
	if err != nil {
		a.writeError(ctx, w, collectionID, key, err)
		return
	}

	a.archivesInFlight.Add(1)
	defer a.archivesInFlight.Add(-1)

	a.Metrics.ArchiveStarted()
	started := time.Now()

	timestamp := newTimestamp()
	a.pushEvent(ctx, "archive_start", collectionID, key, timestamp, "")

	totalSize, priorSizes, err := a.doArchive(ctx, r, collectionID, key, timestamp, writers)
	a.Metrics.ArchiveFinished(time.Since(started), err)
	if err != nil {
		telemetry.RecordError(ctx, err)
		a.writeError(ctx, w, collectionID, key, err)
		return
	}
	a.Metrics.BytesArchived(totalSize)
	telemetry.SetAttributes(ctx, telemetry.BytesTotal(totalSize), telemetry.Timestamp(timestamp))

	a.Accounting.Added(ctx, collectionID, timestamp, totalSize)
	if priorSize := maxInt64(priorSizes); priorSize > 0 {
		a.Accounting.Removed(ctx, collectionID, timestamp, priorSize)
	}
	if err := a.Index.RecordArchive(ctx, collectionID, key, timestamp, totalSize); err != nil {
		// The object is already durably fanned out to all N nodes; a
		// local-index bookkeeping failure must not fail the response.
		a.pushEvent(ctx, "index_record_archive_failed", collectionID, key, timestamp, err.Error())
	}

	a.pushEvent(ctx, "archive_complete", collectionID, key, timestamp, "")
	WriteOK(w)
}

// doArchive drives the Slicer/Segmenter/Archiver pipeline to completion
// and returns the total object size plus the per-writer prior-version
// sizes reported on the final phase.
func (a *Application) doArchive(ctx context.Context, r *http.Request, collectionID int64, key string, timestamp int64, writers []*datawriter.DataWriter) (int64, []int64, error) {
	seg, err := segmenter.New(a.Cluster.K(), a.Cluster.N())
	if err != nil {
		return 0, nil, gwerrors.NewServerError(err, "segmenter construction failed")
	}

	sl := slicer.New(r.Body, a.Config.SliceSize, r.ContentLength)
	arc := archiver.New(writers, collectionID, key, timestamp)
	meta := buildMetaDict(r)

	fileHash := adler32.New()
	fileDigest := md5.New()

	for {
		slice, err := sl.Next()
		if err == slicer.ErrShortRead {
			return 0, nil, gwerrors.NewBadRequest("request body shorter than declared Content-Length")
		}
		if err != nil {
			return 0, nil, gwerrors.NewServerError(err, "failed reading request body")
		}

		fileHash.Write(slice)
		fileDigest.Write(slice)

		shards, _, err := seg.Encode(slice)
		if err != nil {
			return 0, nil, gwerrors.NewServerError(err, "erasure encode failed")
		}

		if sl.IsLast() {
			sizes, err := arc.ArchiveFinal(ctx, a.Config.ReplyTimeout, shards, r.ContentLength, fileHash.Sum32(), fileDigest.Sum(nil), meta)
			if err != nil {
				return 0, nil, gwerrors.NewTransientBackend("%s", err.Error())
			}
			return r.ContentLength, sizes, nil
		}

		if err := arc.ArchiveSlice(ctx, a.Config.ReplyTimeout, shards, int64(len(slice))); err != nil {
			return 0, nil, gwerrors.NewTransientBackend("%s", err.Error())
		}
	}
}

func maxInt64(vals []int64) int64 {
	var m int64
	for _, v := range vals {
		if v > m {
			m = v
		}
	}
	return m
}
