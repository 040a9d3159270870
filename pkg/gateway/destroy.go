package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bowlofstew/nimbus.io/internal/telemetry"
	"github.com/bowlofstew/nimbus.io/pkg/destroyer"
	"github.com/bowlofstew/nimbus.io/pkg/gwerrors"
)

// DeleteKey handles DELETE /data/<collection>/<key>, per spec §4.9 and
// §4.8. Repeated deletes of the same key are idempotent at the HTTP
// level: every call returns 200, but only the first reports a non-zero
// removed byte count (spec §8 property 6).
func (a *Application) DeleteKey(w http.ResponseWriter, r *http.Request) {
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
	annotateLog(ctx, "destroy", collectionName)

	ctx, span := telemetry.StartDestroySpan(ctx, collectionID, key)
	defer span.End()

	writers, err := a.buildWriters()
	if err != nil {
		telemetry.RecordError(ctx, err)
		a.writeError(ctx, w, collectionID, key, err)
		return
	}

	timestamp := newTimestamp()
	telemetry.SetAttributes(ctx, telemetry.Timestamp(timestamp))
	d := destroyer.New(writers, collectionID, key, timestamp, a.Index.SizeLookup)

	started := time.Now()
	removed, err := d.Destroy(ctx, a.Config.ReplyTimeout)
	a.Metrics.DestroyFinished(time.Since(started), err)
	if err != nil {
		telemetry.RecordError(ctx, err)
		if errors.Is(err, gwerrors.ErrAlreadyInProgress) {
			a.writeError(ctx, w, collectionID, key, gwerrors.NewTransientBackend("destroy already in progress for %q", key))
			return
		}
		a.writeError(ctx, w, collectionID, key, gwerrors.NewTransientBackend("%s", err.Error()))
		return
	}

	if removed > 0 {
		a.Accounting.Removed(ctx, collectionID, timestamp, removed)
	}
	if err := a.Index.RecordDestroy(ctx, collectionID, key, timestamp); err != nil {
		a.pushEvent(ctx, "index_record_destroy_failed", collectionID, key, timestamp, err.Error())
	}

	a.pushEvent(ctx, "destroy_complete", collectionID, key, timestamp, "")
	WriteOK(w)
}
