package gateway

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/bowlofstew/nimbus.io/internal/telemetry"
	"github.com/bowlofstew/nimbus.io/pkg/gwerrors"
)

// HeadKey handles HEAD /data/<collection>/<key>, per spec §4.9's
// StatGetter row: headers only, 404 if tombstoned or missing.
func (a *Application) HeadKey(w http.ResponseWriter, r *http.Request) {
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
	annotateLog(ctx, "head", collectionName)

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanHead, trace.WithAttributes(telemetry.CollectionID(collectionID), telemetry.Key(key)))
	defer span.End()

	stat, err := a.Index.Stat(ctx, collectionID, key)
	if err != nil || stat == nil {
		telemetry.RecordError(ctx, err)
		a.writeError(ctx, w, collectionID, key, gwerrors.NewNotFound("key %q not found", key))
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(stat.Size, 10))
	if len(stat.FileMD5) > 0 {
		w.Header().Set("Content-MD5", base64.StdEncoding.EncodeToString(stat.FileMD5))
	}
	w.WriteHeader(http.StatusOK)
}
