package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/bowlofstew/nimbus.io/internal/logger"
	"github.com/bowlofstew/nimbus.io/internal/telemetry"
	"github.com/bowlofstew/nimbus.io/pkg/gwerrors"
)

// ListKeys handles GET /data/<collection>?action=listmatch&prefix=<p>,
// per spec §4.9's Listmatcher row: 200 JSON array, 503 on backend error.
func (a *Application) ListKeys(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	collectionName := chi.URLParam(r, "collection")

	if _, err := a.authenticate(ctx, r); err != nil {
		a.writeError(ctx, w, 0, "", err)
		return
	}

	_, collectionID, err := a.resolveCollection(ctx, collectionName)
	if err != nil {
		a.writeError(ctx, w, 0, "", err)
		return
	}
	annotateLog(ctx, "listmatch", collectionName)

	prefix := r.URL.Query().Get("prefix")

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanListmatch, trace.WithAttributes(telemetry.CollectionID(collectionID), telemetry.Key(prefix)))
	defer span.End()

	keys, err := a.Index.ListMatch(ctx, collectionID, prefix)
	if err != nil {
		telemetry.RecordError(ctx, err)
		a.writeError(ctx, w, collectionID, "", gwerrors.NewTransientBackend("%s", err.Error()))
		return
	}
	logger.Debug("listmatch completed", logger.Collection(collectionName), logger.Pattern(prefix), logger.Entries(len(keys)))

	WriteJSON(w, http.StatusOK, keys)
}
