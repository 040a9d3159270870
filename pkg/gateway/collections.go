// Collection CRUD (create_collection, delete_collection,
// list_collections, space_usage) is not part of spec.md's core
// component table, but it is not excluded by the Non-goals either —
// those name "admin web-manager CRUD", a distinct original component.
// These handlers are thin delegations to the central database.
package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bowlofstew/nimbus.io/pkg/gwerrors"
)

// NewCollectionsRouter mounts the Collection CRUD surface under its own
// path, separate from the per-object /data/... routes.
func NewCollectionsRouter(app *Application) http.Handler {
	r := chi.NewRouter()
	r.Get("/", app.ListCollections)
	r.Post("/{collection}", app.CreateCollection)
	r.Delete("/{collection}", app.DeleteCollection)
	r.Get("/{collection}/space_usage", app.SpaceUsage)
	return r
}

// ListCollections returns every collection owned by the authenticated
// user.
func (a *Application) ListCollections(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := a.authenticate(ctx, r)
	if err != nil {
		a.writeError(ctx, w, 0, "", err)
		return
	}

	collections, err := a.Collections.ListCollections(ctx, userID)
	if err != nil {
		a.writeError(ctx, w, 0, "", gwerrors.NewServerError(err, "failed listing collections"))
		return
	}

	WriteJSON(w, http.StatusOK, collections)
}

// CreateCollection creates a new collection owned by the authenticated
// user.
func (a *Application) CreateCollection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "collection")

	userID, err := a.authenticate(ctx, r)
	if err != nil {
		a.writeError(ctx, w, 0, "", err)
		return
	}

	collectionID, err := a.Collections.CreateCollection(ctx, userID, name)
	if err != nil {
		a.writeError(ctx, w, 0, "", gwerrors.NewBadRequest("could not create collection %q: %s", name, err.Error()))
		return
	}

	WriteJSON(w, http.StatusOK, CollectionInfo{Name: name, ID: collectionID})
}

// DeleteCollection deletes a collection owned by the authenticated user.
// A user's default collection can never be deleted.
func (a *Application) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "collection")

	userID, err := a.authenticate(ctx, r)
	if err != nil {
		a.writeError(ctx, w, 0, "", err)
		return
	}

	_, collectionID, err := a.resolveCollection(ctx, name)
	if err != nil {
		a.writeError(ctx, w, 0, "", err)
		return
	}

	isDefault, err := a.Collections.IsDefaultCollection(ctx, collectionID)
	if err != nil {
		a.writeError(ctx, w, collectionID, "", gwerrors.NewServerError(err, "failed checking default-collection status"))
		return
	}
	if isDefault {
		a.writeError(ctx, w, collectionID, "", gwerrors.NewBadRequest("cannot delete the default collection"))
		return
	}

	if err := a.Collections.DeleteCollection(ctx, userID, name); err != nil {
		a.writeError(ctx, w, collectionID, "", gwerrors.NewServerError(err, "failed deleting collection %q", name))
		return
	}

	WriteOK(w)
}

// SpaceUsage reports the collection's current byte usage.
func (a *Application) SpaceUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "collection")

	if _, err := a.authenticate(ctx, r); err != nil {
		a.writeError(ctx, w, 0, "", err)
		return
	}

	_, collectionID, err := a.resolveCollection(ctx, name)
	if err != nil {
		a.writeError(ctx, w, 0, "", err)
		return
	}

	bytes, err := a.Collections.SpaceUsage(ctx, collectionID)
	if err != nil {
		a.writeError(ctx, w, collectionID, "", gwerrors.NewServerError(err, "failed computing space usage"))
		return
	}

	WriteJSON(w, http.StatusOK, map[string]int64{"bytes": bytes})
}
