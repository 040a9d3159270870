package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bowlofstew/nimbus.io/internal/logger"
	"github.com/bowlofstew/nimbus.io/pkg/gwerrors"
)

// ConnectNode handles POST /admin/nodes/{node}/connect: dials the named
// node on the operator's behalf. Unauthenticated, like /health — both
// are the same local-operator surface nimbusio-web-serverctl talks to.
func (a *Application) ConnectNode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	node := chi.URLParam(r, "node")

	if err := a.Cluster.ConnectNode(ctx, node); err != nil {
		logger.WarnCtx(ctx, "admin connect failed", logger.Node(node), logger.Err(err))
		a.writeError(ctx, w, 0, "", gwerrors.NewBadRequest("%s", err.Error()))
		return
	}
	logger.InfoCtx(ctx, "admin connect succeeded", logger.Node(node))
	WriteOK(w)
}

// DisconnectNode handles POST /admin/nodes/{node}/disconnect: forces the
// named node's client down, the same state a real transport failure
// leaves it in.
func (a *Application) DisconnectNode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	node := chi.URLParam(r, "node")

	if err := a.Cluster.DisconnectNode(node); err != nil {
		logger.WarnCtx(ctx, "admin disconnect failed", logger.Node(node), logger.Err(err))
		a.writeError(ctx, w, 0, "", gwerrors.NewBadRequest("%s", err.Error()))
		return
	}
	logger.InfoCtx(ctx, "admin disconnect succeeded", logger.Node(node))
	WriteOK(w)
}
