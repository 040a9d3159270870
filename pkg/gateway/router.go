package gateway

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bowlofstew/nimbus.io/internal/logger"
	"github.com/bowlofstew/nimbus.io/internal/telemetry"
	"github.com/bowlofstew/nimbus.io/pkg/gwerrors"
)

// NewRouter builds the chi router for the client-facing HTTP surface
// described in spec §6. Middleware order mirrors the teacher's
// convention: request id, real IP, request logging, panic recovery,
// timeout.
func NewRouter(app *Application) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(app.Config.ReplyTimeout + 30*time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, app.Stats())
	})

	r.Route("/admin/nodes/{node}", func(r chi.Router) {
		r.Post("/connect", app.ConnectNode)
		r.Post("/disconnect", app.DisconnectNode)
	})

	r.Mount("/collections", NewCollectionsRouter(app))

	r.Route("/data/{collection}", func(r chi.Router) {
		r.Get("/", app.collectionAction)

		r.Route("/{key}", func(r chi.Router) {
			r.Get("/", app.RetrieveKey)
			r.Head("/", app.HeadKey)
			r.Post("/", app.ArchiveKey)
			r.Delete("/", app.DeleteKey)
		})
	})

	return r
}

// collectionAction dispatches GET /data/{collection}?action=... to the
// matching collection-level action. Only "listmatch" is a data-plane
// action; space_usage/create/delete live under the collection CRUD
// routes that NewRouter mounts at /collections.
func (a *Application) collectionAction(w http.ResponseWriter, r *http.Request) {
	switch action := r.URL.Query().Get("action"); action {
	case "listmatch":
		a.ListKeys(w, r)
	default:
		a.writeError(r.Context(), w, 0, "", gwerrors.NewBadRequest("unrecognized or missing action %q", action))
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())

		lc := logger.NewLogContext(clientIP(r))
		lc.TraceID = telemetry.TraceID(r.Context())
		lc.SpanID = telemetry.SpanID(r.Context())
		ctx := logger.WithContext(r.Context(), lc)
		r = r.WithContext(ctx)

		logger.DebugCtx(ctx, "gateway request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.InfoCtx(ctx, "gateway request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.DurationMs(lc.DurationMs()),
		)
	})
}

// clientIP strips the port from RemoteAddr, falling back to the raw
// value if it isn't a host:port pair (e.g. in tests using httptest).
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
