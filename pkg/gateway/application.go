package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bowlofstew/nimbus.io/internal/logger"
	"github.com/bowlofstew/nimbus.io/internal/telemetry"
	"github.com/bowlofstew/nimbus.io/pkg/cluster"
	"github.com/bowlofstew/nimbus.io/pkg/datareader"
	"github.com/bowlofstew/nimbus.io/pkg/datawriter"
	"github.com/bowlofstew/nimbus.io/pkg/gwerrors"
	"github.com/bowlofstew/nimbus.io/pkg/metrics"
	"github.com/bowlofstew/nimbus.io/pkg/signing"
)

// Config carries the Application's request-shaping knobs, sourced from
// the layered configuration (env > file > defaults) per spec §6.
type Config struct {
	SliceSize    int
	ReplyTimeout time.Duration
}

// Application is the HTTP dispatcher described in spec §4.9: it parses
// the URL into an action, authenticates the request, resolves the
// collection, builds per-request writers/readers against the shared
// Cluster (with handoff wrapping for down nodes), and invokes the
// Archiver/Retriever/Destroyer. It is the single catch-all error
// boundary — core components raise typed failures; Application is where
// they become HTTP status codes.
type Application struct {
	Cluster     *cluster.Cluster
	Collections CollectionResolver
	Index       NodeIndex
	Accounting  Accounting
	Events      EventPusher
	Config      Config
	Metrics     metrics.GatewayMetrics

	archivesInFlight  atomic.Int64
	retrievesInFlight atomic.Int64
}

// New builds an Application over its collaborators. cfg.SliceSize and
// cfg.ReplyTimeout must already be resolved (see pkg/config for the
// NIMBUSIO_SLICE_SIZE / NIMBUS_IO_SLICE_SIZE reconciliation). A nil
// metrics.GatewayMetrics is fine — it is replaced with
// metrics.NoopGatewayMetrics, so metrics can be disabled with zero overhead.
func New(clust *cluster.Cluster, collections CollectionResolver, index NodeIndex, accounting Accounting, events EventPusher, cfg Config, gm metrics.GatewayMetrics) *Application {
	if gm == nil {
		gm = metrics.NoopGatewayMetrics{}
	}
	return &Application{
		Cluster:     clust,
		Collections: collections,
		Index:       index,
		Accounting:  accounting,
		Events:      events,
		Config:      cfg,
		Metrics:     gm,
	}
}

// Stats is a point-in-time snapshot of in-flight operation counts, per
// spec §4.9 ("increments in-flight stats {archives, retrieves} around
// each operation").
type Stats struct {
	ArchivesInFlight  int64
	RetrievesInFlight int64
	ConnectedNodes    int
	N                 int
	K                 int
	H                 int
	Nodes             map[string]bool
}

func (a *Application) Stats() Stats {
	return Stats{
		ArchivesInFlight:  a.archivesInFlight.Load(),
		RetrievesInFlight: a.retrievesInFlight.Load(),
		ConnectedNodes:    a.Cluster.ConnectedCount(),
		N:                 a.Cluster.N(),
		K:                 a.Cluster.K(),
		H:                 a.Cluster.H(),
		Nodes:             a.Cluster.NodeStatus(),
	}
}

func (a *Application) pushEvent(ctx context.Context, name string, collectionID int64, key string, timestamp int64, detail string) {
	if a.Events == nil {
		return
	}
	a.Events.Push(ctx, Event{
		Name:         name,
		CollectionID: collectionID,
		Key:          key,
		Timestamp:    timestamp,
		Detail:       detail,
		At:           timeNow(),
	})
}

// timeNow is a seam so request handling never calls time.Now() in more
// than one place per logical "now" — kept as a thin wrapper for clarity
// at call sites, not for mocking (the gateway is not unit-tested against
// a fake clock).
func timeNow() time.Time { return time.Now() }

// newTimestamp picks the logical version for a new archive or destroy,
// per spec §3: "timestamp is chosen once by the gateway at request
// entry." Nanosecond resolution keeps successive requests to the same
// key strictly ordered without a central sequence.
func newTimestamp() int64 { return time.Now().UnixNano() }

// authenticate validates the Authorization/X-DIYAPI-Timestamp headers
// against the signing key for the presented key id, per spec §6, and
// returns the owning user id for handlers (like Collection CRUD) that
// need it.
func (a *Application) authenticate(ctx context.Context, r *http.Request) (int64, error) {
	keyID, sig, err := parseAuthorizationHeader(r.Header.Get("Authorization"))
	if err != nil {
		return 0, gwerrors.NewAuthFailure("%s", err.Error())
	}

	tsHeader := r.Header.Get("X-DIYAPI-Timestamp")
	if tsHeader == "" {
		return 0, gwerrors.NewAuthFailure("missing X-DIYAPI-Timestamp header")
	}
	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return 0, gwerrors.NewAuthFailure("malformed X-DIYAPI-Timestamp header")
	}

	userID, secret, err := a.Collections.UserForKey(ctx, keyID)
	if err != nil {
		return 0, gwerrors.NewAuthFailure("unknown key id %q", keyID)
	}

	if err := signing.Verify(secret, r.Method, ts, timeNow(), sig); err != nil {
		return 0, gwerrors.NewAuthFailure("%s", err.Error())
	}
	telemetry.SetAttributes(ctx, telemetry.KeyID(keyID))
	if lc := logger.FromContext(ctx); lc != nil {
		lc.KeyID = keyID
	}
	return userID, nil
}

// parseAuthorizationHeader splits "DIYAPI <key_id>:<hex_signature>" into
// its two parts.
func parseAuthorizationHeader(h string) (keyID, signature string, err error) {
	const prefix = "DIYAPI "
	if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
		return "", "", fmt.Errorf("missing or malformed Authorization header")
	}
	rest := h[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == ':' {
			return rest[:i], rest[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("malformed Authorization header: missing key_id:signature separator")
}

// resolveCollection resolves the collection name in the URL to
// (userID, collectionID), per spec §4.9 ("fail 400 on unknown").
func (a *Application) resolveCollection(ctx context.Context, name string) (userID, collectionID int64, err error) {
	userID, collectionID, err = a.Collections.Resolve(ctx, name)
	if err != nil {
		return 0, 0, gwerrors.NewBadRequest("unknown collection %q", name)
	}
	return userID, collectionID, nil
}

// annotateLog records the operation and collection name on the
// request's LogContext (set up by requestLogger) so the completion log
// line and any InfoCtx/WarnCtx call downstream carries them.
func annotateLog(ctx context.Context, operation, collection string) {
	if lc := logger.FromContext(ctx); lc != nil {
		lc.Operation = operation
		lc.Collection = collection
	}
}

// buildWriters constructs one DataWriter per configured node, wrapping
// down nodes in a HandoffClient per spec §4.9 ("before constructing
// writers, Application inspects connected-client counts ... fails 503
// immediately" if fewer than K are connected).
func (a *Application) buildWriters() ([]*datawriter.DataWriter, error) {
	handles, err := a.Cluster.ClientsFor()
	if err != nil {
		return nil, gwerrors.NewTransientBackend("%s", err.Error())
	}
	writers := make([]*datawriter.DataWriter, len(handles))
	for i, h := range handles {
		writers[i] = datawriter.New(h.Node.Name, h.Node.SegmentNum, h.Client)
	}
	return writers, nil
}

// buildReaders constructs one DataReader per configured node. Unlike
// buildWriters, a down node is left as its own direct (disconnected)
// client rather than wrapped in a HandoffClient: handoff only covers
// writes, per spec §4.7 ("Retriever tolerates up to N-K missing or
// failed readers"); a down node here must simply fail its reads so that
// tolerance, not silently reroute to backups that never received the
// segment.
func (a *Application) buildReaders() ([]*datareader.DataReader, error) {
	handles, err := a.Cluster.ReadersFor()
	if err != nil {
		return nil, gwerrors.NewTransientBackend("%s", err.Error())
	}
	readers := make([]*datareader.DataReader, len(handles))
	for i, h := range handles {
		readers[i] = datareader.New(h.Node.Name, h.Node.SegmentNum, h.Client)
	}
	return readers, nil
}

// writeError maps err to its HTTP status and writes the standard JSON
// error envelope, per spec §7. ServerError-class errors are logged and
// pushed on the event channel.
func (a *Application) writeError(ctx context.Context, w http.ResponseWriter, collectionID int64, key string, err error) {
	status := gwerrors.HTTPStatus(err)

	if ge, ok := gwerrors.As(err); ok && ge.Code == gwerrors.CodeTransientBackend {
		w.Header().Set("Retry-After", strconv.Itoa(ge.RetryAfter))
	}
	if status == http.StatusInternalServerError {
		logger.Error("gateway request failed", "error", err, "collection_id", collectionID, "key", key)
		a.pushEvent(ctx, "server_error", collectionID, key, 0, err.Error())
	}

	WriteJSONError(w, status, err.Error())
}
