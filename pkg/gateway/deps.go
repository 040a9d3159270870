// Package gateway implements the Application: the HTTP dispatcher that
// sequences Segmenter, Slicer, Archiver, Retriever, and Destroyer per
// request, per spec §4.9.
package gateway

import (
	"context"
	"time"
)

// CollectionInfo is one row of a list_collections response.
type CollectionInfo struct {
	Name      string
	ID        int64
	IsDefault bool
}

// CollectionResolver is the central-database contract: collection name
// resolution and signing-key lookup for the core gateway path (spec
// §4.9, §6), plus the supplemented Collection CRUD surface from
// original_source/ (create/delete/list_collections/space_usage).
// Implemented by pkg/centraldb against the central database.
type CollectionResolver interface {
	// Resolve maps a collection name to its owning user and numeric id,
	// per spec §4.9 ("fail 400 on unknown").
	Resolve(ctx context.Context, name string) (userID int64, collectionID int64, err error)
	// UserForKey returns the owning user id and HMAC signing key material
	// for the key_id presented in the Authorization header.
	UserForKey(ctx context.Context, keyID string) (userID int64, secret []byte, err error)

	CreateCollection(ctx context.Context, userID int64, name string) (collectionID int64, err error)
	DeleteCollection(ctx context.Context, userID int64, name string) error
	ListCollections(ctx context.Context, userID int64) ([]CollectionInfo, error)
	SpaceUsage(ctx context.Context, collectionID int64) (bytes int64, err error)
	IsDefaultCollection(ctx context.Context, collectionID int64) (bool, error)
}

// KeyStat is the result of a head_key / stat lookup.
type KeyStat struct {
	Size        int64
	FileMD5     []byte
	FileAdler32 uint32
	Timestamp   int64
}

// NodeIndex is the per-node-local-index surface the Application needs
// for listmatch, stat, and the Destroyer's pre-delete size lookup, per
// spec §3 ("Client state") and §4.8. Implemented by pkg/nodeindex
// against the node-local SQL index.
type NodeIndex interface {
	// SizeLookup satisfies destroyer.SizeLookup's signature directly.
	SizeLookup(ctx context.Context, collectionID int64, key string) (int64, error)
	Stat(ctx context.Context, collectionID int64, key string) (*KeyStat, error)
	ListMatch(ctx context.Context, collectionID int64, prefix string) ([]string, error)
	RecordArchive(ctx context.Context, collectionID int64, key string, timestamp int64, size int64) error
	RecordDestroy(ctx context.Context, collectionID int64, key string, timestamp int64) error
}

// Accounting is the best-effort byte-counter adapter, per spec §2
// ("Support: ... accounting adapter"). Calls are fire-and-forget from
// the Application's point of view; a failure here never fails the HTTP
// response.
type Accounting interface {
	Added(ctx context.Context, collectionID int64, timestamp int64, bytes int64)
	Retrieved(ctx context.Context, collectionID int64, timestamp int64, bytes int64)
	Removed(ctx context.Context, collectionID int64, timestamp int64, bytes int64)
}

// Event is one structured telemetry record pushed on the event channel,
// per spec §2 ("Support: event-push adapter") and §7 (ServerError is
// "logged + pushed on event channel").
type Event struct {
	Name         string
	CollectionID int64
	Key          string
	Timestamp    int64
	Detail       string
	At           time.Time
}

// EventPusher accepts best-effort telemetry events. Implemented by
// pkg/eventpush with a durable local buffer so a transient outage of the
// event-push backend never blocks or fails a request.
type EventPusher interface {
	Push(ctx context.Context, event Event)
}
