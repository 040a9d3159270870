package gwerrors

import "errors"

// Sentinel errors raised by the core components (Archiver, Retriever,
// Destroyer). The Application boundary is the only place that translates
// these into a GatewayError / HTTP status; background RPC machinery never
// raises into request logic, it fails the corresponding future instead.
var (
	ErrArchiveFailed     = errors.New("archive failed: not all nodes acknowledged")
	ErrRetrieveFailed    = errors.New("retrieve failed: fewer than K readers replied")
	ErrDestroyFailed     = errors.New("destroy failed: not all nodes acknowledged")
	ErrAlreadyInProgress = errors.New("destroy already in progress for this key")
	ErrNotFound          = errors.New("key not found or tombstoned")

	ErrTransportFailure = errors.New("transport failure")
	ErrTimeout          = errors.New("request timed out")
	ErrCancelled        = errors.New("request cancelled")
	ErrDisconnected     = errors.New("client disconnected")
)
