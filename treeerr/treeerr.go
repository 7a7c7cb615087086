// Package treeerr defines the sentinel error taxonomy shared by the device
// tree, mutation API, and query engine (see §7: handle errors, protocol
// errors, query validation errors, persistence failures, arena corruption).
package treeerr

import "errors"

// Handle errors: never fatal to the core, always returned to the caller.
var (
	ErrDeviceNotFound    = errors.New("device not found")
	ErrDeviceStale       = errors.New("device handle is stale")
	ErrGroupNotFound     = errors.New("group not found")
	ErrGroupStale        = errors.New("group handle is stale")
	ErrExtensionDetached = errors.New("extension is detached")
	ErrExtensionUnknown  = errors.New("unknown extension id")
	ErrEntityNotFound    = errors.New("entity not found")
)

// Protocol errors: logged, extension detached, never crash the core.
var (
	ErrMalformedFrame       = errors.New("malformed ipc frame")
	ErrOutOfOrderTxn        = errors.New("transaction out of order")
	ErrEntityIndexMismatch  = errors.New("entity index mismatch")
	ErrComponentPastMSIC    = errors.New("component wire id exceeds extension MSIC")
	ErrDuplicateEntityName  = errors.New("entity name already registered on device")
	ErrUnknownComponentType = errors.New("unknown component type")
	ErrHandshakeRequired    = errors.New("first frame must be a handshake")
)

// IPC backpressure: fatal for the offending extension, not for the core.
var ErrWouldBlock = errors.New("extension write would block")

// Query validation errors: reported to the client as QueryError.
var (
	ErrWatchLimitForbidden     = errors.New("watcher may not carry a limit")
	ErrNotAggregatable         = errors.New("component type is not aggregatable with this operator")
	ErrComponentFilterRequired = errors.New("component action requires a component filter")
	ErrInheritNotEvaluable     = errors.New("inherit is a reserved sentinel and cannot be evaluated")
)

// Persistence / corruption.
var (
	ErrPersistFailed  = errors.New("persistence write failed")
	ErrArenaCorrupt   = errors.New("arena insert_at collision: persisted state is corrupt")
	ErrRestoreAborted = errors.New("restore aborted due to corrupt persisted state")
)

// Kind classifies an error for propagation-policy decisions (§7):
// does it detach the extension, does it roll back a mutation, is it just
// returned to the caller.
type Kind int

const (
	KindHandle Kind = iota
	KindProtocol
	KindBackpressure
	KindValidation
	KindPersistence
	KindCorruption
)

// ClassifyProtocol reports whether err is one of the protocol-error
// sentinels that must trigger detach_extension per §7.
func ClassifyProtocol(err error) bool {
	switch err {
	case ErrMalformedFrame, ErrOutOfOrderTxn, ErrEntityIndexMismatch,
		ErrComponentPastMSIC, ErrDuplicateEntityName, ErrUnknownComponentType,
		ErrHandshakeRequired, ErrWouldBlock:
		return true
	}
	return false
}
