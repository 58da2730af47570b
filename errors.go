package layerfs

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every failure surfaced by the engine wraps one of these
// sentinels (or one of the typed errors below), so callers can classify
// with errors.Is / errors.As. Not-found is deliberately absent: a missing
// entry is a normal outcome reported as a nil entry or a false boolean,
// never as an error.
var (
	// ErrInvalidPathSpec marks a malformed kind/parent combination,
	// detected before any I/O.
	ErrInvalidPathSpec = errors.New("layerfs: invalid path specification")

	// ErrUnsupportedType marks a descriptor kind with no registered
	// factory.
	ErrUnsupportedType = errors.New("layerfs: unsupported type indicator")

	// ErrBackendInvariant marks a disagreement between a descriptor and
	// live container state that should be impossible when both are
	// consistent.
	ErrBackendInvariant = errors.New("layerfs: backend invariant violation")

	// ErrReleaseUnreferenced marks a release of a handle whose reference
	// count is already zero. This is a caller-discipline violation, not a
	// condition the engine recovers from silently.
	ErrReleaseUnreferenced = errors.New("layerfs: release of unreferenced handle")
)

// DecodeError reports that one specific layer's native decode failed. It
// carries the offending layer's type indicator and its zero-based position
// counted from the outermost layer, so callers can tell which nested layer
// broke.
type DecodeError struct {
	Type  TypeIndicator
	Depth int
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("layerfs: decoding %s layer at depth %d: %v", e.Type, e.Depth, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// BackendError reports a backend invariant violation with context about
// the layer it was detected in. It matches ErrBackendInvariant under
// errors.Is.
type BackendError struct {
	Type   TypeIndicator
	Reason string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%v: %s layer: %s", ErrBackendInvariant, e.Type, e.Reason)
}

func (e *BackendError) Unwrap() error { return ErrBackendInvariant }
