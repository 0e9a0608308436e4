package graph

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Each concrete error wraps one of these via
// errors.Is/errors.As rather than a bespoke error-code enum.
var (
	// ErrConfig covers storage-directory or settings problems; engines
	// do not start when this occurs.
	ErrConfig = errors.New("graph: configuration error")

	// ErrStore covers KV read/write failures. A tick that hits this
	// aborts the current chunk write; the in-memory node stays dirty
	// and is retried on the next tick.
	ErrStore = errors.New("graph: store error")

	// ErrSerialization covers a node or edge chunk that fails to encode
	// on write. A corrupt chunk found during load is logged and skipped
	// without an error, and loading continues.
	ErrSerialization = errors.New("graph: serialization error")

	// ErrGraph covers a missing node on edge creation or a payload type
	// mismatch inside a processor. Never escalates past the node that
	// raised it.
	ErrGraph = errors.New("graph: graph error")

	// ErrFetch covers network, timeout, or rate-gate rejections.
	ErrFetch = errors.New("graph: fetch error")

	// ErrLLM covers a missing API key or malformed JSON from a
	// provider.
	ErrLLM = errors.New("graph: llm error")

	// ErrNodeNotFound is returned by GetOrAddNode when should_add_new is
	// false and no existing or pending match exists.
	ErrNodeNotFound = fmt.Errorf("%w: node not found", ErrGraph)
)

// wrappedError pairs a sentinel kind with a specific message, so callers
// can both log something actionable and errors.Is against the kind.
type wrappedError struct {
	kind error
	msg  string
}

func (e *wrappedError) Error() string { return e.msg }
func (e *wrappedError) Unwrap() error { return e.kind }

func newConfigError(format string, args ...any) error {
	return &wrappedError{kind: ErrConfig, msg: fmt.Sprintf("graph: config: "+format, args...)}
}

func newStoreError(format string, args ...any) error {
	return &wrappedError{kind: ErrStore, msg: fmt.Sprintf("graph: store: "+format, args...)}
}

func newSerializationError(format string, args ...any) error {
	return &wrappedError{kind: ErrSerialization, msg: fmt.Sprintf("graph: serialization: "+format, args...)}
}

func newGraphError(format string, args ...any) error {
	return &wrappedError{kind: ErrGraph, msg: fmt.Sprintf("graph: graph: "+format, args...)}
}

func newFetchError(format string, args ...any) error {
	return &wrappedError{kind: ErrFetch, msg: fmt.Sprintf("graph: fetch: "+format, args...)}
}
