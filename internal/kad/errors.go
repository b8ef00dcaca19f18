package kad

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per error kind named in the Kademlia node's error
// handling design: local API failures, query termination outcomes, and
// session/dispatch failures.
var (
	// ErrNoPeers is returned synchronously by an API call when the routing
	// table has zero candidates to seed a query with.
	ErrNoPeers = errors.New("kad: no peers")

	// ErrNotFound is returned when a lookup converges without locating the
	// target (peer, value, or provider).
	ErrNotFound = errors.New("kad: not found")

	// ErrTimeout is returned when a query's deadline elapses before it
	// completes.
	ErrTimeout = errors.New("kad: query timeout")

	// ErrMessageSerialize is the reason a session is closed after a failed
	// outbound serialize.
	ErrMessageSerialize = errors.New("kad: message serialize error")

	// ErrUnexpectedMessageType is the reason a session is closed after
	// receiving a message of an unknown type.
	ErrUnexpectedMessageType = errors.New("kad: unexpected message type")

	// ErrInvalidKey marks a request whose key failed to decode as a content
	// id.
	ErrInvalidKey = errors.New("kad: invalid key")

	// ErrValidationFailed marks a record that the Validator capability
	// rejected.
	ErrValidationFailed = errors.New("kad: validation failed")

	// ErrTransport marks a failure surfaced by the host/session transport.
	ErrTransport = errors.New("kad: transport error")

	// ErrClosed is returned by any node operation invoked after Close.
	ErrClosed = errors.New("kad: node closed")

	// ErrSessionClosed is returned by Session operations invoked after the
	// session has already transitioned to Closed.
	ErrSessionClosed = errors.New("kad: session closed")

	// ErrAlreadyStarted is returned by Start when called more than once.
	ErrAlreadyStarted = errors.New("kad: already started")
)

// QueryError wraps a failure that occurred during a specific operation of a
// query executor, preserving Op for logging and Unwrap for errors.Is/As.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("kad: %s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

func newQueryError(op string, err error) *QueryError {
	return &QueryError{Op: op, Err: err}
}
