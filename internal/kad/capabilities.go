package kad

import (
	"context"
	"time"
)

// Host is the capability contract the node consumes from the underlying
// peer-to-peer transport: identity, stream dialing, protocol registration,
// the address repository, and the connection manager's reachability
// estimate. The transport itself — connection manager, stream muxer,
// secure channel — is an external collaborator; the node only ever sees
// this surface.
type Host interface {
	ID() NodeId
	PeerInfo() PeerInfo

	// AddressRepo returns the authoritative address store.
	AddressRepo() AddressRepo

	// Connectedness reports the connection manager's current estimate for
	// a peer.
	Connectedness(PeerInfo) Connectedness

	// SetProtocolHandler installs the inbound stream handler for id.
	SetProtocolHandler(id string, handler func(Stream))

	// NewStream dials peer and opens a duplex stream under protocol id.
	NewStream(ctx context.Context, peer NodeId, protocolID string) (Stream, error)

	// OnNewConnection returns a channel the node can range over to learn
	// about newly-established outbound connections, for opportunistic
	// routing-table population.
	OnNewConnection() <-chan PeerInfo
}

// AddressRepo is the peer address repository: authoritative storage for
// multiaddrs with per-peer TTLs, external to the node.
type AddressRepo interface {
	UpsertAddresses(id NodeId, addrs []string, ttl TTLKind) error
	PeerInfo(id NodeId) PeerInfo
}

// TTLKind distinguishes a permanent address hint from the default
// observed-peer TTL. The node passes TTLDay on every upsert it makes,
// AddPeer included; it never passes TTLPermanent and does not upsert its
// own addresses.
type TTLKind int

const (
	TTLDay TTLKind = iota
	TTLPermanent
)

// Stream is a bidirectional byte stream abstraction over the transport's
// multiplexed connection; framing and codec are layered on top by Session.
type Stream interface {
	RemotePeer() NodeId
	RemoteAddr() string
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	Reset() error
}

// Storage is the local key/value store. Writes go through the Validator
// capability before being accepted.
type Storage interface {
	PutValue(key []byte, value []byte, expiry time.Time) error
	GetValue(key []byte) (value []byte, expiry time.Time, ok bool)
}

// Validator declares records well-formed before acceptance and selects the
// preferred record when more than one candidate is present for a key.
// Validate must be side-effect free; Select must be deterministic.
type Validator interface {
	Validate(key []byte, value []byte) error

	// Select returns the index into records of the preferred record. On a
	// tie (equal content) the record with the later expiry wins; Select is
	// responsible for resolving that tie.
	Select(key []byte, records []Record) (int, error)
}

// Scheduler is the capability used for every suspension point: timers and
// posting handler delivery. now() is routed through here rather than
// time.Now so that tests can use a virtual clock.
type Scheduler interface {
	Now() time.Time

	// Schedule runs cb after delay elapses (delay == 0 runs it on the next
	// turn, never synchronously inline). The returned handle supports
	// cancellation; cancelling after cb has already run is a no-op.
	Schedule(delay time.Duration, cb func()) ScheduleHandle
}

// ScheduleHandle cancels a pending Scheduler callback.
type ScheduleHandle interface {
	Cancel()
}

// RNG is the capability used to seed random-walk targets.
type RNG interface {
	FillRandomly(buf []byte)
}
