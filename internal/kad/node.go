package kad

import (
	"bufio"
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jbenet/goprocess"
)

// KademliaNode is the facade binding routing and content tables, the
// session/dispatcher machinery, and the query executors to one set of
// injected capabilities. It is the package's single stateful entry point;
// every exported operation is safe for concurrent use.
type KademliaNode struct {
	self       NodeId
	host       Host
	storage    Storage
	validator  Validator
	scheduler  Scheduler
	rng        RNG
	config     Config
	routing    *PeerRoutingTable
	content    *ContentRoutingTable
	dispatcher *Dispatcher

	proc goprocess.Process

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	started  bool
	closed   bool
}

// NewKademliaNode builds a node around self's already-derived identity and
// the given capabilities. Start must be called before the node accepts
// streams or issues queries.
func NewKademliaNode(host Host, storage Storage, validator Validator, scheduler Scheduler, rng RNG, config Config) *KademliaNode {
	n := &KademliaNode{
		self:      host.ID(),
		host:      host,
		storage:   storage,
		validator: validator,
		scheduler: scheduler,
		rng:       rng,
		config:    config,
		sessions:  make(map[uuid.UUID]*Session),
	}
	n.routing = NewPeerRoutingTable(n.self, config.CloserPeerCount)
	n.content = NewContentRoutingTable(config.ProviderTTL, config.ProviderBound, 4096)
	n.dispatcher = NewDispatcher(n)
	return n
}

// Start installs the node's protocol handler, begins observing the host's
// new-connection events, and, if configured, launches the random-walk
// maintenance loop. Calling Start twice returns ErrAlreadyStarted.
func (n *KademliaNode) Start() error {
	n.mu.Lock()
	if n.started {
		n.mu.Unlock()
		return ErrAlreadyStarted
	}
	n.started = true
	n.mu.Unlock()

	n.proc = goprocess.WithParent(goprocess.Background())
	n.host.SetProtocolHandler(n.config.ProtocolID, n.handleIncomingStream)

	n.proc.Go(func(proc goprocess.Process) {
		conns := n.host.OnNewConnection()
		for {
			select {
			case <-proc.Closing():
				return
			case info, ok := <-conns:
				if !ok {
					return
				}
				n.observePeer(info)
			}
		}
	})

	if n.config.RandomWalk.Enabled {
		walk := NewRandomWalk(n, n.config.RandomWalk)
		n.proc.Go(walk.Run)
	}

	return nil
}

// Close tears down every live session and stops the node's background
// work. It blocks until teardown completes. Close is idempotent.
func (n *KademliaNode) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	sessions := make([]*Session, 0, len(n.sessions))
	for _, s := range n.sessions {
		sessions = append(sessions, s)
	}
	n.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	if n.proc != nil {
		return n.proc.Close()
	}
	return nil
}

// isClosed reports whether Close has already run, so that public
// operations invoked afterward can fail fast with ErrClosed instead of
// dialing through a torn-down host/proc tree.
func (n *KademliaNode) isClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

// handleIncomingStream is installed as the host's protocol handler: it
// wraps stream in a Session and starts its read loop on a fresh goroutine.
func (n *KademliaNode) handleIncomingStream(stream Stream) {
	sess := NewSession(stream, n.scheduler, n.config.SessionWriteTimeout, n.dispatcher.Deliver, n.onSessionClose)
	n.mu.Lock()
	n.sessions[sess.ID()] = sess
	n.mu.Unlock()
	go sess.ReadLoop()
}

func (n *KademliaNode) onSessionClose(sess *Session) {
	n.mu.Lock()
	delete(n.sessions, sess.ID())
	n.mu.Unlock()
}

// observePeer folds a sighting of a peer into the routing table and, when
// address hints are present, into the address repository. A Rejected
// update (bucket full) is logged and otherwise ignored: this package does
// not probe the stalest occupant to decide eviction, unlike a full
// connection-manager-backed implementation.
func (n *KademliaNode) observePeer(info PeerInfo) {
	if info.ID == n.self {
		return
	}
	if len(info.Addrs) > 0 {
		_ = n.host.AddressRepo().UpsertAddresses(info.ID, info.Addrs, TTLDay)
	}
	if result, stale := n.routing.Update(info.ID); result == Rejected {
		logger.Debug("routing table bucket full", "peer", info.ID, "stale_occupant", stale)
	}
}

// nearestAsWirePeers returns the CloserPeerCount nearest known peers to
// target, addressed and annotated with connectedness for wire transport.
func (n *KademliaNode) nearestAsWirePeers(target NodeId) []WirePeer {
	return n.toWirePeers(n.routing.GetNearestPeers(target, n.config.CloserPeerCount))
}

func (n *KademliaNode) toWirePeers(ids []NodeId) []WirePeer {
	out := make([]WirePeer, 0, len(ids))
	for _, id := range ids {
		info := n.host.AddressRepo().PeerInfo(id)
		out = append(out, WirePeer{
			PeerID:        id,
			Multiaddrs:    info.Addrs,
			Connectedness: n.host.Connectedness(info),
		})
	}
	return out
}

// seedShortlist returns the initial candidate set a query into target
// starts from: the routing table's nearest known peers, over-fetched at 2x
// CloserPeerCount and filtered down to peers this host still considers
// reachable, so that a handful of stale CAN_NOT_CONNECT entries can't starve
// the shortlist below CloserPeerCount candidates.
func (n *KademliaNode) seedShortlist(target NodeId) []NodeId {
	candidates := n.routing.GetNearestPeers(target, n.config.CloserPeerCount*2)
	out := make([]NodeId, 0, n.config.CloserPeerCount)
	for _, id := range candidates {
		info := n.host.AddressRepo().PeerInfo(id)
		if n.host.Connectedness(info) == CanNotConnect {
			continue
		}
		out = append(out, id)
		if len(out) == n.config.CloserPeerCount {
			break
		}
	}
	return out
}

// request opens a fresh stream to peer, sends msg, and waits for exactly
// one framed response, closing the stream when done. It is the outbound
// counterpart to Session, used by query executors rather than by inbound
// dispatch.
func (n *KademliaNode) request(ctx context.Context, peer NodeId, msg *Message) (*Message, error) {
	stream, err := n.host.NewStream(ctx, peer, n.config.ProtocolID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer stream.Close()

	type result struct {
		msg *Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		if err := writeMessage(stream, msg); err != nil {
			done <- result{err: err}
			return
		}
		resp, err := readMessage(bufio.NewReader(stream))
		done <- result{msg: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		_ = stream.Reset()
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		n.observePeer(PeerInfo{ID: peer, Connected: Connected})
		return r.msg, nil
	}
}

// notify opens a fresh stream to peer, sends msg, and closes the stream
// without waiting for a response: the outbound counterpart to the
// dispatcher's fire-and-forget handlers (PUT_VALUE, ADD_PROVIDER), whose
// acknowledgement to the caller is a clean write and stream close, not a
// reply frame.
func (n *KademliaNode) notify(ctx context.Context, peer NodeId, msg *Message) error {
	stream, err := n.host.NewStream(ctx, peer, n.config.ProtocolID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer stream.Close()

	done := make(chan error, 1)
	go func() { done <- writeMessage(stream, msg) }()

	select {
	case <-ctx.Done():
		_ = stream.Reset()
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return err
		}
		n.observePeer(PeerInfo{ID: peer, Connected: Connected})
		return nil
	}
}

// AddPeer injects a known address hint for id directly into the address
// repository and routing table, without any RPC: the capability contract's
// synchronous bootstrap-seed entry point.
func (n *KademliaNode) AddPeer(id NodeId, addrs []string) {
	n.observePeer(PeerInfo{ID: id, Addrs: addrs})
}

// Bootstrap seeds the routing table with one findRandomPeer: a FindPeer
// lookup against a uniformly random target drawn from the RNG capability,
// the same pattern RandomWalk.walkOnce uses for its periodic self-healing
// walks.
func (n *KademliaNode) Bootstrap(ctx context.Context) error {
	if n.isClosed() {
		return ErrClosed
	}
	var buf [IDBytes]byte
	n.rng.FillRandomly(buf[:])
	target := NodeId(buf)

	_, err := n.FindPeer(ctx, target)
	if err != nil && err != ErrNotFound && err != ErrNoPeers {
		return err
	}
	return nil
}

// deadline bounds ctx by the node's QueryTimeout, firing through the
// Scheduler capability rather than context.WithTimeout's raw wall-clock
// timer, so a query's deadline is driven by the same virtual clock tests
// substitute for the rest of the node's suspension points. Once the node
// has started, the context is also cancelled when the node's process tree
// closes, so Close cancels every query still running. The returned
// context reports context.DeadlineExceeded from Err() when the bound, not
// the caller, is what fired.
func (n *KademliaNode) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	base, cancel := context.WithCancel(ctx)
	var timedOut atomic.Bool
	handle := n.scheduler.Schedule(n.config.QueryTimeout, func() {
		timedOut.Store(true)
		cancel()
	})
	if proc := n.proc; proc != nil {
		go func() {
			select {
			case <-proc.Closing():
				cancel()
			case <-base.Done():
			}
		}()
	}
	wrapped := &deadlineContext{Context: base, timedOut: &timedOut}
	return wrapped, func() {
		handle.Cancel()
		cancel()
	}
}

// deadlineContext overrides Err so that a Scheduler-triggered cancellation
// is reported as context.DeadlineExceeded, matching context.WithTimeout's
// contract, while an externally-cancelled parent still reports
// context.Canceled.
type deadlineContext struct {
	context.Context
	timedOut *atomic.Bool
}

func (c *deadlineContext) Err() error {
	err := c.Context.Err()
	if err != nil && c.timedOut.Load() {
		return context.DeadlineExceeded
	}
	return err
}
