package kad

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// peerState is a shortlist entry's status within one query.
type peerState int

const (
	statePeerFresh peerState = iota
	statePeerInFlight
	statePeerResponded
	statePeerFailed
)

// shortlistEntry is one candidate peer tracked by a Query, annotated with
// its current status. A Query never sends more than one RPC to a given
// peer id (see Query.send).
type shortlistEntry struct {
	id    NodeId
	state peerState
}

// RPCFunc sends one request to peer and returns its response or an error.
// Implementations are expected to honor ctx cancellation.
type RPCFunc func(ctx context.Context, peer NodeId) (*Message, error)

// ResponseFunc folds one peer's response into the query's accumulated
// result, returning the closer_peers the response carried so Query can
// merge them into the shortlist (Query itself drops self, duplicates and
// CAN_NOT_CONNECT entries while merging), and whether the query should complete
// immediately (early termination, e.g. FindPeer locating its target).
type ResponseFunc func(peer NodeId, resp *Message) (closer []WirePeer, done bool)

// Query is the generic α-wide, k-converging iterative lookup described by
// the node's query executor: it runs RPC against the closest fresh peers
// in its shortlist, folds responses through ResponseFunc, and terminates
// once best-k has no fresh candidate left and, after a final-polish pass
// over the whole shortlist, none remain at all.
type Query struct {
	node   *KademliaNode
	target NodeId
	k      int
	alpha  int
	rpc    RPCFunc
	onResp ResponseFunc

	sem *semaphore.Weighted

	mu        sync.Mutex
	entries   []*shortlistEntry
	byID      map[NodeId]*shortlistEntry
	inFlight  int
	completed bool

	doneCh   chan struct{}
	doneOnce sync.Once
	wakeCh   chan struct{}
}

// NewQuery builds a Query targeting target, seeded with initial peers,
// using rpc to contact each peer and onResp to fold its response.
func NewQuery(node *KademliaNode, target NodeId, initial []NodeId, rpc RPCFunc, onResp ResponseFunc) *Query {
	q := &Query{
		node:   node,
		target: target,
		k:      node.config.CloserPeerCount,
		alpha:  node.config.QueryAlpha,
		rpc:    rpc,
		onResp: onResp,
		byID:   make(map[NodeId]*shortlistEntry),
		doneCh: make(chan struct{}),
		wakeCh: make(chan struct{}, 1),
	}
	q.sem = semaphore.NewWeighted(int64(q.alpha))
	for _, id := range initial {
		q.insert(id)
	}
	return q
}

// insert adds id to the shortlist, fresh, keeping entries sorted by
// ascending distance to target. Duplicate ids (already present at any
// status) are ignored.
func (q *Query) insert(id NodeId) {
	if _, ok := q.byID[id]; ok {
		return
	}
	e := &shortlistEntry{id: id, state: statePeerFresh}
	q.byID[id] = e
	i := sort.Search(len(q.entries), func(i int) bool {
		return CompareDistance(q.entries[i].id, id, q.target) >= 0
	})
	q.entries = append(q.entries, nil)
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = e
}

func (q *Query) bestK() []*shortlistEntry {
	if len(q.entries) <= q.k {
		return q.entries
	}
	return q.entries[:q.k]
}

// nextFresh returns the closest fresh entry within scope (best-k during the
// primary phase, the whole shortlist during final-polish), or nil.
func (q *Query) nextFresh(scope []*shortlistEntry) *shortlistEntry {
	for _, e := range scope {
		if e.state == statePeerFresh {
			return e
		}
	}
	return nil
}

func (q *Query) wake() {
	select {
	case q.wakeCh <- struct{}{}:
	default:
	}
}

func (q *Query) close() {
	q.doneOnce.Do(func() { close(q.doneCh) })
}

// Run drives the query to completion: best-k convergence, then a
// final-polish pass over the broader shortlist, then completion. It
// respects ctx cancellation — on cancellation, in-flight RPCs are allowed
// to finish in the background but no further handler invocation occurs.
func (q *Query) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.doneCh:
			return
		default:
		}

		q.mu.Lock()
		if q.completed {
			q.mu.Unlock()
			return
		}

		scope := q.bestK()
		phase := "primary"
		if q.nextFresh(scope) == nil && q.inFlight == 0 {
			// Nothing fresh left in best-k and nothing outstanding:
			// widen to the whole shortlist for a final-polish pass.
			scope = q.entries
			phase = "final-polish"
		}

		var dispatched []*shortlistEntry
		for {
			next := q.nextFresh(scope)
			if next == nil || !q.sem.TryAcquire(1) {
				break
			}
			next.state = statePeerInFlight
			q.inFlight++
			dispatched = append(dispatched, next)
		}

		noMoreWork := len(dispatched) == 0 && q.inFlight == 0 && phase == "final-polish" && q.nextFresh(q.entries) == nil
		q.mu.Unlock()

		for _, e := range dispatched {
			go q.send(ctx, e.id)
		}

		if noMoreWork {
			q.mu.Lock()
			q.completed = true
			q.mu.Unlock()
			q.close()
			return
		}

		if len(dispatched) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-q.doneCh:
				return
			case <-q.wakeCh:
			case <-time.After(50 * time.Millisecond):
			}
		}
	}
}

// send issues one RPC to peer and folds the result back into the
// shortlist. It never sends a second RPC to the same peer within this
// query (the shortlist only ever transitions fresh -> in-flight once).
func (q *Query) send(ctx context.Context, peer NodeId) {
	defer func() {
		q.mu.Lock()
		q.inFlight--
		q.mu.Unlock()
		q.sem.Release(1)
		q.wake()
	}()

	resp, err := q.rpc(ctx, peer)

	q.mu.Lock()
	e := q.byID[peer]
	if err != nil {
		if e != nil {
			e.state = statePeerFailed
		}
		q.mu.Unlock()
		return
	}
	if e != nil {
		e.state = statePeerResponded
	}
	q.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	closer, done := q.onResp(peer, resp)

	q.mu.Lock()
	for _, p := range closer {
		if p.PeerID == q.node.host.ID() {
			continue
		}
		if p.Connectedness == CanNotConnect {
			continue
		}
		q.insert(p.PeerID)
	}
	if done {
		q.completed = true
	}
	q.mu.Unlock()

	if done {
		q.close()
	}
}

// Shortlist returns a snapshot of every peer the query has observed, for
// asynchronous routing-table feeding by the caller.
func (q *Query) Shortlist() []NodeId {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]NodeId, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.id
	}
	return out
}

// Responded returns the peers that answered, sorted by ascending distance
// to target, i.e. the query's best-k result set.
func (q *Query) Responded() []NodeId {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []NodeId
	for _, e := range q.entries {
		if e.state == statePeerResponded {
			out = append(out, e.id)
		}
	}
	if len(out) > q.k {
		out = out[:q.k]
	}
	return out
}
