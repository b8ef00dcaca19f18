package kad

import (
	"context"
	"sort"
	"time"

	"go.uber.org/multierr"
)

// FindPeer runs an iterative lookup for target, returning its PeerInfo as
// soon as a response from target itself is observed, or ErrNotFound if the
// query converges without ever hearing from target directly.
func (n *KademliaNode) FindPeer(ctx context.Context, target NodeId) (PeerInfo, error) {
	if n.isClosed() {
		return PeerInfo{}, ErrClosed
	}
	if info := n.host.AddressRepo().PeerInfo(target); len(info.Addrs) > 0 {
		return info, nil
	}

	initial := n.seedShortlist(target)
	if len(initial) == 0 {
		return PeerInfo{}, ErrNoPeers
	}

	ctx, cancel := n.deadline(ctx)
	defer cancel()

	var found *WirePeer
	rpc := func(ctx context.Context, peer NodeId) (*Message, error) {
		return n.request(ctx, peer, &Message{Type: MessageFindNode, Key: target[:]})
	}
	onResp := func(peer NodeId, resp *Message) ([]WirePeer, bool) {
		if peer == target {
			found = &WirePeer{PeerID: peer, Connectedness: Connected}
			return nil, true
		}
		return resp.CloserPeers, false
	}

	q := NewQuery(n, target, initial, rpc, onResp)
	q.Run(ctx)
	n.feedRoutingTable(q)

	if found != nil {
		return n.host.AddressRepo().PeerInfo(found.PeerID), nil
	}
	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return PeerInfo{}, ErrTimeout
		}
	default:
	}
	return PeerInfo{}, ErrNotFound
}

// GetValue runs an iterative lookup for the content key's GET_VALUE
// response, returning the Validator-selected best record among all
// responses seen. As a side effect, it opportunistically PUTs that record
// back to the closest responding peers that did not already have it.
func (n *KademliaNode) GetValue(ctx context.Context, key []byte) ([]byte, error) {
	if n.isClosed() {
		return nil, ErrClosed
	}
	target := ContentKey(key)

	if value, expiry, ok := n.storage.GetValue(key); ok && n.scheduler.Now().Before(expiry) {
		return value, nil
	}

	initial := n.seedShortlist(target)
	if len(initial) == 0 {
		return nil, ErrNoPeers
	}

	ctx, cancel := n.deadline(ctx)
	defer cancel()

	var (
		missing    []NodeId
		candidates []Record
		bestIdx    = -1
	)

	rpc := func(ctx context.Context, peer NodeId) (*Message, error) {
		return n.request(ctx, peer, &Message{Type: MessageGetValue, Key: key})
	}
	onResp := func(peer NodeId, resp *Message) ([]WirePeer, bool) {
		if resp.Record == nil {
			missing = append(missing, peer)
			return resp.CloserPeers, false
		}
		expiry, err := time.Parse(time.RFC3339Nano, resp.Record.ExpiryString)
		if err != nil {
			return resp.CloserPeers, false
		}
		rec := Record{Key: key, Value: resp.Record.Value, Expiry: expiry}
		if err := n.validator.Validate(rec.Key, rec.Value); err != nil {
			return resp.CloserPeers, false
		}

		candidates = append(candidates, rec)
		if idx, err := n.validator.Select(key, candidates); err == nil {
			bestIdx = idx
		}
		return resp.CloserPeers, false
	}

	q := NewQuery(n, target, initial, rpc, onResp)
	q.Run(ctx)
	n.feedRoutingTable(q)

	if bestIdx < 0 {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return nil, ErrTimeout
			}
		default:
		}
		return nil, ErrNotFound
	}

	best := candidates[bestIdx]
	n.writeBack(target, missing, key, best)
	return best.Value, nil
}

// writeBack issues a best-effort PUT_VALUE of rec to the CloserPeerCount
// peers in missing closest to target, without waiting for or reporting
// individual failures: the standard Kademlia "heal the value's nearest
// peers that didn't have it" behavior, bounded per spec rather than fanned
// out to every non-responder the best-k/final-polish phases accumulated.
func (n *KademliaNode) writeBack(target NodeId, missing []NodeId, key []byte, rec Record) {
	sort.Slice(missing, func(i, j int) bool {
		return CompareDistance(missing[i], missing[j], target) < 0
	})
	if len(missing) > n.config.CloserPeerCount {
		missing = missing[:n.config.CloserPeerCount]
	}

	wire := &WireRecord{Key: key, Value: rec.Value, ExpiryString: rec.Expiry.Format(time.RFC3339Nano)}
	for _, peer := range missing {
		go func(peer NodeId) {
			ctx, cancel := context.WithTimeout(context.Background(), n.config.QueryTimeout)
			defer cancel()
			_ = n.notify(ctx, peer, &Message{Type: MessagePutValue, Key: key, Record: wire})
		}(peer)
	}
}

// PutValue locates the CloserPeerCount peers nearest the content key via a
// FindNode lookup, then fans out a PUT_VALUE to each, aggregating
// individual failures into a single combined error that is logged, not
// returned, without aborting the rest of the fan-out.
func (n *KademliaNode) PutValue(ctx context.Context, key, value []byte) error {
	if n.isClosed() {
		return ErrClosed
	}
	if err := n.validator.Validate(key, value); err != nil {
		return err
	}
	target := ContentKey(key)
	peers, err := n.lookupNearest(ctx, target)
	if err != nil {
		return err
	}

	expiry := n.scheduler.Now().Add(n.config.ProviderTTL)
	wire := &WireRecord{Key: key, Value: value, ExpiryString: expiry.Format(time.RFC3339Nano)}

	if err := n.storage.PutValue(key, value, expiry); err != nil {
		return err
	}

	var errs error
	results := make(chan error, len(peers))
	for _, peer := range peers {
		go func(peer NodeId) {
			results <- n.notify(ctx, peer, &Message{Type: MessagePutValue, Key: key, Record: wire})
		}(peer)
	}
	for range peers {
		if err := <-results; err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		logger.Warn("PutValue: fan-out failures", "key", target, "err", errs)
	}
	return nil
}

// Provide adds the local node as a provider of key in the local content
// table and, when notify is true, locates the CloserPeerCount peers
// nearest the content key and announces self as a provider to each,
// self-certified (the provider entry's peer id equals the sending
// session's remote peer, which the remote dispatcher checks). Failures of
// individual announcements are combined and logged, not returned. With
// notify false this is purely local bookkeeping: no network traffic.
func (n *KademliaNode) Provide(ctx context.Context, key []byte, notify bool) error {
	if n.isClosed() {
		return ErrClosed
	}
	target := ContentKey(key)
	n.content.AddProvider(target, n.self)

	if !notify {
		return nil
	}

	peers, err := n.lookupNearest(ctx, target)
	if err != nil {
		return err
	}

	self := WirePeer{PeerID: n.self, Connectedness: Connected}
	var errs error
	results := make(chan error, len(peers))
	for _, peer := range peers {
		go func(peer NodeId) {
			results <- n.notify(ctx, peer, &Message{Type: MessageAddProvider, Key: key, ProviderPeers: []WirePeer{self}})
		}(peer)
	}
	for range peers {
		if err := <-results; err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		logger.Warn("Provide: fan-out failures", "key", target, "err", errs)
	}
	return nil
}

// AddProvider is Provide with notify always true: the common case of
// announcing self as a provider across the network, kept as a shorthand
// for callers that never need the local-only form.
func (n *KademliaNode) AddProvider(ctx context.Context, key []byte) error {
	return n.Provide(ctx, key, true)
}

// FindProviders runs an iterative lookup for the content key, collecting
// deduplicated providers from every GET_PROVIDERS response until limit
// providers are found or the lookup converges, preferring the local
// provider table as a fast path when it alone already satisfies limit.
func (n *KademliaNode) FindProviders(ctx context.Context, key []byte, limit int) ([]PeerInfo, error) {
	if n.isClosed() {
		return nil, ErrClosed
	}
	target := ContentKey(key)

	if local := n.reachableProviders(target, limit); limit > 0 && len(local) >= limit {
		return n.peerInfos(local), nil
	}

	initial := n.seedShortlist(target)
	if len(initial) == 0 {
		return n.peerInfos(n.reachableProviders(target, limit)), nil
	}

	ctx, cancel := n.deadline(ctx)
	defer cancel()

	seen := make(map[NodeId]struct{})
	var found []NodeId
	for _, p := range n.content.GetProvidersFor(target, 0) {
		seen[p] = struct{}{}
		found = append(found, p)
	}

	rpc := func(ctx context.Context, peer NodeId) (*Message, error) {
		return n.request(ctx, peer, &Message{Type: MessageGetProviders, Key: key})
	}
	onResp := func(peer NodeId, resp *Message) ([]WirePeer, bool) {
		for _, p := range resp.ProviderPeers {
			if _, ok := seen[p.PeerID]; ok {
				continue
			}
			seen[p.PeerID] = struct{}{}
			found = append(found, p.PeerID)
			n.content.AddProvider(target, p.PeerID)
		}
		done := limit > 0 && len(found) >= limit
		return resp.CloserPeers, done
	}

	q := NewQuery(n, target, initial, rpc, onResp)
	q.Run(ctx)
	n.feedRoutingTable(q)

	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	return n.peerInfos(found), nil
}

// reachableProviders returns up to limit (0 means unlimited) providers of
// key from the local content table, over-fetched unbounded and filtered
// down to peers with known addresses that the connection manager does not
// classify as CAN_NOT_CONNECT, so that unreachable entries don't count
// toward the local fast-path threshold.
func (n *KademliaNode) reachableProviders(key NodeId, limit int) []NodeId {
	candidates := n.content.GetProvidersFor(key, 0)
	out := make([]NodeId, 0, len(candidates))
	for _, id := range candidates {
		info := n.host.AddressRepo().PeerInfo(id)
		if len(info.Addrs) == 0 {
			continue
		}
		if n.host.Connectedness(info) == CanNotConnect {
			continue
		}
		out = append(out, id)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (n *KademliaNode) peerInfos(ids []NodeId) []PeerInfo {
	out := make([]PeerInfo, len(ids))
	for i, id := range ids {
		out[i] = n.host.AddressRepo().PeerInfo(id)
	}
	return out
}

// lookupNearest runs a bare FindNode-style lookup for target and returns
// its best-k result set, used by PutValue and AddProvider to locate their
// fan-out targets.
func (n *KademliaNode) lookupNearest(ctx context.Context, target NodeId) ([]NodeId, error) {
	initial := n.seedShortlist(target)
	if len(initial) == 0 {
		return nil, ErrNoPeers
	}

	ctx, cancel := n.deadline(ctx)
	defer cancel()

	rpc := func(ctx context.Context, peer NodeId) (*Message, error) {
		return n.request(ctx, peer, &Message{Type: MessageFindNode, Key: target[:]})
	}
	onResp := func(peer NodeId, resp *Message) ([]WirePeer, bool) {
		return resp.CloserPeers, false
	}

	q := NewQuery(n, target, initial, rpc, onResp)
	q.Run(ctx)
	n.feedRoutingTable(q)

	peers := q.Responded()
	if len(peers) == 0 {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout
		}
		return nil, ErrNotFound
	}
	return peers, nil
}

// feedRoutingTable folds every peer a completed query observed back into
// the routing table, regardless of whether it ended up in the result set.
func (n *KademliaNode) feedRoutingTable(q *Query) {
	for _, id := range q.Shortlist() {
		n.observePeer(PeerInfo{ID: id})
	}
}
