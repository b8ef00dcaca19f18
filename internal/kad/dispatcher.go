package kad

import "time"

// Dispatcher decodes an inbound message delivered by a Session and routes
// it to one of the six handlers. It owns no state of its own beyond a
// back-reference to the node whose tables and capabilities it serves.
type Dispatcher struct {
	node *KademliaNode
}

// NewDispatcher builds a Dispatcher bound to node.
func NewDispatcher(node *KademliaNode) *Dispatcher {
	return &Dispatcher{node: node}
}

// Deliver is the Session delivery callback: it dispatches msg by type and,
// where the RPC has a response, writes it back on the same session. Local
// predicate failures (empty key, undecodable content id) abort with a
// logged warning and no response; the session stays open.
func (d *Dispatcher) Deliver(sess *Session, msg *Message) {
	switch msg.Type {
	case MessagePing:
		d.onPing(sess, msg)
	case MessageFindNode:
		d.onFindNode(sess, msg)
	case MessageGetValue:
		d.onGetValue(sess, msg)
	case MessagePutValue:
		d.onPutValue(sess, msg)
	case MessageAddProvider:
		d.onAddProvider(sess, msg)
	case MessageGetProviders:
		d.onGetProviders(sess, msg)
	default:
		logger.Warn("unexpected message type", "type", msg.Type, "peer", sess.RemotePeer())
		sess.Close()
	}
}

// onPing clears the payload and echoes the message: no state change.
func (d *Dispatcher) onPing(sess *Session, msg *Message) {
	msg.Clear()
	_ = sess.Write(msg)
}

// onFindNode upserts any closer_peers the requester attached into the
// address repository (opportunistic one-way routing update), then answers
// with the nearest peers to NodeId(target_key), dropping the inbound list
// before responding.
func (d *Dispatcher) onFindNode(sess *Session, msg *Message) {
	if msg.CloserPeers != nil {
		for _, p := range msg.CloserPeers {
			_ = d.node.host.AddressRepo().UpsertAddresses(p.PeerID, p.Multiaddrs, TTLDay)
		}
		msg.CloserPeers = nil
	}

	target, err := NodeIdFromRaw(msg.Key)
	if err != nil {
		logger.Warn("FindNode: malformed target", "peer", sess.RemotePeer(), "err", err)
		return
	}

	msg.CloserPeers = d.node.nearestAsWirePeers(target)
	_ = sess.Write(msg)
}

// onGetValue returns the locally stored record, if present, plus up to
// CloserPeerCount known providers for the key.
func (d *Dispatcher) onGetValue(sess *Session, msg *Message) {
	if len(msg.Key) == 0 {
		logger.Warn("GetValue: empty key", "peer", sess.RemotePeer())
		return
	}
	key := ContentKey(msg.Key)

	providers := d.node.content.GetProvidersFor(key, d.node.config.CloserPeerCount)
	if len(providers) > 0 {
		msg.ProviderPeers = d.node.toWirePeers(providers)
	}

	if value, expiry, ok := d.node.storage.GetValue(msg.Key); ok {
		msg.Record = &WireRecord{Key: msg.Key, Value: value, ExpiryString: expiry.Format(time.RFC3339Nano)}
	}

	_ = sess.Write(msg)
}

// onPutValue validates the record and, if accepted, stores it. There is no
// response body: acknowledgement to the sender is the stream closing
// cleanly afterward, not a reply frame, so a rejected record is logged and
// dropped rather than nacked.
func (d *Dispatcher) onPutValue(sess *Session, msg *Message) {
	if msg.Record == nil {
		logger.Warn("PutValue: no record in message", "peer", sess.RemotePeer())
		return
	}

	expiry, err := time.Parse(time.RFC3339Nano, msg.Record.ExpiryString)
	if err != nil {
		logger.Warn("PutValue: invalid expiry", "peer", sess.RemotePeer(), "err", err)
		return
	}

	if err := d.node.storage.PutValue(msg.Record.Key, msg.Record.Value, expiry); err != nil {
		logger.Warn("PutValue: rejected", "peer", sess.RemotePeer(), "err", err)
	}
}

// onAddProvider only accepts providers whose declared peer id equals the
// remote peer of the session (self-certification): no peer may announce a
// provider on another peer's behalf. Like onPutValue, there is no response
// frame.
func (d *Dispatcher) onAddProvider(sess *Session, msg *Message) {
	if len(msg.ProviderPeers) == 0 {
		logger.Warn("AddProvider: no provider_peers in message", "peer", sess.RemotePeer())
		return
	}
	if len(msg.Key) == 0 {
		logger.Warn("AddProvider: empty key", "peer", sess.RemotePeer())
		return
	}
	key := ContentKey(msg.Key)
	remote := sess.RemotePeer()

	for _, provider := range msg.ProviderPeers {
		if provider.PeerID != remote {
			continue
		}
		d.node.content.AddProvider(key, provider.PeerID)
		d.node.observePeer(PeerInfo{ID: provider.PeerID, Addrs: provider.Multiaddrs})
	}
}

// onGetProviders returns known providers for the key plus the nearest
// peers to NodeId(key), both enriched with connectedness.
func (d *Dispatcher) onGetProviders(sess *Session, msg *Message) {
	if len(msg.Key) == 0 {
		logger.Warn("GetProviders: empty key", "peer", sess.RemotePeer())
		return
	}
	key := ContentKey(msg.Key)

	providers := d.node.content.GetProvidersFor(key, d.node.config.CloserPeerCount*2)
	if len(providers) > 0 {
		msg.ProviderPeers = d.node.toWirePeers(providers)
	}

	msg.CloserPeers = d.node.nearestAsWirePeers(key)

	_ = sess.Write(msg)
}
