package kad

import (
	"sort"
	"sync"
	"time"
)

// UpdateResult reports what PeerRoutingTable.Update did with a peer id.
type UpdateResult int

const (
	Added UpdateResult = iota
	Updated
	Rejected
)

// kBucket holds at most Config.CloserPeerCount peer ids sharing a common
// bucket index with the local id, in least-recently-seen order (oldest at
// index 0, most-recently-seen at the end).
type kBucket struct {
	mu    sync.Mutex
	cap   int
	peers []NodeId
	seen  map[NodeId]time.Time
}

func newKBucket(capacity int) *kBucket {
	return &kBucket{
		cap:  capacity,
		seen: make(map[NodeId]time.Time),
	}
}

func (b *kBucket) indexOf(id NodeId) int {
	for i, p := range b.peers {
		if p == id {
			return i
		}
	}
	return -1
}

// update moves id to the most-recent end if present, appends it if there is
// room, or reports Rejected along with the current stalest peer otherwise.
func (b *kBucket) update(id NodeId, now time.Time) (UpdateResult, NodeId) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seen[id] = now

	if i := b.indexOf(id); i >= 0 {
		b.peers = append(b.peers[:i], b.peers[i+1:]...)
		b.peers = append(b.peers, id)
		return Updated, NodeId{}
	}

	if len(b.peers) < b.cap {
		b.peers = append(b.peers, id)
		return Added, NodeId{}
	}

	return Rejected, b.peers[0]
}

func (b *kBucket) remove(id NodeId) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := b.indexOf(id); i >= 0 {
		b.peers = append(b.peers[:i], b.peers[i+1:]...)
		delete(b.seen, id)
		return true
	}
	return false
}

func (b *kBucket) snapshot() []NodeId {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]NodeId, len(b.peers))
	copy(out, b.peers)
	return out
}

func (b *kBucket) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.peers)
}

// PeerRoutingTable is an address-agnostic map of peer ids grouped into
// IDBits k-buckets by XOR-distance prefix length from self. A peer id
// appears in at most one bucket; self never appears in any bucket.
type PeerRoutingTable struct {
	self    NodeId
	buckets [IDBits]*kBucket
}

// NewPeerRoutingTable builds an empty routing table with bucketSize slots
// per bucket (canonically Config.CloserPeerCount).
func NewPeerRoutingTable(self NodeId, bucketSize int) *PeerRoutingTable {
	rt := &PeerRoutingTable{self: self}
	for i := range rt.buckets {
		rt.buckets[i] = newKBucket(bucketSize)
	}
	return rt
}

func (rt *PeerRoutingTable) bucketFor(id NodeId) *kBucket {
	return rt.buckets[BucketIndex(rt.self, id)]
}

// Update records an observation of peer id, moving it to most-recent in its
// bucket. It never performs I/O: on Rejected the caller receives the
// stalest peer in the bucket and may choose to probe-and-evict it.
func (rt *PeerRoutingTable) Update(id NodeId) (UpdateResult, NodeId) {
	if id == rt.self {
		return Rejected, NodeId{}
	}
	return rt.bucketFor(id).update(id, time.Now())
}

// Remove drops id from the table, if present.
func (rt *PeerRoutingTable) Remove(id NodeId) {
	if id == rt.self {
		return
	}
	rt.bucketFor(id).remove(id)
}

// GetNearestPeers returns up to n known peer ids ordered by ascending XOR
// distance to target. XOR distance gives a total order, so there are no
// ties to break.
func (rt *PeerRoutingTable) GetNearestPeers(target NodeId, n int) []NodeId {
	all := rt.AllPeers()
	sort.Slice(all, func(i, j int) bool {
		return CompareDistance(all[i], all[j], target) < 0
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// AllPeers returns every peer id currently held across all buckets, in no
// particular order.
func (rt *PeerRoutingTable) AllPeers() []NodeId {
	var out []NodeId
	for _, b := range rt.buckets {
		out = append(out, b.snapshot()...)
	}
	return out
}

// Size returns the total number of peers held across all buckets.
func (rt *PeerRoutingTable) Size() int {
	total := 0
	for _, b := range rt.buckets {
		total += b.size()
	}
	return total
}

// BucketIndexOf exposes which bucket a given peer id would fall into,
// primarily for property tests asserting bucket correctness.
func (rt *PeerRoutingTable) BucketIndexOf(id NodeId) int {
	return BucketIndex(rt.self, id)
}
