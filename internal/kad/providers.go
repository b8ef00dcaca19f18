package kad

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// providerEntry is one (peer, insertion time) pair held for a content key.
type providerEntry struct {
	peer     NodeId
	insertAt time.Time
}

// providerSet is the bounded, TTL-pruned set of providers for one content
// key, newest insertion last.
type providerSet struct {
	mu      sync.Mutex
	entries []providerEntry
	bound   int
}

func newProviderSet(bound int) *providerSet {
	return &providerSet{bound: bound}
}

func (s *providerSet) add(peer NodeId, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if e.peer == peer {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	s.entries = append(s.entries, providerEntry{peer: peer, insertAt: now})
	if len(s.entries) > s.bound {
		// Evict the oldest insertion.
		s.entries = s.entries[len(s.entries)-s.bound:]
	}
}

// prune drops entries older than ttl as of now, and returns the surviving
// peers newest-first.
func (s *providerSet) prune(ttl time.Duration, now time.Time) []NodeId {
	s.mu.Lock()
	defer s.mu.Unlock()

	alive := s.entries[:0:0]
	for _, e := range s.entries {
		if now.Sub(e.insertAt) <= ttl {
			alive = append(alive, e)
		}
	}
	s.entries = alive

	out := make([]NodeId, len(alive))
	for i, e := range alive {
		out[len(alive)-1-i] = e.peer
	}
	return out
}

// ContentRoutingTable is the multi-map content_key -> set of provider peer
// ids with TTL. The set of distinct keys tracked is itself bounded by an
// LRU so a node cannot be made to retain unbounded provider-table memory by
// an attacker announcing many distinct keys.
type ContentRoutingTable struct {
	ttl   time.Duration
	bound int
	cache *lru.Cache[NodeId, *providerSet]
}

// NewContentRoutingTable builds a table with the given per-key TTL,
// per-key provider bound, and max number of distinct keys tracked.
func NewContentRoutingTable(ttl time.Duration, perKeyBound, maxKeys int) *ContentRoutingTable {
	cache, err := lru.New[NodeId, *providerSet](maxKeys)
	if err != nil {
		// Only possible with a non-positive size; NewKademliaNode always
		// passes a positive constant.
		panic(err)
	}
	return &ContentRoutingTable{ttl: ttl, bound: perKeyBound, cache: cache}
}

// AddProvider inserts or refreshes (key, peer) with the current time,
// evicting the oldest entry for key if over the per-key bound.
func (t *ContentRoutingTable) AddProvider(key NodeId, peer NodeId) {
	set, ok := t.cache.Get(key)
	if !ok {
		set = newProviderSet(t.bound)
		t.cache.Add(key, set)
	}
	set.add(peer, time.Now())
}

// GetProvidersFor prunes expired entries for key and returns the surviving
// providers newest-first, up to limit (0 means unlimited).
func (t *ContentRoutingTable) GetProvidersFor(key NodeId, limit int) []NodeId {
	set, ok := t.cache.Get(key)
	if !ok {
		return nil
	}
	peers := set.prune(t.ttl, time.Now())
	if limit > 0 && len(peers) > limit {
		peers = peers[:limit]
	}
	return peers
}
