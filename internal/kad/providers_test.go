package kad

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentRoutingTable_AddAndGet(t *testing.T) {
	table := NewContentRoutingTable(time.Hour, 10, 100)
	key := NodeIdFromBytes([]byte("content"))
	peer := NodeIdFromBytes([]byte("peer"))

	table.AddProvider(key, peer)

	got := table.GetProvidersFor(key, 0)
	require.Len(t, got, 1)
	assert.Equal(t, peer, got[0])
}

func TestContentRoutingTable_UnknownKeyIsEmpty(t *testing.T) {
	table := NewContentRoutingTable(time.Hour, 10, 100)
	assert.Empty(t, table.GetProvidersFor(NodeIdFromBytes([]byte("nope")), 0))
}

func TestContentRoutingTable_LimitCaps(t *testing.T) {
	table := NewContentRoutingTable(time.Hour, 10, 100)
	key := NodeIdFromBytes([]byte("content"))
	for i := 0; i < 5; i++ {
		table.AddProvider(key, NodeIdFromBytes([]byte{byte(i)}))
	}
	assert.Len(t, table.GetProvidersFor(key, 2), 2)
}

func TestProviderSet_BoundEvictsOldest(t *testing.T) {
	s := newProviderSet(2)
	now := time.Now()
	s.add(NodeIdFromBytes([]byte("a")), now)
	s.add(NodeIdFromBytes([]byte("b")), now.Add(time.Second))
	s.add(NodeIdFromBytes([]byte("c")), now.Add(2*time.Second))

	alive := s.prune(time.Hour, now.Add(2*time.Second))
	require.Len(t, alive, 2)
	for _, id := range alive {
		assert.NotEqual(t, NodeIdFromBytes([]byte("a")), id)
	}
}

func TestProviderSet_PruneDropsStale(t *testing.T) {
	s := newProviderSet(10)
	now := time.Now()
	s.add(NodeIdFromBytes([]byte("old")), now)

	alive := s.prune(time.Second, now.Add(time.Hour))
	assert.Empty(t, alive)
}

func TestProviderSet_AddDeduplicatesAndRefreshes(t *testing.T) {
	s := newProviderSet(10)
	peer := NodeIdFromBytes([]byte("peer"))
	now := time.Now()
	s.add(peer, now)
	s.add(peer, now.Add(time.Minute))

	alive := s.prune(time.Hour, now.Add(time.Minute))
	assert.Len(t, alive, 1)
}
