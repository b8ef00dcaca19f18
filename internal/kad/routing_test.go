package kad

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// kBucket
// ============================================================================

func TestKBucket_AddUntilFull(t *testing.T) {
	b := newKBucket(3)

	for i := 0; i < 3; i++ {
		id := NodeIdFromBytes([]byte{byte(i)})
		result, _ := b.update(id, time.Now())
		assert.Equal(t, Added, result)
	}
	assert.Equal(t, 3, b.size())

	overflow := NodeIdFromBytes([]byte{99})
	result, stale := b.update(overflow, time.Now())
	require.Equal(t, Rejected, result)
	assert.Equal(t, NodeIdFromBytes([]byte{0}), stale, "stalest peer is the first one inserted")
}

func TestKBucket_UpdateMovesToMostRecent(t *testing.T) {
	b := newKBucket(2)
	a := NodeIdFromBytes([]byte("a"))
	c := NodeIdFromBytes([]byte("c"))

	b.update(a, time.Now())
	b.update(c, time.Now())
	result, _ := b.update(a, time.Now())

	assert.Equal(t, Updated, result)
	assert.Equal(t, []NodeId{c, a}, b.snapshot())
}

func TestKBucket_Remove(t *testing.T) {
	b := newKBucket(2)
	a := NodeIdFromBytes([]byte("a"))
	b.update(a, time.Now())

	assert.True(t, b.remove(a))
	assert.Equal(t, 0, b.size())
	assert.False(t, b.remove(a))
}

// ============================================================================
// PeerRoutingTable
// ============================================================================

func TestPeerRoutingTable_RejectsSelf(t *testing.T) {
	self := NodeIdFromBytes([]byte("self"))
	rt := NewPeerRoutingTable(self, 20)

	result, _ := rt.Update(self)
	assert.Equal(t, Rejected, result)
	assert.Equal(t, 0, rt.Size())
}

func TestPeerRoutingTable_GetNearestPeersOrdered(t *testing.T) {
	self := NodeIdFromBytes([]byte("self"))
	rt := NewPeerRoutingTable(self, 20)

	target := NodeIdFromBytes([]byte("target"))
	var ids []NodeId
	for i := 0; i < 10; i++ {
		id := NodeIdFromBytes([]byte{byte(i), byte(i * 7)})
		rt.Update(id)
		ids = append(ids, id)
	}

	nearest := rt.GetNearestPeers(target, 5)
	require.Len(t, nearest, 5)
	for i := 1; i < len(nearest); i++ {
		assert.LessOrEqual(t, CompareDistance(nearest[i-1], nearest[i], target), 0)
	}
}

func TestPeerRoutingTable_BucketIndexOfMatchesDirectCall(t *testing.T) {
	self := NodeIdFromBytes([]byte("self"))
	rt := NewPeerRoutingTable(self, 20)
	peer := NodeIdFromBytes([]byte("peer"))

	assert.Equal(t, BucketIndex(self, peer), rt.BucketIndexOf(peer))
}
