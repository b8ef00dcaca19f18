package kad

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadcore/node/internal/kad/memhost"
)

// TestNode_FindPeerLocalFastPath checks the address-repo short-circuit: a
// target the address repository already has addresses for is delivered
// straight from AddressRepo, without ever needing a seeded routing table.
func TestNode_FindPeerLocalFastPath(t *testing.T) {
	node := fakeNode(t, NodeIdFromBytes([]byte("self")))
	target := NodeIdFromBytes([]byte("known-target"))
	node.AddPeer(target, []string{"/memhost/known-target"})

	info, err := node.FindPeer(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, target, info.ID)
	assert.Equal(t, []string{"/memhost/known-target"}, info.Addrs)
}

// TestNode_GetValueLocalFastPath checks that a locally stored, unexpired
// record answers GetValue without consulting the routing table at all: an
// isolated node with zero known peers would otherwise fail with
// ErrNoPeers the moment it tried to build a shortlist.
func TestNode_GetValueLocalFastPath(t *testing.T) {
	node := fakeNode(t, NodeIdFromBytes([]byte("self")))

	key, value := []byte("local-key"), []byte("local-value")
	require.NoError(t, node.storage.PutValue(key, value, node.scheduler.Now().Add(time.Hour)))

	got, err := node.GetValue(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, value, got)
}

// TestNode_GetValueLocalExpiredFallsThroughToNetwork checks that an expired
// local record is not treated as a local hit: GetValue must fall through
// to the network path (and, with no peers known, fail with ErrNoPeers)
// rather than returning stale data.
func TestNode_GetValueLocalExpiredFallsThroughToNetwork(t *testing.T) {
	node := fakeNode(t, NodeIdFromBytes([]byte("self")))

	key, value := []byte("stale-key"), []byte("stale-value")
	require.NoError(t, node.storage.PutValue(key, value, node.scheduler.Now().Add(-time.Minute)))

	_, err := node.GetValue(context.Background(), key)
	assert.ErrorIs(t, err, ErrNoPeers)
}

// TestNode_ReachableProvidersFiltersUnaddressedPeers checks the local
// provider fast path only counts providers the address repository knows
// how to reach: a provider entry with no known address must not count
// toward the limit threshold, mirroring the original's per-candidate
// address/connectedness skip.
func TestNode_ReachableProvidersFiltersUnaddressedPeers(t *testing.T) {
	node := fakeNode(t, NodeIdFromBytes([]byte("self")))
	key := NodeIdFromBytes([]byte("content-key"))

	unaddressed := NodeIdFromBytes([]byte("no-address"))
	addressed := NodeIdFromBytes([]byte("has-address"))
	node.content.AddProvider(key, unaddressed)
	node.content.AddProvider(key, addressed)
	require.NoError(t, node.host.AddressRepo().UpsertAddresses(addressed, []string{"/memhost/has-address"}, TTLDay))

	got := node.reachableProviders(key, 0)
	assert.ElementsMatch(t, []NodeId{addressed}, got)
}

// TestNode_ProvideWithoutNotifyStaysLocal checks that Provide(ctx, key,
// false) records self in the local content table but never announces it
// over the network: a peer one hop away must not learn of it.
func TestNode_ProvideWithoutNotifyStaysLocal(t *testing.T) {
	net := memhost.NewNetwork()
	aID, bID := NodeIdFromBytes([]byte("provider")), NodeIdFromBytes([]byte("listener"))

	validator := SimpleValidator{}
	cfg := DefaultConfig()
	cfg.QueryTimeout = 5 * time.Second

	a := NewKademliaNode(net.NewHost(aID), NewMemStorage(validator), validator, NewClockScheduler(clock.New()), memhost.NewRNG(1), cfg)
	b := NewKademliaNode(net.NewHost(bID), NewMemStorage(validator), validator, NewClockScheduler(clock.New()), memhost.NewRNG(2), cfg)
	require.NoError(t, a.Start())
	require.NoError(t, b.Start())
	t.Cleanup(func() { a.Close(); b.Close() })

	a.AddPeer(bID, nil)
	b.AddPeer(aID, nil)

	key := []byte("quiet-key")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Provide(ctx, key, false))

	target := ContentKey(key)
	assert.NotEmpty(t, a.content.GetProvidersFor(target, 0), "provide must record self locally regardless of notify")
	assert.Empty(t, b.content.GetProvidersFor(target, 0), "provide with notify=false must not reach other peers")
}
