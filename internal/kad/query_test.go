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

// fakeNode builds a bare KademliaNode with an in-memory Host, just enough
// identity surface for Query.send's self-filtering, with no live network.
func fakeNode(t *testing.T, id NodeId) *KademliaNode {
	t.Helper()
	net := memhost.NewNetwork()
	host := net.NewHost(id)
	return NewKademliaNode(host, NewMemStorage(SimpleValidator{}), SimpleValidator{}, NewClockScheduler(clock.New()), memhost.NewRNG(1), DefaultConfig())
}

func TestQuery_ConvergesOnBestK(t *testing.T) {
	self := NodeIdFromBytes([]byte("self"))
	node := fakeNode(t, self)

	target := NodeIdFromBytes([]byte("target"))
	peers := make([]NodeId, 5)
	for i := range peers {
		peers[i] = NodeIdFromBytes([]byte{byte(i)})
	}

	rpc := func(ctx context.Context, peer NodeId) (*Message, error) {
		return &Message{Type: MessageFindNode}, nil
	}
	var responded []NodeId
	onResp := func(peer NodeId, resp *Message) ([]WirePeer, bool) {
		responded = append(responded, peer)
		return nil, false
	}

	q := NewQuery(node, target, peers, rpc, onResp)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Run(ctx)

	assert.ElementsMatch(t, peers, responded)
	assert.ElementsMatch(t, peers, q.Responded())
}

func TestQuery_EarlyTerminationOnDone(t *testing.T) {
	self := NodeIdFromBytes([]byte("self"))
	node := fakeNode(t, self)
	target := NodeIdFromBytes([]byte("target"))

	a := NodeIdFromBytes([]byte("a"))
	b := NodeIdFromBytes([]byte("b"))

	var calls int
	rpc := func(ctx context.Context, peer NodeId) (*Message, error) {
		calls++
		return &Message{}, nil
	}
	onResp := func(peer NodeId, resp *Message) ([]WirePeer, bool) {
		return nil, peer == a
	}

	q := NewQuery(node, target, []NodeId{a, b}, rpc, onResp)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Run(ctx)

	require.LessOrEqual(t, calls, 2)
}

func TestQuery_MergesCloserPeers(t *testing.T) {
	self := NodeIdFromBytes([]byte("self"))
	node := fakeNode(t, self)
	target := NodeIdFromBytes([]byte("target"))

	seed := NodeIdFromBytes([]byte("seed"))
	discovered := NodeIdFromBytes([]byte("discovered"))

	seen := make(map[NodeId]bool)
	rpc := func(ctx context.Context, peer NodeId) (*Message, error) {
		return &Message{}, nil
	}
	onResp := func(peer NodeId, resp *Message) ([]WirePeer, bool) {
		seen[peer] = true
		if peer == seed && !seen[discovered] {
			return []WirePeer{{PeerID: discovered, Connectedness: CanConnect}}, false
		}
		return nil, false
	}

	q := NewQuery(node, target, []NodeId{seed}, rpc, onResp)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Run(ctx)

	assert.True(t, seen[discovered], "discovered peer from closer_peers should be queried")
}
