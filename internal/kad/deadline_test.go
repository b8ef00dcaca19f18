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

// TestNode_DeadlineFiresThroughScheduler is scenario S6's unit-level check:
// the context n.deadline returns is bound by QueryTimeout driven by the
// Scheduler capability's virtual clock, not a raw wall-clock timer, and
// reports context.DeadlineExceeded once that clock has been advanced past
// the bound.
func TestNode_DeadlineFiresThroughScheduler(t *testing.T) {
	mc := clock.NewMock()
	node := fakeNode(t, NodeIdFromBytes([]byte("self")))
	node.scheduler = NewClockScheduler(mc)
	node.config.QueryTimeout = time.Second

	ctx, cancel := node.deadline(context.Background())
	defer cancel()

	select {
	case <-ctx.Done():
		t.Fatal("context should not be done before the scheduler fires")
	default:
	}

	mc.Add(time.Second)

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("deadline did not fire after advancing the mock clock past QueryTimeout")
	}
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}

// TestNode_FindPeerTimesOutWhenPeerNeverResponds is scenario S6 end to end:
// a peer that never answers a FIND_NODE should cause FindPeer to fail with
// ErrTimeout once the query's Scheduler-driven deadline elapses, rather
// than hang indefinitely.
func TestNode_FindPeerTimesOutWhenPeerNeverResponds(t *testing.T) {
	net := memhost.NewNetwork()
	mc := clock.NewMock()

	selfID := NodeIdFromBytes([]byte("self-timeout"))
	peerID := NodeIdFromBytes([]byte("silent-peer"))

	cfg := DefaultConfig()
	cfg.QueryTimeout = time.Second

	selfHost := net.NewHost(selfID)
	node := NewKademliaNode(selfHost, NewMemStorage(SimpleValidator{}), SimpleValidator{}, NewClockScheduler(mc), memhost.NewRNG(1), cfg)
	require.NoError(t, node.Start())
	defer node.Close()

	block := make(chan struct{})
	defer close(block)
	silentHost := net.NewHost(peerID)
	silentHost.SetProtocolHandler(cfg.ProtocolID, func(Stream) { <-block })

	node.AddPeer(peerID, nil)

	type result struct {
		info PeerInfo
		err  error
	}
	done := make(chan result, 1)
	go func() {
		info, err := node.FindPeer(context.Background(), NodeIdFromBytes([]byte("target")))
		done <- result{info: info, err: err}
	}()

	// Give the FindPeer goroutine a chance to reach n.deadline and register
	// its timer with the mock clock before advancing it.
	time.Sleep(50 * time.Millisecond)
	mc.Add(cfg.QueryTimeout)

	select {
	case r := <-done:
		assert.ErrorIs(t, r.err, ErrTimeout)
	case <-time.After(5 * time.Second):
		t.Fatal("FindPeer did not return after advancing past the query deadline")
	}
}
