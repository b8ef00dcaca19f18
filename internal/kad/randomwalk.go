package kad

import (
	"context"
	"time"

	"github.com/jbenet/goprocess"
)

// RandomWalk periodically issues FindPeer lookups against random targets,
// the standard Kademlia self-healing behavior that keeps buckets for
// distant, rarely-contacted regions of the id space populated. Each period
// issues QueriesPerPeriod walks spaced Delay apart, then idles for
// Interval - Delay*QueriesPerPeriod (floored at zero) before the next
// period starts.
type RandomWalk struct {
	node *KademliaNode
	cfg  RandomWalkConfig
}

// NewRandomWalk builds a RandomWalk for node using cfg.
func NewRandomWalk(node *KademliaNode, cfg RandomWalkConfig) *RandomWalk {
	return &RandomWalk{node: node, cfg: cfg}
}

// Run is a goprocess.ProcessFunc: it loops until proc closes, issuing
// periodic walks on the node's own goroutine.
func (w *RandomWalk) Run(proc goprocess.Process) {
	for {
		for i := 0; i < w.cfg.QueriesPerPeriod; i++ {
			select {
			case <-proc.Closing():
				return
			default:
			}

			w.walkOnce()

			if i < w.cfg.QueriesPerPeriod-1 {
				if !w.wait(proc, w.cfg.Delay) {
					return
				}
			}
		}

		rest := w.cfg.Interval - w.cfg.Delay*time.Duration(w.cfg.QueriesPerPeriod)
		if rest < 0 {
			rest = 0
		}
		if !w.wait(proc, rest) {
			return
		}
	}
}

// wait blocks until d elapses, driven by the node's Scheduler rather than a
// raw time.After, or proc closes first. It returns false if proc closed.
func (w *RandomWalk) wait(proc goprocess.Process, d time.Duration) bool {
	fired := make(chan struct{})
	handle := w.node.scheduler.Schedule(d, func() { close(fired) })
	select {
	case <-proc.Closing():
		handle.Cancel()
		return false
	case <-fired:
		return true
	}
}

// walkOnce draws a uniformly random target via the node's RNG capability
// and runs one FindPeer lookup against it, discarding the usual
// ErrNotFound/ErrNoPeers outcomes a walk into an unoccupied region
// produces. FindPeer bounds its own deadline via the Scheduler capability,
// so walkOnce passes it an otherwise-unbounded context.
func (w *RandomWalk) walkOnce() {
	var buf [IDBytes]byte
	w.node.rng.FillRandomly(buf[:])
	target := NodeId(buf)

	if _, err := w.node.FindPeer(context.Background(), target); err != nil && err != ErrNotFound && err != ErrNoPeers {
		logger.Debug("random walk query failed", "target", target, "err", err)
	}
}
