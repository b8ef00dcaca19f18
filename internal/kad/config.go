package kad

import "time"

// Config carries every tunable the Kademlia node logic consumes. Field
// names match the configuration items enumerated by the node's capability
// contract; there is no persisted on-disk state, so Config is always
// supplied by the caller at construction.
type Config struct {
	// ProtocolID is the registered stream protocol the node's handler is
	// installed under.
	ProtocolID string

	// CloserPeerCount (k) bounds returned peer/provider lists and the
	// best-k set maintained by a query.
	CloserPeerCount int

	// QueryAlpha (α) bounds the number of RPCs a query keeps in flight.
	QueryAlpha int

	// QueryTimeout is the per-query deadline; on expiry remaining in-flight
	// RPCs are abandoned and the handler is invoked with a best-effort
	// result or ErrTimeout.
	QueryTimeout time.Duration

	// ProviderTTL is the lifetime of a provider table entry before it is
	// lazily pruned on read.
	ProviderTTL time.Duration

	// ProviderBound caps the number of provider entries tracked per content
	// key; insertions beyond the bound evict the oldest entry.
	ProviderBound int

	// SessionWriteTimeout bounds a single session write; on expiry the
	// session closes with ErrTransport.
	SessionWriteTimeout time.Duration

	RandomWalk RandomWalkConfig
}

// RandomWalkConfig controls the periodic self-healing lookups the node
// issues into random targets.
type RandomWalkConfig struct {
	Enabled bool

	// Interval sets the pause after a period's last walk: the loop idles
	// for Interval - Delay*QueriesPerPeriod (floored at zero) before the
	// next period.
	Interval time.Duration

	// Delay separates consecutive walks within a period.
	Delay time.Duration

	// QueriesPerPeriod is the number of walks issued back-to-back, spaced
	// by Delay, within one Interval.
	QueriesPerPeriod int
}

// DefaultConfig returns the canonical Kademlia parameterization: k=20,
// α=3, a 24h provider TTL, and random walk disabled (callers opt in).
func DefaultConfig() Config {
	return Config{
		ProtocolID:          "/kad/1.0.0",
		CloserPeerCount:     20,
		QueryAlpha:          3,
		QueryTimeout:        30 * time.Second,
		ProviderTTL:         24 * time.Hour,
		ProviderBound:       256,
		SessionWriteTimeout: 10 * time.Second,
		RandomWalk: RandomWalkConfig{
			Enabled:          false,
			Interval:         1 * time.Hour,
			Delay:            10 * time.Second,
			QueriesPerPeriod: 1,
		},
	}
}
