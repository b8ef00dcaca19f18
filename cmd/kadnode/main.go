// Package main is a standalone demo entry point for the kad package: it
// wires a handful of in-memory nodes together via memhost, bootstraps
// them into each other's routing tables, and runs one put/get/provide
// round-trip to demonstrate the node's public API end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/kadcore/node/internal/kad"
	"github.com/kadcore/node/internal/kad/memhost"
)

var (
	peerCount = flag.Int("peers", 8, "number of in-memory demo nodes to bring up")
	seed      = flag.Int64("seed", 1, "RNG seed for deterministic peer identities")
	walk      = flag.Bool("random-walk", false, "enable the periodic random-walk maintenance loop")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "kadnode: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	net := memhost.NewNetwork()
	nodes := make([]*kad.KademliaNode, 0, *peerCount)
	ids := make([]kad.NodeId, 0, *peerCount)

	for i := 0; i < *peerCount; i++ {
		id := kad.NodeIdFromBytes([]byte(fmt.Sprintf("demo-peer-%d-%d", *seed, i)))
		host := net.NewHost(id)
		rng := memhost.NewRNG(*seed + int64(i))
		validator := kad.SimpleValidator{}
		storage := kad.NewMemStorage(validator)
		scheduler := kad.NewClockScheduler(clock.New())

		cfg := kad.DefaultConfig()
		cfg.RandomWalk.Enabled = *walk

		node := kad.NewKademliaNode(host, storage, validator, scheduler, rng, cfg)
		if err := node.Start(); err != nil {
			return fmt.Errorf("start node %s: %w", id, err)
		}

		nodes = append(nodes, node)
		ids = append(ids, id)
	}
	defer func() {
		for _, node := range nodes {
			_ = node.Close()
		}
	}()

	// Seed every node with its ring neighbor so Bootstrap has somewhere to
	// start from, then let each node's random-target bootstrap lookup fan
	// the routing tables out.
	for i, node := range nodes {
		next := ids[(i+1)%len(ids)]
		node.AddPeer(next, nil)
	}
	for _, node := range nodes {
		if err := node.Bootstrap(ctx); err != nil {
			slog.Warn("bootstrap failed", "err", err)
		}
	}

	demo := nodes[0]
	key := []byte("kadnode-demo-key")
	value := []byte(fmt.Sprintf("hello from %s at %s", ids[0], time.Now().Format(time.RFC3339)))

	if err := demo.PutValue(ctx, key, value); err != nil {
		slog.Warn("put failed", "err", err)
	}
	if err := demo.AddProvider(ctx, key); err != nil {
		slog.Warn("add provider failed", "err", err)
	}

	reader := nodes[len(nodes)/2]
	got, err := reader.GetValue(ctx, key)
	if err != nil {
		slog.Warn("get failed", "err", err)
	} else {
		slog.Info("get succeeded", "value", string(got))
	}

	providers, err := reader.FindProviders(ctx, key, 4)
	if err != nil {
		slog.Warn("find providers failed", "err", err)
	} else {
		slog.Info("found providers", "count", len(providers))
	}

	slog.Info("kadnode demo running, ctrl-c to exit")
	<-ctx.Done()
	return nil
}
