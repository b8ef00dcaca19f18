package memhost

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/kadcore/node/internal/kad"
)

// Network is a registry of in-memory Hosts that can dial one another by
// NodeId. It stands in for a real transport's listen/dial/connection
// manager surface.
type Network struct {
	mu    sync.RWMutex
	hosts map[kad.NodeId]*Host
}

// NewNetwork builds an empty Network.
func NewNetwork() *Network {
	return &Network{hosts: make(map[kad.NodeId]*Host)}
}

// NewHost registers and returns a Host identified by id on this network.
func (n *Network) NewHost(id kad.NodeId) *Host {
	h := &Host{
		id:       id,
		net:      n,
		addrRepo: NewAddressRepo(),
		handlers: make(map[string]func(kad.Stream)),
		connCh:   make(chan kad.PeerInfo, 16),
	}
	n.mu.Lock()
	n.hosts[id] = h
	n.mu.Unlock()
	return h
}

func (n *Network) lookup(id kad.NodeId) (*Host, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	h, ok := n.hosts[id]
	return h, ok
}

// Host is an in-memory kad.Host: streams are net.Pipe-backed duplex
// connections handed directly to the remote host's registered handler, no
// intermediate buffering or real I/O involved.
type Host struct {
	id       kad.NodeId
	net      *Network
	addrRepo *AddressRepo

	mu       sync.Mutex
	handlers map[string]func(kad.Stream)
	connCh   chan kad.PeerInfo
}

func (h *Host) ID() kad.NodeId { return h.id }

func (h *Host) PeerInfo() kad.PeerInfo {
	return kad.PeerInfo{ID: h.id, Connected: kad.Connected}
}

func (h *Host) AddressRepo() kad.AddressRepo { return h.addrRepo }

// Connectedness reports CanConnect for any peer registered on the shared
// network and NotConnected otherwise; memhost has no notion of an actually
// open, idle connection distinct from "reachable".
func (h *Host) Connectedness(info kad.PeerInfo) kad.Connectedness {
	if _, ok := h.net.lookup(info.ID); ok {
		return kad.CanConnect
	}
	return kad.NotConnected
}

func (h *Host) SetProtocolHandler(id string, handler func(kad.Stream)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[id] = handler
}

// NewStream dials peer by looking it up directly on the shared Network
// (no addressing indirection) and invokes its registered handler on the
// remote side of a net.Pipe.
func (h *Host) NewStream(ctx context.Context, peer kad.NodeId, protocolID string) (kad.Stream, error) {
	remote, ok := h.net.lookup(peer)
	if !ok {
		return nil, fmt.Errorf("memhost: no such peer %s", peer)
	}

	remote.mu.Lock()
	handler := remote.handlers[protocolID]
	remote.mu.Unlock()
	if handler == nil {
		return nil, fmt.Errorf("memhost: peer %s has no handler for %s", peer, protocolID)
	}

	local, remoteSide := newPipeStream(h.id, remote.id)
	go handler(remoteSide)

	select {
	case h.connCh <- kad.PeerInfo{ID: remote.id, Connected: kad.Connected}:
	default:
	}

	return local, nil
}

func (h *Host) OnNewConnection() <-chan kad.PeerInfo { return h.connCh }

// pipeStream adapts a net.Conn half of a net.Pipe to kad.Stream.
type pipeStream struct {
	conn   net.Conn
	remote kad.NodeId
}

func newPipeStream(localID, remoteID kad.NodeId) (kad.Stream, kad.Stream) {
	c1, c2 := net.Pipe()
	return &pipeStream{conn: c1, remote: remoteID}, &pipeStream{conn: c2, remote: localID}
}

func (s *pipeStream) RemotePeer() kad.NodeId { return s.remote }
func (s *pipeStream) RemoteAddr() string     { return s.remote.String() }
func (s *pipeStream) Read(p []byte) (int, error)  { return s.conn.Read(p) }
func (s *pipeStream) Write(p []byte) (int, error) { return s.conn.Write(p) }
func (s *pipeStream) Close() error                { return s.conn.Close() }
func (s *pipeStream) Reset() error                { return s.conn.Close() }
