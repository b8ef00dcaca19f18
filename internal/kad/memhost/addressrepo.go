package memhost

import (
	"sync"

	"github.com/kadcore/node/internal/kad"
)

// AddressRepo is an in-memory kad.AddressRepo. TTLKind is ignored and
// entries never expire: memhost is a test double, not a production address
// store.
type AddressRepo struct {
	mu    sync.RWMutex
	addrs map[kad.NodeId][]string
}

func NewAddressRepo() *AddressRepo {
	return &AddressRepo{addrs: make(map[kad.NodeId][]string)}
}

func (r *AddressRepo) UpsertAddresses(id kad.NodeId, addrs []string, _ kad.TTLKind) error {
	if len(addrs) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addrs[id] = append(append([]string{}, r.addrs[id]...), addrs...)
	return nil
}

func (r *AddressRepo) PeerInfo(id kad.NodeId) kad.PeerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return kad.PeerInfo{ID: id, Addrs: r.addrs[id]}
}
