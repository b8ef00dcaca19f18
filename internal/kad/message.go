package kad

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/multiformats/go-varint"
)

// MessageType enumerates the six Kademlia RPC kinds carried over the wire.
type MessageType uint8

const (
	MessagePing MessageType = iota + 1
	MessagePutValue
	MessageGetValue
	MessageAddProvider
	MessageGetProviders
	MessageFindNode
)

func (t MessageType) String() string {
	switch t {
	case MessagePing:
		return "PING"
	case MessagePutValue:
		return "PUT_VALUE"
	case MessageGetValue:
		return "GET_VALUE"
	case MessageAddProvider:
		return "ADD_PROVIDER"
	case MessageGetProviders:
		return "GET_PROVIDERS"
	case MessageFindNode:
		return "FIND_NODE"
	default:
		return "UNKNOWN"
	}
}

// WirePeer is one peer entry as carried in closer_peers / provider_peers.
type WirePeer struct {
	PeerID        NodeId        `json:"peer_id"`
	Multiaddrs    []string      `json:"multiaddrs,omitempty"`
	Connectedness Connectedness `json:"connectedness"`
}

// WireRecord is the optional record body of a PUT_VALUE/GET_VALUE message.
type WireRecord struct {
	Key          []byte `json:"key"`
	Value        []byte `json:"value"`
	ExpiryString string `json:"expiry"`
}

// Message is the framed unit exchanged over a Session. Fields map 1:1 to
// the capability contract's wire protocol: type, key, an optional record,
// and the two peer lists. RequestID is carried on the wire and echoed back
// in responses (the dispatcher answers by reusing the request message), but
// nothing in this package reads it: each request uses its own stream.
type Message struct {
	RequestID     uint64      `json:"request_id"`
	Type          MessageType `json:"type"`
	Key           []byte      `json:"key,omitempty"`
	Record        *WireRecord `json:"record,omitempty"`
	CloserPeers   []WirePeer  `json:"closer_peers,omitempty"`
	ProviderPeers []WirePeer  `json:"provider_peers,omitempty"`
}

// Clear resets msg to a bare PING-style echo: just the type, no payload.
func (msg *Message) Clear() {
	msg.Key = nil
	msg.Record = nil
	msg.CloserPeers = nil
	msg.ProviderPeers = nil
}

// marshal serializes msg to its wire representation. The wire codec proper
// (protobuf, in the capability this package treats as external) is out of
// this package's scope; encoding/json is used here as a concrete,
// self-contained stand-in with the same framing discipline (see
// writeMessage/readMessage).
func marshal(msg *Message) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMessageSerialize, err)
	}
	return b, nil
}

func unmarshal(b []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(b, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMessageSerialize, err)
	}
	return &msg, nil
}

// writeMessage frames msg with a leading varint length prefix and writes it
// to w, matching the length-prefixed framing the Session capability
// contract describes.
func writeMessage(w io.Writer, msg *Message) error {
	body, err := marshal(msg)
	if err != nil {
		return err
	}
	prefix := varint.ToUvarint(uint64(len(body)))
	if _, err := w.Write(prefix); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// readMessage reads one length-prefixed frame from r and decodes it.
func readMessage(r *bufio.Reader) (*Message, error) {
	n, err := varint.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return unmarshal(body)
}
