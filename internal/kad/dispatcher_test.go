package kad

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeStream is a minimal Stream stub for dispatcher tests that never need
// a real transport: only RemotePeer is consulted by onAddProvider's
// self-certification check, and onAddProvider writes no response.
type fakeStream struct {
	remote NodeId
}

func (s *fakeStream) RemotePeer() NodeId          { return s.remote }
func (s *fakeStream) RemoteAddr() string          { return s.remote.String() }
func (s *fakeStream) Read(p []byte) (int, error)  { return 0, io.EOF }
func (s *fakeStream) Write(p []byte) (int, error) { return len(p), nil }
func (s *fakeStream) Close() error                { return nil }
func (s *fakeStream) Reset() error                { return nil }

// TestDispatcher_AddProviderRejectsNonSelfCertified exercises property #7's
// negative case: a provider entry whose declared peer id does not match
// the session's actual remote peer must not be recorded, even though the
// message is otherwise well-formed.
func TestDispatcher_AddProviderRejectsNonSelfCertified(t *testing.T) {
	self := NodeIdFromBytes([]byte("victim"))
	node := fakeNode(t, self)

	attacker := NodeIdFromBytes([]byte("attacker"))
	impostor := NodeIdFromBytes([]byte("impostor"))

	stream := &fakeStream{remote: attacker}
	sess := NewSession(stream, node.scheduler, node.config.SessionWriteTimeout, node.dispatcher.Deliver, func(*Session) {})

	key := []byte("contested-key")
	msg := &Message{
		Type:          MessageAddProvider,
		Key:           key,
		ProviderPeers: []WirePeer{{PeerID: impostor, Connectedness: Connected}},
	}

	node.dispatcher.Deliver(sess, msg)

	assert.Empty(t, node.content.GetProvidersFor(ContentKey(key), 0), "a provider announced on another peer's behalf must not be recorded")
}

// TestDispatcher_AddProviderAcceptsSelfCertified is the accompanying
// positive case: a provider entry whose declared peer id matches the
// session's remote peer is recorded.
func TestDispatcher_AddProviderAcceptsSelfCertified(t *testing.T) {
	self := NodeIdFromBytes([]byte("victim"))
	node := fakeNode(t, self)

	attacker := NodeIdFromBytes([]byte("attacker"))
	stream := &fakeStream{remote: attacker}
	sess := NewSession(stream, node.scheduler, node.config.SessionWriteTimeout, node.dispatcher.Deliver, func(*Session) {})

	key := []byte("contested-key")
	msg := &Message{
		Type:          MessageAddProvider,
		Key:           key,
		ProviderPeers: []WirePeer{{PeerID: attacker, Connectedness: Connected}},
	}

	node.dispatcher.Deliver(sess, msg)

	assert.ElementsMatch(t, []NodeId{attacker}, node.content.GetProvidersFor(ContentKey(key), 0))
}
