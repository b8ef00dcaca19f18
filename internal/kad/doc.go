// Package kad implements a Kademlia distributed hash table node: routing
// and provider tables, the iterative query executors that back FindPeer,
// FindProviders, GetValue, PutValue and AddProvider, the inbound message
// dispatcher, and the random-walk maintenance loop.
//
// The package treats the underlying transport, wire codec, cryptographic
// primitives, address repository and scheduler runtime as capabilities
// injected at construction (see capabilities.go); it does not open sockets,
// encode protobuf, or hash keys on its own behalf beyond deriving NodeIds.
package kad
