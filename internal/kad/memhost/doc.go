// Package memhost implements the kad capability contract (Host,
// AddressRepo, Stream, RNG) entirely in memory, wiring multiple
// KademliaNode instances together through a shared Network for use in
// tests and the standalone demo command, without opening a single real
// socket.
package memhost
