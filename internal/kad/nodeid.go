package kad

import (
	"encoding/hex"

	"github.com/mr-tron/base58"
	sha256simd "github.com/minio/sha256-simd"
)

// IDBits is the width of the identifier space: 256 bits, one per k-bucket.
const IDBits = 256

// IDBytes is IDBits expressed in bytes.
const IDBytes = IDBits / 8

// NodeId is a 256-bit identifier, derived from a peer public key hash or
// from the hash of a content key. It supports the XOR metric and
// common-prefix-length used throughout routing and queries.
type NodeId [IDBytes]byte

// NodeIdFromBytes derives a NodeId by hashing b with SHA-256. Both peer
// identities (hash of a public key) and content identifiers (hash of a
// content key) are derived this way.
func NodeIdFromBytes(b []byte) NodeId {
	return NodeId(sha256simd.Sum256(b))
}

// String renders the NodeId as base58, matching the convention the rest of
// the ecosystem (and the libp2p lineage this design descends from) uses for
// peer ids in logs.
func (id NodeId) String() string {
	return base58.Encode(id[:])
}

// Hex renders the raw identifier bytes, useful for tests and error messages
// where base58's variable width is inconvenient.
func (id NodeId) Hex() string {
	return hex.EncodeToString(id[:])
}

// NodeIdFromRaw interprets b as the literal IDBytes of a NodeId, with no
// hashing. FIND_NODE targets travel the wire this way (already in ID
// space); content keys travel as arbitrary bytes and go through
// NodeIdFromBytes/ContentKey instead.
func NodeIdFromRaw(b []byte) (NodeId, error) {
	var id NodeId
	if len(b) != IDBytes {
		return id, ErrInvalidKey
	}
	copy(id[:], b)
	return id, nil
}

// Distance is the XOR metric between two NodeIds, itself a 256-bit value
// with a total (no-tie) order under Cmp.
type Distance [IDBytes]byte

// XOR returns the XOR distance between a and b.
func XOR(a, b NodeId) Distance {
	var d Distance
	for i := range a {
		d[i] = a[i] ^ b[i]
	}
	return d
}

// Cmp orders two distances: -1 if d < other, 0 if equal, 1 if d > other.
// Comparison is big-endian byte order, i.e. numeric order of the 256-bit
// unsigned integer.
func (d Distance) Cmp(other Distance) int {
	for i := range d {
		if d[i] < other[i] {
			return -1
		}
		if d[i] > other[i] {
			return 1
		}
	}
	return 0
}

// Less reports whether d is strictly less than other.
func (d Distance) Less(other Distance) bool {
	return d.Cmp(other) < 0
}

// CommonPrefixLen returns the number of leading bits a and b share.
func CommonPrefixLen(a, b NodeId) int {
	d := XOR(a, b)
	bits := 0
	for _, byt := range d {
		if byt == 0 {
			bits += 8
			continue
		}
		for mask := byte(0x80); mask > 0; mask >>= 1 {
			if byt&mask != 0 {
				return bits
			}
			bits++
		}
		return bits
	}
	return bits
}

// BucketIndex returns the k-bucket index a remote id falls into relative to
// local: the number of leading bits remote shares with local, clamped to
// the last bucket when remote == local (which callers must otherwise
// exclude — self never occupies a bucket).
func BucketIndex(local, remote NodeId) int {
	cpl := CommonPrefixLen(local, remote)
	if cpl >= IDBits {
		return IDBits - 1
	}
	return cpl
}

// CompareDistance orders a and b by their distance to target: -1 if a is
// closer, 0 if equidistant (impossible for distinct ids under XOR), 1 if b
// is closer.
func CompareDistance(a, b, target NodeId) int {
	return XOR(a, target).Cmp(XOR(b, target))
}
