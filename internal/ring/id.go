// Package ring implements identifier arithmetic and peer handles for the
// Chord ring: a circular identifier space of 2^16 positions.
package ring

import "hash/fnv"

// Size is the number of identifiers on the ring (2^16).
const Size = 1 << 16

// Bits is the number of finger-table slots (log2(Size)).
const Bits = 16

// ID is a ring identifier, unsigned and wrapping modulo Size.
type ID = uint16

// Responsible reports whether the peer whose own id is selfID, and whose
// predecessor has id predID, owns x: x must lie in the half-open arc
// (predID, selfID] going clockwise, wrapping through 0 when predID > selfID.
// predID == selfID means the peer owns the whole ring.
func Responsible(predID, selfID, x ID) bool {
	if predID == selfID {
		return true
	}
	if predID < selfID {
		return x > predID && x <= selfID
	}
	// wraps through 0
	return x > predID || x <= selfID
}

// FingerStart returns (selfID + 2^i) mod Size for i in [0, Bits).
func FingerStart(selfID ID, i int) ID {
	return ID(uint32(selfID) + uint32(1)<<uint(i))
}

// Distance returns the clockwise distance from a to b on the ring, i.e. the
// number of steps to walk from a to b going forward, wrapping through 0.
func Distance(a, b ID) uint32 {
	if b >= a {
		return uint32(b - a)
	}
	return uint32(Size) - uint32(a) + uint32(b)
}

// HashKey maps an arbitrary key to a ring identifier, h = hash(key) mod
// Size, used by the routing component to decide who owns a data packet.
func HashKey(key []byte) ID {
	h := fnv.New32a()
	h.Write(key)
	return ID(h.Sum32() % Size)
}
