// Package finger implements the 16-slot finger table used to shortcut
// lookups once built.
package finger

import (
	"github.com/chordring/peer/internal/ring"
)

// State is the finger table's build-state.
type State int

const (
	// Inactive: never built.
	Inactive State = iota
	// Init: build in progress, some slots unfilled.
	Init
	// Active: all 16 slots filled.
	Active
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Init:
		return "init"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// Table owns ring.Bits slots of peer handles plus build state. Rebuilding
// discards the previous table (and the peer handles it held) outright, so
// the table owns and releases its entries on rebuild rather than leaving
// dangling references.
type Table struct {
	state  State
	starts [ring.Bits]ring.ID
	slots  [ring.Bits]*ring.Peer
	count  int
}

// New returns an empty, Inactive finger table.
func New() *Table {
	return &Table{state: Inactive}
}

func (t *Table) State() State { return t.state }
func (t *Table) Count() int   { return t.count }

// BeginBuild discards any existing table, allocates a fresh one in Init
// state, and returns the ring.Bits (slotIndex, start) pairs to emit lookups
// for. Only the start travels on the wire, so replies are matched back to
// slots by start (see Place), not by slot index: if two slots shared a
// start (impossible at ring.Bits == 16), replies would fill them in slot
// order regardless of which lookup they answer.
func (t *Table) BeginBuild(selfID ring.ID) []Lookup {
	t.state = Init
	t.count = 0
	t.slots = [ring.Bits]*ring.Peer{}
	lookups := make([]Lookup, ring.Bits)
	for i := 0; i < ring.Bits; i++ {
		start := ring.FingerStart(selfID, i)
		t.starts[i] = start
		lookups[i] = Lookup{Slot: i, Start: start}
	}
	return lookups
}

// Lookup is one outstanding finger-table lookup: which slot it will fill,
// and the ring identifier being looked up for it.
type Lookup struct {
	Slot  int
	Start ring.ID
}

// Place assigns peer to the first still-empty slot whose start equals
// start, incrementing the fill count and transitioning to Active once all
// slots are filled. It reports whether a slot was found and filled.
func (t *Table) Place(start ring.ID, peer ring.Peer) bool {
	if t.state == Inactive {
		return false
	}
	for i := 0; i < ring.Bits; i++ {
		if t.starts[i] == start && t.slots[i] == nil {
			p := peer
			t.slots[i] = &p
			t.count++
			if t.count == ring.Bits {
				t.state = Active
			}
			return true
		}
	}
	return false
}

// Slot returns the peer filled into slot i, if any.
func (t *Table) Slot(i int) (ring.Peer, bool) {
	if i < 0 || i >= ring.Bits || t.slots[i] == nil {
		return ring.Peer{}, false
	}
	return *t.slots[i], true
}

// ClosestPreceding returns the largest-index slot whose start lies strictly
// between selfID and hashID going clockwise (ring-distance terms, not a raw
// integer "<" which ignores wraparound). ok is false if the table is not
// Active or no slot qualifies, in which case the caller should fall back to
// the successor.
func (t *Table) ClosestPreceding(selfID, hashID ring.ID) (ring.Peer, bool) {
	if t.state != Active {
		return ring.Peer{}, false
	}
	distToTarget := ring.Distance(selfID, hashID)
	for i := ring.Bits - 1; i >= 0; i-- {
		start := t.starts[i]
		if start == selfID {
			continue
		}
		if ring.Distance(selfID, start) < distToTarget {
			return *t.slots[i], true
		}
	}
	return ring.Peer{}, false
}
