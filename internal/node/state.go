package node

import "github.com/chordring/peer/internal/ring"

// RingState is self/predecessor/successor, mutated only from the node's
// run-loop goroutine. Self is fixed at startup; predecessor and successor
// start unset and tighten over time.
type RingState struct {
	Self ring.Peer
	Pred *ring.Peer
	Succ *ring.Peer
}

// MaybeAdoptPred updates Pred to candidate if Pred is unset, or if candidate
// is a strictly tighter predecessor (responsible(Pred.ID, Self.ID,
// candidate.ID) holds against the *current* predecessor). Returns whether
// it adopted.
func (r *RingState) MaybeAdoptPred(candidate ring.Peer) bool {
	if r.Pred == nil {
		r.Pred = &candidate
		return true
	}
	if ring.Responsible(r.Pred.ID, r.Self.ID, candidate.ID) {
		r.Pred = &candidate
		return true
	}
	return false
}

// MaybeAdoptSucc updates Succ to candidate if Succ is unset, or if
// candidate is a strictly tighter successor (responsible(Self.ID, Succ.ID,
// candidate.ID) holds against the *current* successor). Returns whether it
// adopted.
func (r *RingState) MaybeAdoptSucc(candidate ring.Peer) bool {
	if r.Succ == nil {
		r.Succ = &candidate
		return true
	}
	if ring.Responsible(r.Self.ID, r.Succ.ID, candidate.ID) {
		r.Succ = &candidate
		return true
	}
	return false
}

// responsibleForData reports which of "own", "successor" or neither is
// responsible for hash h. If Pred is unset the first predicate is treated
// as false; if Succ is unset the peer is alone and the first predicate is
// treated as true.
func (r *RingState) responsibleForData(h ring.ID) (own, succ bool) {
	if r.Succ == nil {
		return true, false
	}
	if r.Pred != nil && ring.Responsible(r.Pred.ID, r.Self.ID, h) {
		return true, false
	}
	if ring.Responsible(r.Self.ID, r.Succ.ID, h) {
		return false, true
	}
	return false, false
}

// responsibleForLookup mirrors the LKUP truth table, used by both naive and
// finger-assisted routing. Unlike responsibleForData, an unset Succ alone
// does not make this peer the owner: when Pred is set, ownership follows
// the Pred predicate, and only a peer with neither Pred nor Succ answers for
// every identifier.
func (r *RingState) responsibleForLookup(h ring.ID) (own, succ bool) {
	if r.Pred != nil && ring.Responsible(r.Pred.ID, r.Self.ID, h) {
		return true, false
	}
	if r.Succ != nil && ring.Responsible(r.Self.ID, r.Succ.ID, h) {
		return false, true
	}
	if r.Succ == nil && r.Pred == nil {
		return true, false
	}
	return false, false
}
