package node

import (
	"time"

	"github.com/chordring/peer/internal/finger"
	"github.com/chordring/peer/internal/message"
	"github.com/chordring/peer/internal/ring"
	"github.com/chordring/peer/internal/wire"
)

// handleInbound is the routing/dispatch entry point: it runs exclusively on
// the run-loop goroutine and is the sole mutator of ring/pending/finger
// state. It classifies the packet as data or control and dispatches
// accordingly.
func (n *Node) handleInbound(in inboundPacket) {
	msg, err := message.Decode(in.pkt)
	if err != nil {
		n.log.Warn("malformed packet, dropping session", "err", err)
		in.sess.Close()
		return
	}

	keep := false
	if in.pkt.IsCtrl() {
		n.dispatchCtrl(in.sess, msg)
	} else {
		keep = n.dispatchData(in.sess, in.pkt, msg)
	}
	if !keep {
		in.sess.Close()
	}
	n.refreshGauges()
}

// dispatchData decides whether this peer, its successor, or neither owns
// the key's hash, and acts accordingly. It returns true iff the session
// should be kept open (the pending-lookup case); every other path closes
// it.
func (n *Node) dispatchData(sess *session, pkt wire.Packet, msg message.Message) bool {
	key := dataKey(msg)
	h := ring.HashKey(key)

	own, succ := n.ring.responsibleForData(h)
	switch {
	case own:
		n.answerOwnRequest(sess, msg)
		return false
	case succ:
		n.metrics.proxied.Inc(1)
		n.proxyToSession(sess, pkt, *n.ring.Succ)
		return false
	default:
		n.metrics.lookups.Inc(1)
		n.pending.Add(h, sess, pkt.Encode())
		n.emitLookup(h, *n.ring.Succ)
		return true
	}
}

func dataKey(msg message.Message) []byte {
	switch m := msg.(type) {
	case message.Get:
		return m.Key
	case message.Set:
		return m.Key
	case message.Del:
		return m.Key
	default:
		return nil
	}
}

// answerOwnRequest applies a data request this peer owns directly and
// replies with the matching ACK/value.
func (n *Node) answerOwnRequest(sess *session, msg message.Message) {
	var reply message.Message
	switch m := msg.(type) {
	case message.Get:
		n.metrics.getOps.Inc(1)
		v, ok := n.store.Get(m.Key)
		reply = message.GetReply{Key: m.Key, Value: v, Hit: ok}
	case message.Set:
		n.metrics.setOps.Inc(1)
		n.store.Set(m.Key, m.Value)
		reply = message.SetReply{}
	case message.Del:
		n.metrics.delOps.Inc(1)
		ok := n.store.Delete(m.Key)
		reply = message.DelReply{Ok: ok}
	case message.Unknown:
		reply = message.SentinelReply(m.Flags)
	default:
		return
	}
	pkt := message.Encode(reply)
	if err := sess.writePacket(pkt); err != nil {
		n.log.Debug("failed to write reply to client", "err", err)
	}
}

// proxyToSession opens a fresh connection to target, writes the unchanged
// packet, reads one response, and pipes it back to the client verbatim.
// Failure to connect means the session is closed without a reply.
func (n *Node) proxyToSession(sess *session, pkt wire.Packet, target ring.Peer) {
	raw := pkt.Encode()
	resp, err := target.Exchange(raw, readOneResponse)
	if err != nil {
		n.log.Warn("proxy target unreachable", "target", target.Addr(), "err", err)
		return
	}
	if err := sess.writeRaw(resp); err != nil {
		n.log.Debug("failed to forward proxied response to client", "err", err)
	}
}

// emitLookup sends a LKUP packet for hashID toward target.
func (n *Node) emitLookup(hashID ring.ID, target ring.Peer) {
	lkp := message.Lookup{HashID: hashID, Origin: n.ring.Self}
	pkt := message.Encode(lkp)
	if err := target.Send(pkt.Encode()); err != nil {
		n.log.Warn("lookup target unreachable", "target", target.Addr(), "err", err)
	}
}

// dispatchCtrl dispatches by control sub-flag. Every control sender's
// session is closed after processing; it is only the data path's pending
// registration that ever keeps a client connection open.
func (n *Node) dispatchCtrl(sess *session, msg message.Message) {
	switch m := msg.(type) {
	case message.Lookup:
		n.handleLookup(m)
	case message.Reply:
		n.handleReply(m)
	case message.Join:
		n.handleJoin(sess, m)
	case message.Notify:
		n.handleNotify(m)
	case message.Stabilize:
		n.handleStabilize(sess, m)
	case message.Finger:
		n.handleFinger(sess)
	case message.FingerAck:
		// no-op for the recipient; only meaningful to the FNGR sender.
	}
}

func (n *Node) handleLookup(m message.Lookup) {
	if n.finger.State() == finger.Active {
		n.routeLookupWithFinger(m)
		return
	}
	n.routeLookupNaive(m)
}

func (n *Node) routeLookupNaive(m message.Lookup) {
	own, succ := n.ring.responsibleForLookup(m.HashID)
	switch {
	case own:
		n.replyLookup(m, n.ring.Self)
	case succ:
		n.replyLookup(m, *n.ring.Succ)
	default:
		n.forwardLookup(m, *n.ring.Succ)
	}
}

func (n *Node) routeLookupWithFinger(m message.Lookup) {
	own, succ := n.ring.responsibleForLookup(m.HashID)
	switch {
	case own:
		n.replyLookup(m, n.ring.Self)
		return
	case succ:
		n.replyLookup(m, *n.ring.Succ)
		return
	}
	if p, ok := n.finger.ClosestPreceding(n.ring.Self.ID, m.HashID); ok {
		n.forwardLookup(m, p)
		return
	}
	// No finger qualifies: fall back to the successor.
	if n.ring.Succ != nil {
		n.forwardLookup(m, *n.ring.Succ)
	}
}

func (n *Node) replyLookup(m message.Lookup, owner ring.Peer) {
	rply := message.Reply{HashID: m.HashID, Peer: owner}
	pkt := message.Encode(rply)
	if err := m.Origin.Send(pkt.Encode()); err != nil {
		n.log.Warn("could not reply to lookup originator", "origin", m.Origin.Addr(), "err", err)
	}
}

func (n *Node) forwardLookup(m message.Lookup, next ring.Peer) {
	pkt := message.Encode(m)
	if err := next.Send(pkt.Encode()); err != nil {
		n.log.Warn("could not forward lookup", "next", next.Addr(), "err", err)
	}
}

func (n *Node) handleReply(m message.Reply) {
	if n.finger.State() == finger.Init {
		if !n.finger.Place(m.HashID, m.Peer) {
			n.log.Warn("reply matched no empty finger slot", "hash", m.HashID)
		}
	}

	for _, entry := range n.pending.Get(m.HashID) {
		pkt, err := wire.Decode(entry.Packet)
		if err != nil {
			n.log.Warn("corrupt pending entry, dropping", "err", err)
			entry.Session.Close()
			continue
		}
		sess, ok := entry.Session.(*session)
		if !ok {
			entry.Session.Close()
			continue
		}
		n.metrics.proxied.Inc(1)
		n.proxyToSession(sess, pkt, m.Peer)
		sess.Close()
	}
	n.pending.Clear(m.HashID)
}

func (n *Node) handleJoin(sess *session, m message.Join) {
	joiner := m.Joiner
	switch {
	case n.ring.Pred == nil:
		n.ring.Pred = &joiner
		if n.ring.Succ == nil {
			n.ring.Succ = &joiner
		}
		n.replyJoinWithNotify(joiner)
	case ring.Responsible(n.ring.Pred.ID, n.ring.Self.ID, joiner.ID):
		n.ring.Pred = &joiner
		n.replyJoinWithNotify(joiner)
	default:
		if n.ring.Succ != nil {
			n.forwardJoin(m, *n.ring.Succ)
		}
	}
}

// joinNotifyDelay gives the joining peer's server a moment to start
// listening before the NTFY reply arrives. Tests that exercise JOIN bind
// the joiner's listener before sending JOIN, so they do not depend on this
// delay; it is a best-effort courtesy to real deployments.
const joinNotifyDelay = 50 * time.Millisecond

func (n *Node) replyJoinWithNotify(to ring.Peer) {
	ntfy := message.Notify{Peer: n.ring.Self}
	pkt := message.Encode(ntfy)
	raw := pkt.Encode()
	time.Sleep(joinNotifyDelay)
	if err := to.Send(raw); err != nil {
		n.log.Warn("could not notify new predecessor", "peer", to.Addr(), "err", err)
	}
}

func (n *Node) forwardJoin(m message.Join, next ring.Peer) {
	pkt := message.Encode(m)
	if err := next.Send(pkt.Encode()); err != nil {
		n.log.Warn("could not forward join", "next", next.Addr(), "err", err)
	}
}

func (n *Node) handleNotify(m message.Notify) {
	n.ring.MaybeAdoptSucc(m.Peer)
}

// handleStabilize updates ring state from an incoming STAB, then replies
// with NTFY(pred) on both the inbound socket and a fresh outbound
// connection to the sender, carrying identical bytes.
func (n *Node) handleStabilize(sess *session, m message.Stabilize) {
	q := m.Peer
	switch {
	case n.ring.Succ == nil:
		n.ring.Succ = &q
	case n.ring.Pred == nil:
		n.ring.Pred = &q
	case ring.Responsible(n.ring.Pred.ID, n.ring.Self.ID, q.ID):
		n.ring.Pred = &q
	}

	if n.ring.Pred == nil {
		return
	}
	ntfy := message.Notify{Peer: *n.ring.Pred}
	pkt := message.Encode(ntfy)
	raw := pkt.Encode()

	if err := sess.writeRaw(raw); err != nil {
		n.log.Debug("failed to reply to stabilize on inbound socket", "err", err)
	}
	if err := q.Send(raw); err != nil {
		n.log.Warn("could not notify stabilize sender", "peer", q.Addr(), "err", err)
	}
}

// sendStabilize is the self-initiated half of stabilization: the node pings
// its successor periodically instead of waiting to be pinged.
func (n *Node) sendStabilize(to ring.Peer) {
	stab := message.Stabilize{Peer: n.ring.Self}
	pkt := message.Encode(stab)
	if err := to.Send(pkt.Encode()); err != nil {
		n.log.Warn("could not send stabilize tick", "peer", to.Addr(), "err", err)
	}
}

// sendJoin emits the startup JOIN packet toward an entry peer.
func (n *Node) sendJoin(entry ring.Peer) {
	join := message.Join{Joiner: n.ring.Self}
	pkt := message.Encode(join)
	if err := entry.Send(pkt.Encode()); err != nil {
		n.log.Warn("could not send join to entry peer", "entry", entry.Addr(), "err", err)
	}
}

// handleFinger acks the finger-build request before starting it: FACK must
// be observable on the wire before any LKUP the build emits. Replying
// first, then building, on the same run-loop goroutine guarantees that
// ordering without extra synchronization.
func (n *Node) handleFinger(sess *session) {
	fack := message.Encode(message.FingerAck{})
	if err := sess.writePacket(fack); err != nil {
		n.log.Debug("failed to ack finger request", "err", err)
	}
	n.buildFingerTable()
}

func (n *Node) buildFingerTable() {
	if n.ring.Succ == nil {
		return
	}
	lookups := n.finger.BeginBuild(n.ring.Self.ID)
	for _, lk := range lookups {
		n.emitLookup(lk.Start, *n.ring.Succ)
	}
}

func (n *Node) refreshGauges() {
	n.metrics.pendingBuckets.Update(int64(n.pending.Len()))
	n.metrics.fingerFilled.Update(int64(n.finger.Count()))
	n.metrics.storeSize.Update(int64(n.store.Len()))
}
