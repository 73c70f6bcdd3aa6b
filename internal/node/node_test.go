package node

import (
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/chordring/peer/internal/ring"
	"github.com/chordring/peer/internal/wire"
	"github.com/stretchr/testify/require"
)

// startNode binds to an ephemeral port (Self.Port == 0 resolves to ":0"),
// then patches Self.Port everywhere it is already captured before the run
// loop (and any JOIN it sends) starts. stabilizeInterval of 0 disables the
// self-initiated tick (scenarios that only care about JOIN/NTFY).
func startNode(t *testing.T, id uint16, entry *ring.Peer, stabilizeInterval time.Duration) *Node {
	t.Helper()
	n := New(Config{
		Self:              ring.Peer{ID: id, Host: "127.0.0.1"},
		EntryPeer:         entry,
		StabilizeInterval: stabilizeInterval,
	})
	require.NoError(t, n.Listen())
	port := addrPort(t, n.Addr())
	n.cfg.Self.Port = port
	n.ring.Self.Port = port
	go n.Run()
	t.Cleanup(n.Close)
	return n
}

func addrPort(t *testing.T, addr net.Addr) uint16 {
	t.Helper()
	_, portStr, err := net.SplitHostPort(addr.String())
	require.NoError(t, err)
	p, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return uint16(p)
}

// dial sends raw to the node at addr and, if wantReply, reads and decodes
// one response packet.
func dial(t *testing.T, addr string, raw []byte, wantReply bool) (wire.Packet, net.Conn) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	_, err = conn.Write(raw)
	require.NoError(t, err)
	if !wantReply {
		return wire.Packet{}, conn
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	raw2, err := readOneResponse(conn)
	require.NoError(t, err)
	p, err := wire.Decode(raw2)
	require.NoError(t, err)
	return p, conn
}

func TestScenario1SolitaryPeer(t *testing.T) {
	n := startNode(t, 100, nil, 0)
	addr := n.Addr().String()

	setPkt := wire.Packet{Flags: wire.FlagSET, Key: []byte("x"), Value: []byte("1")}
	reply, conn := dial(t, addr, setPkt.Encode(), true)
	conn.Close()
	require.Equal(t, byte(wire.FlagSET|wire.FlagACK), reply.Flags)

	getPkt := wire.Packet{Flags: wire.FlagGET, Key: []byte("x")}
	reply, conn = dial(t, addr, getPkt.Encode(), true)
	conn.Close()
	require.Equal(t, byte(wire.FlagGET|wire.FlagACK), reply.Flags)
	require.Equal(t, []byte("1"), reply.Value)
}

func TestScenario2TwoPeerProxy(t *testing.T) {
	a := startNode(t, 100, nil, 0)
	aSelf := a.cfg.Self

	b := startNode(t, 200, &aSelf, 0)
	bSelf := b.cfg.Self

	// Wait for the JOIN/NTFY exchange to settle. Per the reference
	// implementation a predecessor is only ever learned from JOIN or STAB,
	// never from NTFY, so without a stabilize tick B converges to
	// Succ=A only; that alone is enough for B to proxy into A's arc.
	require.Eventually(t, func() bool {
		return a.ring.Pred != nil && a.ring.Pred.ID == 200 &&
			a.ring.Succ != nil && a.ring.Succ.ID == 200 &&
			b.ring.Succ != nil && b.ring.Succ.ID == 100
	}, 2*time.Second, 10*time.Millisecond)

	// Find a key that hashes into A's arc (A's predecessor, A's self] so
	// that B must proxy the SET to A, independent of the hash function's
	// exact output.
	key := keyHashingInto(t, a.ring.Pred.ID, a.ring.Self.ID)

	addr := bSelf.Addr()
	setPkt := wire.Packet{Flags: wire.FlagSET, Key: key, Value: []byte("1")}
	reply, conn := dial(t, addr, setPkt.Encode(), true)
	conn.Close()
	require.Equal(t, byte(wire.FlagSET|wire.FlagACK), reply.Flags)

	v, ok := a.store.Get(key)
	require.True(t, ok, "A must have stored it (B proxied)")
	require.Equal(t, []byte("1"), v)
}

// keyHashingInto brute-forces a short key whose ring.HashKey falls into the
// arc owned by (predID, selfID]. Used to make scenario tests independent of
// the specific hash function's output.
func keyHashingInto(t *testing.T, predID, selfID ring.ID) []byte {
	t.Helper()
	for i := 0; i < 100000; i++ {
		k := []byte("k" + strconv.Itoa(i))
		h := ring.HashKey(k)
		if ring.Responsible(predID, selfID, h) {
			return k
		}
	}
	t.Fatal("could not find a key hashing into the requested arc")
	return nil
}

func TestScenario4JoinOrdering(t *testing.T) {
	a := startNode(t, 100, nil, 0)
	aSelf := a.cfg.Self
	b := startNode(t, 200, &aSelf, 0)

	require.Eventually(t, func() bool {
		return a.ring.Pred != nil && a.ring.Pred.ID == 200 && a.ring.Succ != nil && a.ring.Succ.ID == 200
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return b.ring.Succ != nil && b.ring.Succ.ID == 100
	}, 2*time.Second, 10*time.Millisecond)

	// B's predecessor only converges once a self-initiated stabilize tick
	// from A reaches B; confirm that path too with a freshly ticking pair.
	c := startNode(t, 300, nil, 20*time.Millisecond)
	cSelf := c.cfg.Self
	d := startNode(t, 400, &cSelf, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return d.ring.Pred != nil && d.ring.Pred.ID == 300
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScenario3ThreePeerLookup(t *testing.T) {
	p10 := startNode(t, 10, nil, 0)
	p10Self := p10.cfg.Self
	p100 := startNode(t, 100, &p10Self, 0)
	p100Self := p100.cfg.Self
	p200 := startNode(t, 200, &p100Self, 0)

	require.Eventually(t, func() bool {
		return p10.ring.Succ != nil && p10.ring.Succ.ID == 100
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return p100.ring.Succ != nil && p100.ring.Succ.ID == 200
	}, 2*time.Second, 10*time.Millisecond)

	// Wire the ring directly (bypassing stabilization timing) so the
	// three-peer lookup chain is deterministic: neither 10 nor its
	// successor 100 owns the chosen key; 10 looks it up via 100, which
	// names 200 as responsible; 10 then proxies to 200.
	p10.ring.Pred = &ring.Peer{ID: 200, Host: p200.ring.Self.Host, Port: p200.ring.Self.Port}
	p100.ring.Pred = &ring.Peer{ID: 10, Host: p10.ring.Self.Host, Port: p10.ring.Self.Port}
	p100.ring.Succ = &ring.Peer{ID: 200, Host: p200.ring.Self.Host, Port: p200.ring.Self.Port}
	p200.ring.Pred = &ring.Peer{ID: 100, Host: p100.ring.Self.Host, Port: p100.ring.Self.Port}
	p200.ring.Succ = &ring.Peer{ID: 10, Host: p10.ring.Self.Host, Port: p10.ring.Self.Port}

	key := keyHashingNowhereNear(t, p10.ring.Self.ID, p100.ring.Self.ID)
	getPkt := wire.Packet{Flags: wire.FlagGET, Key: key}
	reply, conn := dial(t, p10.Addr().String(), getPkt.Encode(), true)
	defer conn.Close()

	require.Zero(t, reply.Flags&wire.FlagACK, "miss: GET without ACK")

	require.Eventually(t, func() bool {
		return p10.pending.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)

	// The client socket must be closed once the pending bucket drains, not
	// leaked: a further read on it observes EOF rather than hanging.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err := conn.Read(buf)
	require.ErrorIs(t, err, io.EOF)
}

// keyHashingNowhereNear finds a key whose hash neither p10 nor p100 own
// directly (forcing the LKUP path), independent of the hash function's
// exact output.
func keyHashingNowhereNear(t *testing.T, id10, id100 ring.ID) []byte {
	t.Helper()
	for i := 0; i < 100000; i++ {
		k := []byte("k" + strconv.Itoa(i))
		h := ring.HashKey(k)
		if !ring.Responsible(200, id10, h) && !ring.Responsible(id10, id100, h) {
			return k
		}
	}
	t.Fatal("could not find a suitable key")
	return nil
}

func TestScenario5FingerReplyBeforeWork(t *testing.T) {
	a := startNode(t, 100, nil, 0)
	succ := ring.Peer{ID: 200, Host: "127.0.0.1", Port: 1} // unreachable; build will fail silently
	a.ring.Succ = &succ

	fngr := wire.Packet{Flags: wire.FlagCtrl | wire.SubFinger}
	start := time.Now()
	reply, conn := dial(t, a.Addr().String(), fngr.Encode(), true)
	elapsed := time.Since(start)
	conn.Close()

	require.Equal(t, wire.SubFingerAck, reply.Sub())
	require.Less(t, elapsed, 500*time.Millisecond, "FACK must not wait on the (unreachable) finger build")
}

func TestScenario6StabilizeDualSend(t *testing.T) {
	y := startNode(t, 200, nil, 0)

	// handleStabilize only replies once Y already has a predecessor: the
	// very first STAB a solitary peer ever sees only seeds Succ and stays
	// silent. Prime one directly so the dual-send path actually fires.
	y.ring.Pred = &ring.Peer{ID: 1, Host: "127.0.0.1", Port: 1}

	// X is not a real node here; we just send STAB as X and observe both
	// replies: one on the inbound connection, one as a fresh connection X
	// listens for.
	xListener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer xListener.Close()
	xPort := addrPort(t, xListener.Addr())

	xPeer := ring.Peer{ID: 50, Host: "127.0.0.1", Port: xPort}
	ip, port := wire.NodeIPFromAddr(xPeer.Host, xPeer.Port)
	stab := wire.Packet{Flags: wire.FlagCtrl | wire.SubStabilize, NodeID: xPeer.ID, NodeIP: ip, NodePort: port}

	recvOutbound := make(chan []byte, 1)
	go func() {
		conn, err := xListener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		raw, err := readOneResponse(conn)
		if err == nil {
			recvOutbound <- raw
		}
	}()

	conn, err := net.DialTimeout("tcp", y.Addr().String(), time.Second)
	require.NoError(t, err)
	_, err = conn.Write(stab.Encode())
	require.NoError(t, err)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	inboundRaw, err := readOneResponse(conn)
	require.NoError(t, err)
	conn.Close()

	var outboundRaw []byte
	select {
	case outboundRaw = <-recvOutbound:
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive outbound NTFY from Y")
	}

	require.Equal(t, inboundRaw, outboundRaw, "both NTFY sends must carry identical bytes")
}
