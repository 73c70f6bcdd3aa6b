// Package node implements the per-peer packet-handling state machine: the
// run loop that accepts client sessions, frames one packet per session, and
// dispatches it against ring state.
package node

import (
	"fmt"
	"net"
	"time"

	"github.com/chordring/peer/internal/finger"
	"github.com/chordring/peer/internal/pending"
	"github.com/chordring/peer/internal/ring"
	"github.com/chordring/peer/internal/store"
	"github.com/chordring/peer/internal/wire"
	"github.com/ethereum/go-ethereum/log"
)

// Config configures a Node. Self is required; EntryPeer is nil for a
// solitary start.
type Config struct {
	Self              ring.Peer
	EntryPeer         *ring.Peer
	Store             store.Store
	StabilizeInterval time.Duration // 0 disables the self-initiated tick
	Logger            log.Logger
}

// Node bundles self/predecessor/successor, the local store, the
// pending-request table and the finger table into one aggregate, mutated
// only from the Run loop. No static/global storage is used.
type Node struct {
	cfg Config
	log log.Logger

	ring    RingState
	store   store.Store
	pending *pending.Table
	finger  *finger.Table
	metrics *nodeMetrics

	listener net.Listener

	inbound chan inboundPacket
	newConn chan net.Conn
	quit    chan struct{}
	done    chan struct{}
}

type inboundPacket struct {
	sess *session
	pkt  wire.Packet
}

// New constructs a Node from cfg. It does not start listening; call Listen,
// then Run.
func New(cfg Config) *Node {
	if cfg.Store == nil {
		cfg.Store = store.NewMap()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New("id", cfg.Self.ID)
	}
	return &Node{
		cfg:     cfg,
		log:     logger,
		ring:    RingState{Self: cfg.Self},
		store:   cfg.Store,
		pending: pending.New(),
		finger:  finger.New(),
		metrics: newNodeMetrics(),
		inbound: make(chan inboundPacket, 64),
		newConn: make(chan net.Conn, 16),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Listen binds the node's listening socket. Bind/listen failure is fatal;
// the caller decides how to exit the process.
func (n *Node) Listen() error {
	l, err := net.Listen("tcp", n.cfg.Self.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", n.cfg.Self.Addr(), err)
	}
	n.listener = l
	return nil
}

// Addr returns the bound listener address (for tests that bind to :0).
func (n *Node) Addr() net.Addr { return n.listener.Addr() }

// Run accepts connections and drives the run loop until Close is called.
// It blocks until shutdown completes.
func (n *Node) Run() {
	go n.acceptLoop()

	var ticker *time.Ticker
	var tickC <-chan time.Time
	if n.cfg.StabilizeInterval > 0 {
		ticker = time.NewTicker(n.cfg.StabilizeInterval)
		tickC = ticker.C
		defer ticker.Stop()
	}

	if n.cfg.EntryPeer != nil {
		n.sendJoin(*n.cfg.EntryPeer)
	}

	defer close(n.done)
	for {
		select {
		case <-n.quit:
			return
		case conn := <-n.newConn:
			go n.serveConn(conn)
		case in := <-n.inbound:
			n.handleInbound(in)
		case <-tickC:
			n.onStabilizeTick()
		}
	}
}

// Close stops the accept loop and the run loop and waits for Run to return.
func (n *Node) Close() {
	if n.listener != nil {
		n.listener.Close()
	}
	close(n.quit)
	<-n.done
}

func (n *Node) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			return
		}
		select {
		case n.newConn <- conn:
		case <-n.quit:
			conn.Close()
			return
		}
	}
}

// serveConn reads exactly one packet off conn (sessions are never
// pipelined) and hands it to the run loop. It runs on its own
// goroutine so a slow client cannot stall routing of other sessions; all
// state mutation still happens only inside the run loop once the packet
// arrives over inbound.
func (n *Node) serveConn(conn net.Conn) {
	sess := newSession(conn)
	pkt, err := sess.readPacket()
	if err != nil {
		n.log.Debug("malformed or closed client session", "err", err)
		sess.Close()
		return
	}
	select {
	case n.inbound <- inboundPacket{sess: sess, pkt: pkt}:
	case <-n.quit:
		sess.Close()
	}
}

func (n *Node) onStabilizeTick() {
	succ := n.ring.Succ
	if succ == nil {
		return
	}
	n.sendStabilize(*succ)
}
