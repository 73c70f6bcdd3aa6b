package ring

import (
	"fmt"
	"net"
	"time"
)

// Peer is an immutable remote-peer descriptor: id, host and port. It does
// not own the remote; several Peer values may point at the same remote, and
// each outbound exchange lazily opens and closes its own connection.
type Peer struct {
	ID   ID
	Host string
	Port uint16
}

// Self constructs the local peer's own handle.
func Self(id ID, host string, port uint16) Peer {
	return Peer{ID: id, Host: host, Port: port}
}

// Addr returns the dialable host:port string for this peer.
func (p Peer) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// DialTimeout is the ceiling on the outbound connect used by Dial. Peers in
// a real ring are expected to answer quickly; a slow peer legitimately
// stalls the caller per spec, but a dead one must not hang it forever.
const DialTimeout = 2 * time.Second

// Dial opens a short-lived outbound connection to the peer. The caller owns
// the returned connection exclusively and must close it before returning,
// per the resource model: outbound peer connections are never held open
// across dispatch calls.
func (p Peer) Dial() (net.Conn, error) {
	return net.DialTimeout("tcp", p.Addr(), DialTimeout)
}

// Exchange opens a connection, writes raw, reads one complete response
// framed by readResponse, and closes the connection before returning.
func (p Peer) Exchange(raw []byte, readResponse func(net.Conn) ([]byte, error)) ([]byte, error) {
	conn, err := p.Dial()
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", p.Addr(), err)
	}
	defer conn.Close()

	if _, err := conn.Write(raw); err != nil {
		return nil, fmt.Errorf("write to %s: %w", p.Addr(), err)
	}
	return readResponse(conn)
}

// Send opens a connection, writes raw, and closes the connection without
// waiting for a reply. Used for fire-and-forget control messages (LKUP
// forwarding, JOIN forwarding, NTFY).
func (p Peer) Send(raw []byte) error {
	conn, err := p.Dial()
	if err != nil {
		return fmt.Errorf("dial %s: %w", p.Addr(), err)
	}
	defer conn.Close()
	_, err = conn.Write(raw)
	return err
}
