package node

import (
	"io"
	"net"

	"github.com/chordring/peer/internal/wire"
)

// session is one accepted client connection. A connection goroutine does a
// blocking read and hands the single framed packet it produces to the run
// loop over inbound, preserving the invariant that only the run loop
// mutates ring state. Successive packets from one client are never read:
// each session processes exactly one packet and closes.
type session struct {
	conn net.Conn
}

func newSession(conn net.Conn) *session {
	return &session{conn: conn}
}

// Close implements pending.Session.
func (s *session) Close() error { return s.conn.Close() }

// readPacket blocks until one complete wire.Packet has been read, or
// returns an error (malformed packet or connection closed); the caller must
// close the session without mutating ring state.
func (s *session) readPacket() (wire.Packet, error) {
	header := make([]byte, wire.HeaderLen)
	if _, err := io.ReadFull(s.conn, header); err != nil {
		return wire.Packet{}, err
	}
	bodyLen, err := wire.PeekBodyLen(header)
	if err != nil {
		return wire.Packet{}, err
	}
	raw := make([]byte, wire.HeaderLen+bodyLen)
	copy(raw, header)
	if bodyLen > 0 {
		if _, err := io.ReadFull(s.conn, raw[wire.HeaderLen:]); err != nil {
			return wire.Packet{}, err
		}
	}
	return wire.Decode(raw)
}

// writePacket writes an encoded packet to the client, verbatim.
func (s *session) writePacket(p wire.Packet) error {
	_, err := s.conn.Write(p.Encode())
	return err
}

// writeRaw forwards already-encoded bytes to the client verbatim, used by
// the synchronous proxy to pipe a remote peer's response through unfiltered.
func (s *session) writeRaw(raw []byte) error {
	_, err := s.conn.Write(raw)
	return err
}

// readOneResponse reads exactly one complete packet off conn and returns
// its raw encoded bytes, for use as the synchronous-proxy response reader.
func readOneResponse(conn net.Conn) ([]byte, error) {
	header := make([]byte, wire.HeaderLen)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, err
	}
	bodyLen, err := wire.PeekBodyLen(header)
	if err != nil {
		return nil, err
	}
	raw := make([]byte, wire.HeaderLen+bodyLen)
	copy(raw, header)
	if bodyLen > 0 {
		if _, err := io.ReadFull(conn, raw[wire.HeaderLen:]); err != nil {
			return nil, err
		}
	}
	return raw, nil
}
