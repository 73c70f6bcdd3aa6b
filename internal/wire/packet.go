// Package wire implements the on-the-wire packet layout and flag bits from
// the peer protocol: a flat, self-delimiting record carrying either a data
// operation (GET/SET/DEL, optionally ACKed) or a control message (LKUP,
// RPLY, JOIN, NTFY, STAB, FNGR, FACK).
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
)

// Data flags (valid when Ctrl is clear).
const (
	FlagACK = 0x40
	FlagGET = 0x01
	FlagSET = 0x02
	FlagDEL = 0x04
)

// Ctrl marks a packet as a control message; when set, the low 7 bits of
// Flags hold one of the Sub* enum values below rather than a bitmask.
const FlagCtrl = 0x80

// Control sub-flags. Only one applies per control packet.
const (
	SubLookup byte = iota + 1
	SubReply
	SubJoin
	SubNotify
	SubStabilize
	SubFinger
	SubFingerAck
)

const headerSize = 1 + 2 + 4 + 2 + 4 + 2 + 2 // flags,key_len,value_len,node_id,node_ip,node_port,hash_id

// Packet is the flat wire record. Not all fields are meaningful for all
// flag combinations; validity is flag-determined (see the message package
// for the typed variants built from a Packet).
type Packet struct {
	Flags     byte
	NodeID    uint16
	NodeIP    [4]byte
	NodePort  uint16
	HashID    uint16
	Key       []byte
	Value     []byte
}

// IsCtrl reports whether this is a control packet.
func (p Packet) IsCtrl() bool { return p.Flags&FlagCtrl != 0 }

// Sub returns the control sub-flag (only meaningful when IsCtrl is true).
func (p Packet) Sub() byte { return p.Flags & 0x7F }

// NodeAddr reconstructs a dialable host:port from the embedded node fields.
func (p Packet) NodeAddr() string {
	ip := net.IPv4(p.NodeIP[0], p.NodeIP[1], p.NodeIP[2], p.NodeIP[3])
	return fmt.Sprintf("%s:%d", ip.String(), p.NodePort)
}

// Encode serializes the packet into a self-delimiting byte slice: a fixed
// header followed by key and value, each already accounted for by their
// length prefixes in the header.
func (p Packet) Encode() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(headerSize + len(p.Key) + len(p.Value))

	buf.WriteByte(p.Flags)
	binary.Write(buf, binary.BigEndian, uint16(len(p.Key)))
	binary.Write(buf, binary.BigEndian, uint32(len(p.Value)))
	binary.Write(buf, binary.BigEndian, p.NodeID)
	buf.Write(p.NodeIP[:])
	binary.Write(buf, binary.BigEndian, p.NodePort)
	binary.Write(buf, binary.BigEndian, p.HashID)
	buf.Write(p.Key)
	buf.Write(p.Value)
	return buf.Bytes()
}

// HeaderLen is the number of bytes that must be buffered before
// PeekBodyLen can determine how many more bytes complete the packet.
const HeaderLen = headerSize

// PeekBodyLen reads key_len and value_len out of a fully-buffered header and
// returns how many additional bytes (key+value) complete the packet. It
// does not mutate header.
func PeekBodyLen(header []byte) (int, error) {
	if len(header) < headerSize {
		return 0, fmt.Errorf("wire: short header: %d bytes", len(header))
	}
	keyLen := binary.BigEndian.Uint16(header[1:3])
	valueLen := binary.BigEndian.Uint32(header[3:7])
	return int(keyLen) + int(valueLen), nil
}

// Decode parses a complete packet (header + key + value bytes).
func Decode(raw []byte) (Packet, error) {
	if len(raw) < headerSize {
		return Packet{}, fmt.Errorf("wire: short packet: %d bytes", len(raw))
	}
	var p Packet
	p.Flags = raw[0]
	keyLen := binary.BigEndian.Uint16(raw[1:3])
	valueLen := binary.BigEndian.Uint32(raw[3:7])
	p.NodeID = binary.BigEndian.Uint16(raw[7:9])
	copy(p.NodeIP[:], raw[9:13])
	p.NodePort = binary.BigEndian.Uint16(raw[13:15])
	p.HashID = binary.BigEndian.Uint16(raw[15:17])

	want := headerSize + int(keyLen) + int(valueLen)
	if len(raw) < want {
		return Packet{}, fmt.Errorf("wire: malformed packet: have %d bytes, want %d", len(raw), want)
	}
	if keyLen > 0 {
		p.Key = append([]byte(nil), raw[headerSize:headerSize+int(keyLen)]...)
	}
	if valueLen > 0 {
		start := headerSize + int(keyLen)
		p.Value = append([]byte(nil), raw[start:start+int(valueLen)]...)
	}
	return p, nil
}

// NodeIPFromAddr splits a dialable host:port (IPv4 only) into the 4-byte
// NodeIP and NodePort fields.
func NodeIPFromAddr(host string, port uint16) ([4]byte, uint16) {
	var ip [4]byte
	parsed := net.ParseIP(host)
	if v4 := parsed.To4(); v4 != nil {
		copy(ip[:], v4)
	}
	return ip, port
}
