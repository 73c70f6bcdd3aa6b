// Package message restates the flat wire.Packet as a sum type: one variant
// per message kind, each carrying only its meaningful fields, per the
// "Packet as tagged union" design note. Dispatch becomes a type switch
// instead of a cascade of flag-bit tests.
package message

import (
	"fmt"
	"net"

	"github.com/chordring/peer/internal/ring"
	"github.com/chordring/peer/internal/wire"
)

// Message is implemented by every variant below.
type Message interface {
	isMessage()
}

// --- client data requests ---

type Get struct{ Key []byte }
type Set struct{ Key, Value []byte }
type Del struct{ Key []byte }

// Unknown is any data flag combination not covered above; the handler
// replies with the sentinel payload and the ACK bit echoed, per spec.
type Unknown struct{ Flags byte }

func (Get) isMessage()     {}
func (Set) isMessage()     {}
func (Del) isMessage()     {}
func (Unknown) isMessage() {}

// --- replies to data requests ---

// GetReply carries the looked-up key and, on a hit, its value; Hit controls
// whether the ACK bit is set on the wire.
type GetReply struct {
	Key   []byte
	Value []byte
	Hit   bool
}
type SetReply struct{}
type DelReply struct{ Ok bool }
type UnknownReply struct {
	Flags      byte
	Key, Value []byte
}

func (GetReply) isMessage()     {}
func (SetReply) isMessage()     {}
func (DelReply) isMessage()     {}
func (UnknownReply) isMessage() {}

// --- control messages ---

// Lookup asks "who owns HashID?"; Origin is who to send the Reply to.
type Lookup struct {
	HashID uint16
	Origin ring.Peer
}

// Reply answers a Lookup: Peer is the peer responsible for HashID.
type Reply struct {
	HashID uint16
	Peer   ring.Peer
}

// Join asks the recipient to insert Joiner into the ring.
type Join struct{ Joiner ring.Peer }

// Notify informs the recipient that Peer may be its successor.
type Notify struct{ Peer ring.Peer }

// Stabilize is a stabilization ping carrying the sender's identity.
type Stabilize struct{ Peer ring.Peer }

// Finger requests a finger-table rebuild.
type Finger struct{}

// FingerAck acknowledges a Finger request.
type FingerAck struct{}

func (Lookup) isMessage()    {}
func (Reply) isMessage()     {}
func (Join) isMessage()      {}
func (Notify) isMessage()    {}
func (Stabilize) isMessage() {}
func (Finger) isMessage()    {}
func (FingerAck) isMessage() {}

// sentinel payload replied for any Unknown data flag combination.
var (
	sentinelKey   = []byte("Rick Astley")
	sentinelValue = []byte("Never Gonna Give You Up!\n")
)

// Decode converts a wire.Packet into its typed Message variant.
func Decode(p wire.Packet) (Message, error) {
	if p.IsCtrl() {
		return decodeCtrl(p)
	}
	return decodeData(p)
}

func decodeData(p wire.Packet) (Message, error) {
	switch {
	case p.Flags&wire.FlagGET != 0:
		return Get{Key: p.Key}, nil
	case p.Flags&wire.FlagSET != 0:
		return Set{Key: p.Key, Value: p.Value}, nil
	case p.Flags&wire.FlagDEL != 0:
		return Del{Key: p.Key}, nil
	default:
		return Unknown{Flags: p.Flags}, nil
	}
}

func decodeCtrl(p wire.Packet) (Message, error) {
	peer := peerFromPacket(p)
	switch p.Sub() {
	case wire.SubLookup:
		return Lookup{HashID: p.HashID, Origin: peer}, nil
	case wire.SubReply:
		return Reply{HashID: p.HashID, Peer: peer}, nil
	case wire.SubJoin:
		return Join{Joiner: peer}, nil
	case wire.SubNotify:
		return Notify{Peer: peer}, nil
	case wire.SubStabilize:
		return Stabilize{Peer: peer}, nil
	case wire.SubFinger:
		return Finger{}, nil
	case wire.SubFingerAck:
		return FingerAck{}, nil
	default:
		return nil, fmt.Errorf("message: unknown control sub-flag %d", p.Sub())
	}
}

func peerFromPacket(p wire.Packet) ring.Peer {
	ip := net.IPv4(p.NodeIP[0], p.NodeIP[1], p.NodeIP[2], p.NodeIP[3])
	return ring.Peer{ID: p.NodeID, Host: ip.String(), Port: p.NodePort}
}

func packetForPeer(peer ring.Peer, sub byte, hashID uint16) wire.Packet {
	ip, port := wire.NodeIPFromAddr(peer.Host, peer.Port)
	return wire.Packet{
		Flags:    wire.FlagCtrl | sub,
		NodeID:   peer.ID,
		NodeIP:   ip,
		NodePort: port,
		HashID:   hashID,
	}
}

// Encode converts a typed Message back into its wire.Packet form.
func Encode(m Message) wire.Packet {
	switch v := m.(type) {
	case Get:
		return wire.Packet{Flags: wire.FlagGET, Key: v.Key}
	case Set:
		return wire.Packet{Flags: wire.FlagSET, Key: v.Key, Value: v.Value}
	case Del:
		return wire.Packet{Flags: wire.FlagDEL, Key: v.Key}
	case Unknown:
		return wire.Packet{Flags: v.Flags}

	case GetReply:
		flags := byte(wire.FlagGET)
		if v.Hit {
			flags |= wire.FlagACK
			return wire.Packet{Flags: flags, Key: v.Key, Value: v.Value}
		}
		return wire.Packet{Flags: flags, Key: v.Key}
	case SetReply:
		return wire.Packet{Flags: wire.FlagSET | wire.FlagACK}
	case DelReply:
		flags := byte(wire.FlagDEL)
		if v.Ok {
			flags |= wire.FlagACK
		}
		return wire.Packet{Flags: flags}
	case UnknownReply:
		return wire.Packet{Flags: v.Flags | wire.FlagACK, Key: v.Key, Value: v.Value}

	case Lookup:
		return packetForPeer(v.Origin, wire.SubLookup, v.HashID)
	case Reply:
		return packetForPeer(v.Peer, wire.SubReply, v.HashID)
	case Join:
		return packetForPeer(v.Joiner, wire.SubJoin, 0)
	case Notify:
		return packetForPeer(v.Peer, wire.SubNotify, 0)
	case Stabilize:
		return packetForPeer(v.Peer, wire.SubStabilize, 0)
	case Finger:
		return wire.Packet{Flags: wire.FlagCtrl | wire.SubFinger}
	case FingerAck:
		return wire.Packet{Flags: wire.FlagCtrl | wire.SubFingerAck}
	default:
		panic(fmt.Sprintf("message: unencodable type %T", m))
	}
}

// SentinelReply builds the fixed reply for an Unknown data request.
func SentinelReply(flags byte) UnknownReply {
	return UnknownReply{Flags: flags, Key: sentinelKey, Value: sentinelValue}
}
