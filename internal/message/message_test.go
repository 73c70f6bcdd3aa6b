package message

import (
	"testing"

	"github.com/chordring/peer/internal/ring"
	"github.com/chordring/peer/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestDecodeDataVariants(t *testing.T) {
	m, err := Decode(wire.Packet{Flags: wire.FlagGET, Key: []byte("k")})
	require.NoError(t, err)
	require.Equal(t, Get{Key: []byte("k")}, m)

	m, err = Decode(wire.Packet{Flags: wire.FlagSET, Key: []byte("k"), Value: []byte("v")})
	require.NoError(t, err)
	require.Equal(t, Set{Key: []byte("k"), Value: []byte("v")}, m)

	m, err = Decode(wire.Packet{Flags: wire.FlagDEL, Key: []byte("k")})
	require.NoError(t, err)
	require.Equal(t, Del{Key: []byte("k")}, m)

	m, err = Decode(wire.Packet{Flags: 0})
	require.NoError(t, err)
	require.IsType(t, Unknown{}, m)
}

func TestEncodeReplyACKBit(t *testing.T) {
	hit := Encode(GetReply{Key: []byte("k"), Value: []byte("v"), Hit: true})
	require.NotZero(t, hit.Flags&wire.FlagACK)

	miss := Encode(GetReply{Key: []byte("k"), Hit: false})
	require.Zero(t, miss.Flags&wire.FlagACK)

	delOk := Encode(DelReply{Ok: true})
	require.NotZero(t, delOk.Flags&wire.FlagACK)

	delMiss := Encode(DelReply{Ok: false})
	require.Zero(t, delMiss.Flags&wire.FlagACK)
}

func TestControlRoundTrip(t *testing.T) {
	p := ring.Peer{ID: 7, Host: "10.1.2.3", Port: 9000}

	lk := Lookup{HashID: 555, Origin: p}
	pkt := Encode(lk)
	require.True(t, pkt.IsCtrl())
	require.Equal(t, wire.SubLookup, pkt.Sub())

	back, err := Decode(pkt)
	require.NoError(t, err)
	got, ok := back.(Lookup)
	require.True(t, ok)
	require.Equal(t, lk.HashID, got.HashID)
	require.Equal(t, p, got.Origin)
}

func TestFingerHasNoPeerFields(t *testing.T) {
	pkt := Encode(Finger{})
	require.Equal(t, wire.SubFinger, pkt.Sub())
	back, err := Decode(pkt)
	require.NoError(t, err)
	require.Equal(t, Finger{}, back)
}

func TestUnknownSentinel(t *testing.T) {
	r := SentinelReply(0x20)
	pkt := Encode(r)
	require.Equal(t, byte(0x20)|wire.FlagACK, pkt.Flags)
	require.Equal(t, sentinelKey, pkt.Key)
	require.Equal(t, sentinelValue, pkt.Value)
}
