package pending

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSession struct{ name string }

func (f *fakeSession) Close() error { return nil }

func TestAddGetClear(t *testing.T) {
	tb := New()
	require.Empty(t, tb.Get(42))

	a := &fakeSession{"a"}
	b := &fakeSession{"b"}
	tb.Add(42, a, []byte("req-a"))
	tb.Add(42, b, []byte("req-b"))
	tb.Add(99, a, []byte("req-other-bucket"))

	bucket := tb.Get(42)
	require.Len(t, bucket, 2)
	require.Equal(t, a, bucket[0].Session, "insertion order preserved")
	require.Equal(t, b, bucket[1].Session)
	require.Equal(t, 2, tb.Len())

	tb.Clear(42)
	require.Empty(t, tb.Get(42))
	require.Len(t, tb.Get(99), 1, "clearing one bucket leaves others")
}

func TestGetSnapshotStableAcrossClear(t *testing.T) {
	tb := New()
	tb.Add(1, &fakeSession{"x"}, []byte("req"))
	snap := tb.Get(1)
	tb.Clear(1)
	require.Len(t, snap, 1, "previously returned snapshot is unaffected by Clear")
}

func TestMultiplePendingSameHash(t *testing.T) {
	tb := New()
	for i := 0; i < 5; i++ {
		tb.Add(7, &fakeSession{}, []byte("req"))
	}
	require.Len(t, tb.Get(7), 5)
}
