// Package pending implements the pending-request table: a mapping from
// ring identifier to the client sessions waiting on a lookup reply for
// that identifier.
package pending

import "sync"

// Entry is one client awaiting a lookup reply: the socket (as an opaque
// session handle) and the original request it made.
type Entry struct {
	Session Session
	Packet  []byte // the encoded original request packet
}

// Session is the minimal surface the pending table needs from a client
// connection: the table itself only ever needs to close it.
type Session interface {
	Close() error
}

// Table owns entries keyed by hash_id. Entries are appended in arrival
// order and a bucket is only ever removed in full, by Clear.
type Table struct {
	mu      sync.Mutex
	buckets map[uint16][]Entry
}

// New creates an empty pending-request table.
func New() *Table {
	return &Table{buckets: make(map[uint16][]Entry)}
}

// Add registers a client session and its original packet as awaiting a
// lookup reply for hashID.
func (t *Table) Add(hashID uint16, sess Session, pkt []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buckets[hashID] = append(t.buckets[hashID], Entry{Session: sess, Packet: pkt})
}

// Get returns a snapshot of the bucket for hashID, in insertion order. The
// snapshot is stable even if Add or Clear is subsequently called.
func (t *Table) Get(hashID uint16) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	bucket := t.buckets[hashID]
	out := make([]Entry, len(bucket))
	copy(out, bucket)
	return out
}

// Clear removes the entire bucket for hashID.
func (t *Table) Clear(hashID uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.buckets, hashID)
}

// Len reports how many hash_id buckets currently hold pending entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}
