// Package iface holds the per-interface state shared by the data-plane
// components: addresses, the open socket and the received-byte counter.
package iface

import (
	"errors"
	"fmt"
	"net"
	"sync"
)

// ErrDuplicate is returned by Add when the name is already present.
var ErrDuplicate = errors.New("duplicate interface name")

// Record describes one named network interface.
type Record struct {
	// Name is the key of the record, e.g. "wlan0" or "lo".
	Name string
	// ClientAddr is the dotted-quad address the sending side binds to.
	ClientAddr string
	// ServerAddr is the dotted-quad address the receiving side binds to.
	ServerAddr string
	// Index is the position of the interface in the configured list. It
	// is carried on the wire as the RAT identifier.
	Index int

	// Conn is nil until the owning component opens the socket.
	Conn *net.UDPConn

	accumulated uint64
}

// Usable reports whether both addresses are present.
func (r *Record) Usable() bool {
	return r.ClientAddr != "" && r.ServerAddr != ""
}

// Table is an insertion-ordered set of interface records. All access goes
// through a single mutex, which is fine at the interface counts we expect.
type Table struct {
	mu      sync.Mutex
	order   []string
	records map[string]*Record
	pending map[string]uint64
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		records: make(map[string]*Record),
		pending: make(map[string]uint64),
	}
}

// Add appends a copy of r to the table.
func (t *Table) Add(r Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, found := t.records[r.Name]; found {
		return fmt.Errorf("%w: %q", ErrDuplicate, r.Name)
	}
	rec := r
	rec.accumulated = 0
	t.records[r.Name] = &rec
	t.order = append(t.order, r.Name)
	return nil
}

// Len returns the number of records.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

// Names returns the record names in insertion order.
func (t *Table) Names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.order...)
}

// Get returns a snapshot of the named record.
func (t *Table) Get(name string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, found := t.records[name]
	if !found {
		return Record{}, false
	}
	return *r, true
}

// Records returns snapshots of every record in insertion order.
func (t *Table) Records() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, 0, len(t.order))
	for _, n := range t.order {
		out = append(out, *t.records[n])
	}
	return out
}

// Update calls fn on the named record while holding the lock. It is meant
// for the socket lifecycle fields; fn must not block.
func (t *Table) Update(name string, fn func(r *Record)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, found := t.records[name]
	if !found {
		return false
	}
	fn(r)
	return true
}

// Each calls fn on every record in insertion order while holding the lock.
func (t *Table) Each(fn func(r *Record)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, n := range t.order {
		fn(t.records[n])
	}
}

// Prune removes every record that is not Usable and returns the names
// that were dropped.
func (t *Table) Prune() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var dropped []string
	kept := t.order[:0]
	for _, n := range t.order {
		if t.records[n].Usable() {
			kept = append(kept, n)
			continue
		}
		dropped = append(dropped, n)
		delete(t.records, n)
		delete(t.pending, n)
	}
	t.order = kept
	return dropped
}
