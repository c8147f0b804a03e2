// Package report implements the binary feedback report exchanged between
// the feedback sender and the feedback receiver.
//
// A report is a uint32 interface count N followed by N entries of 40 bytes:
// the interface index and three samples (t, t-1, t-2) of 12 bytes each, a
// uint64 millisecond timestamp and a uint32 throughput in kbit/s. All fields
// are big endian except the interface index, which deployed peers write in
// host (little endian) order. A sample whose timestamp is zero is absent.
package report

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Sizes of the wire structures, in bytes.
const (
	HeaderSize = 4
	SampleSize = 12
	Slots      = 3
	EntrySize  = 4 + Slots*SampleSize
)

// MaxDatagram is the receive buffer size used by feedback receivers. Reports
// larger than this cannot be read in one datagram.
const MaxDatagram = 512

// MaxEntries is the largest interface count that fits in MaxDatagram.
const MaxEntries = (MaxDatagram - HeaderSize) / EntrySize

// IndexOrder is the byte order of the interface index field.
var IndexOrder binary.ByteOrder = binary.LittleEndian

// Errors returned while decoding or validating reports.
var (
	ErrShort   = errors.New("report shorter than its header")
	ErrLength  = errors.New("report length does not match interface count")
	ErrTooMany = errors.New("too many interfaces in report")
	ErrIndex   = errors.New("interface index out of range")
)

// Slot positions within an entry.
const (
	Current  = 0
	Previous = 1
	Oldest   = 2
)

// Sample is one (timestamp, throughput) pair.
type Sample struct {
	Timestamp  uint64 // ms since the epoch
	Throughput uint32 // kbit/s
}

// Absent reports whether the slot carries no data.
func (s Sample) Absent() bool {
	return s.Timestamp == 0
}

// Entry holds the samples of one interface.
type Entry struct {
	Index   uint32
	Samples [Slots]Sample
}

// Report is a decoded feedback report.
type Report struct {
	Entries []Entry
}

// Size returns the encoded length of the report.
func (r *Report) Size() int {
	return HeaderSize + EntrySize*len(r.Entries)
}

// MarshalBinary encodes the report.
func (r *Report) MarshalBinary() ([]byte, error) {
	if len(r.Entries) > MaxEntries {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooMany, len(r.Entries), MaxEntries)
	}
	b := make([]byte, r.Size())
	binary.BigEndian.PutUint32(b, uint32(len(r.Entries)))
	for i, e := range r.Entries {
		off := HeaderSize + i*EntrySize
		IndexOrder.PutUint32(b[off:], e.Index)
		off += 4
		for _, s := range e.Samples {
			binary.BigEndian.PutUint64(b[off:], s.Timestamp)
			binary.BigEndian.PutUint32(b[off+8:], s.Throughput)
			off += SampleSize
		}
	}
	return b, nil
}

// UnmarshalBinary decodes b into r. Every bound is checked before indexing,
// so a malformed datagram yields an error and never a partial report.
func (r *Report) UnmarshalBinary(b []byte) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("%w: %d bytes", ErrShort, len(b))
	}
	n := binary.BigEndian.Uint32(b)
	if n > MaxEntries {
		return fmt.Errorf("%w: %d", ErrTooMany, n)
	}
	if want := HeaderSize + EntrySize*int(n); len(b) != want {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrLength, len(b), want)
	}
	entries := make([]Entry, n)
	for i := range entries {
		off := HeaderSize + i*EntrySize
		entries[i].Index = IndexOrder.Uint32(b[off:])
		off += 4
		for j := 0; j < Slots; j++ {
			entries[i].Samples[j] = Sample{
				Timestamp:  binary.BigEndian.Uint64(b[off:]),
				Throughput: binary.BigEndian.Uint32(b[off+8:]),
			}
			off += SampleSize
		}
	}
	r.Entries = entries
	return nil
}

// Decode is a convenience wrapper around UnmarshalBinary.
func Decode(b []byte) (*Report, error) {
	r := &Report{}
	if err := r.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks that every interface index is below n.
func (r *Report) Validate(n int) error {
	for _, e := range r.Entries {
		if int64(e.Index) >= int64(n) {
			return fmt.Errorf("%w: %d >= %d", ErrIndex, e.Index, n)
		}
	}
	return nil
}
