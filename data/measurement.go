package data

import (
	"time"
)

// CurrentSchemaVersion is the current version of the Measurement struct
// below. It is included in archived records and must be incremented for
// every structure change.
const CurrentSchemaVersion = 1

// MovingThreshold is the speed, in km/h, above which the node is
// considered to be moving.
const MovingThreshold = 0.5

// Kind tells which path produced a Measurement.
type Kind int

// Measurement kinds.
const (
	Throughput Kind = iota
	Channel
	Scan
)

func (k Kind) String() string {
	switch k {
	case Channel:
		return "channel"
	case Scan:
		return "scan"
	}
	return "throughput"
}

// Measurement is the record persisted for one (timestamp, rat) pair. The
// throughput path fills the throughput and mobility fields, the channel
// telemetry path fills ChannelInfo, TxBitrate and SignalStrength.
type Measurement struct {
	SchemaVersion int

	// TimestampMillis is the measurement instant in ms since the epoch.
	TimestampMillis uint64
	// RAT is the interface name.
	RAT string

	Throughput uint32 // kbit/s
	NumBits    uint64

	ChannelInfo string `json:",omitempty"`
	ScanInfo    string `json:",omitempty"`

	Latitude    float64
	Longitude   float64
	Speed       float64 // km/h
	Orientation float64 // degrees
	Moving      bool

	TxBitrate      int
	SignalStrength int
}

// Time returns the measurement instant.
func (m *Measurement) Time() time.Time {
	return time.UnixMilli(int64(m.TimestampMillis)).UTC()
}

// Kind derives the record kind from the populated fields. Records with a
// throughput or bit count always take the throughput path.
func (m *Measurement) Kind() Kind {
	if m.Throughput != 0 || m.NumBits != 0 {
		return Throughput
	}
	switch {
	case m.ChannelInfo != "":
		return Channel
	case m.ScanInfo != "":
		return Scan
	}
	return Throughput
}

// NumBits returns the bits received during interval at throughput kbit/s.
func NumBits(throughput uint32, interval time.Duration) uint64 {
	return uint64(throughput) * uint64(interval/time.Millisecond)
}

// IsMoving reports whether speed, in km/h, means the node is moving.
func IsMoving(speed float64) bool {
	return speed > MovingThreshold
}

// RoundDown truncates a millisecond timestamp to a multiple of interval.
func RoundDown(ms uint64, interval time.Duration) uint64 {
	step := uint64(interval / time.Millisecond)
	if step == 0 {
		return ms
	}
	return ms - ms%step
}

// RoundUp rounds a millisecond timestamp up to a multiple of interval.
func RoundUp(ms uint64, interval time.Duration) uint64 {
	step := uint64(interval / time.Millisecond)
	if step == 0 || ms%step == 0 {
		return ms
	}
	return ms - ms%step + step
}
