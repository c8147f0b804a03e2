package data

import (
	"testing"
	"time"
)

func TestMeasurement_Kind(t *testing.T) {
	tests := []struct {
		name string
		m    Measurement
		want Kind
	}{
		{name: "throughput", m: Measurement{Throughput: 10}, want: Throughput},
		{name: "channel", m: Measurement{ChannelInfo: "1,2"}, want: Channel},
		{name: "scan", m: Measurement{ScanInfo: "net-a"}, want: Scan},
		{name: "empty", m: Measurement{}, want: Throughput},
		{name: "throughput-with-channel", m: Measurement{NumBits: 8, ChannelInfo: "1,2"}, want: Throughput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.Kind(); got != tt.want {
				t.Errorf("Kind() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHelpers(t *testing.T) {
	if got := NumBits(500, 100*time.Millisecond); got != 50000 {
		t.Errorf("NumBits() = %d", got)
	}
	if IsMoving(0.5) || !IsMoving(0.51) {
		t.Error("IsMoving threshold is wrong")
	}
	if got := RoundDown(1234, 100*time.Millisecond); got != 1200 {
		t.Errorf("RoundDown() = %d", got)
	}
	if got := RoundUp(1234, 100*time.Millisecond); got != 1300 {
		t.Errorf("RoundUp() = %d", got)
	}
	if got := RoundUp(1200, 100*time.Millisecond); got != 1200 {
		t.Errorf("RoundUp(aligned) = %d", got)
	}
	m := Measurement{TimestampMillis: 1500}
	if !m.Time().Equal(time.Unix(1, 500e6)) {
		t.Errorf("Time() = %v", m.Time())
	}
}

func TestRAT(t *testing.T) {
	for r := Loopback; r <= NR5G; r++ {
		got, ok := ParseRAT(r.String())
		if !ok || got != r {
			t.Errorf("ParseRAT(%q) = %v, %t", r.String(), got, ok)
		}
	}
	if RAT(9).String() != "unknown" {
		t.Error("out of range RAT should be unknown")
	}
	if _, ok := ParseRAT("802.3"); ok {
		t.Error("ParseRAT(802.3) should fail")
	}
}
