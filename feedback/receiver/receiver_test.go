package receiver

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/m-lab/go/testingx"
	"go.uber.org/goleak"

	"github.com/danielfilipeteixeira24/wintech2022-wiperf/config"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/data"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/feedback/report"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/iface"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/position"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/store"
)

type recordingSink struct {
	mu      sync.Mutex
	batches [][]data.Measurement
	stored  chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{stored: make(chan struct{}, 16)}
}

func (s *recordingSink) Store(_ context.Context, records []data.Measurement) error {
	s.mu.Lock()
	s.batches = append(s.batches, records)
	s.mu.Unlock()
	s.stored <- struct{}{}
	return nil
}

func (s *recordingSink) Close() error { return nil }

type failingProvider struct{}

func (failingProvider) Current(context.Context) (data.Fix, error) {
	return data.Fix{Lat: 1, Lon: 2}, errors.New("no fix")
}

func mustMarshal(t *testing.T, r *report.Report) []byte {
	b, err := r.MarshalBinary()
	testingx.Must(t, err, "cannot marshal report")
	return b
}

func TestReceiver_Records(t *testing.T) {
	r := New(iface.NewTable(), []string{"lo", "802.11ac"}, 0, &position.Static{}, store.Discard{})
	fix := data.Fix{Lat: 41.1, Lon: -8.6, Speed: 12, Heading: 90}

	b := mustMarshal(t, &report.Report{Entries: []report.Entry{
		{Index: 1, Samples: [report.Slots]report.Sample{{Timestamp: 1000, Throughput: 500}}},
		{Index: 0, Samples: [report.Slots]report.Sample{{Timestamp: 1000, Throughput: 1200}}},
	}})
	got, err := r.Records(b, fix)
	testingx.Must(t, err, "cannot build records")
	if len(got) != 2 {
		t.Fatalf("Records() returned %d records, want 2", len(got))
	}
	if got[0].RAT != "802.11ac" || got[0].Throughput != 500 || got[0].TimestampMillis != 1000 {
		t.Errorf("first record = %+v", got[0])
	}
	if got[1].RAT != "lo" || got[1].Throughput != 1200 {
		t.Errorf("second record = %+v", got[1])
	}
	if got[0].NumBits != 50000 {
		t.Errorf("NumBits = %d, want 50000", got[0].NumBits)
	}
	if got[0].Latitude != 41.1 || got[0].Longitude != -8.6 || got[0].Orientation != 90 || !got[0].Moving {
		t.Errorf("position not applied: %+v", got[0])
	}
	if got[0].SchemaVersion != data.CurrentSchemaVersion {
		t.Errorf("SchemaVersion = %d", got[0].SchemaVersion)
	}
}

func TestReceiver_RecordsSkipsAbsentSlots(t *testing.T) {
	r := New(iface.NewTable(), []string{"lo"}, 0, &position.Static{}, store.Discard{})
	b := mustMarshal(t, &report.Report{Entries: []report.Entry{
		{Index: 0, Samples: [report.Slots]report.Sample{
			{Timestamp: 300, Throughput: 8},
			{},
			{Timestamp: 100, Throughput: 0},
		}},
	}})
	got, err := r.Records(b, data.Fix{})
	testingx.Must(t, err, "cannot build records")
	if len(got) != 2 {
		t.Fatalf("Records() returned %d records, want 2", len(got))
	}
	if got[0].TimestampMillis != 300 || got[1].TimestampMillis != 100 {
		t.Errorf("timestamps = %d, %d", got[0].TimestampMillis, got[1].TimestampMillis)
	}
	if got[1].Throughput != 0 || got[1].NumBits != 0 {
		t.Errorf("a zero sample must be kept as is: %+v", got[1])
	}
}

func TestReceiver_LossTolerance(t *testing.T) {
	r := New(iface.NewTable(), []string{"lo"}, 0, &position.Static{}, store.Discard{})
	s1 := report.Sample{Timestamp: 100, Throughput: 8}
	s2 := report.Sample{Timestamp: 200, Throughput: 16}
	s3 := report.Sample{Timestamp: 300, Throughput: 24}
	// R1 carried only s1 and was lost; R2 and R3 still carry it.
	for _, rep := range []*report.Report{
		{Entries: []report.Entry{{Index: 0, Samples: [report.Slots]report.Sample{s2, s1}}}},
		{Entries: []report.Entry{{Index: 0, Samples: [report.Slots]report.Sample{s3, s2, s1}}}},
	} {
		got, err := r.Records(mustMarshal(t, rep), data.Fix{})
		testingx.Must(t, err, "cannot build records")
		found := false
		for _, m := range got {
			if m.TimestampMillis == s1.Timestamp && m.Throughput == s1.Throughput {
				found = true
			}
		}
		if !found {
			t.Errorf("sample of the lost report not recovered from %+v", got)
		}
	}
}

func TestReceiver_RecordsMalformed(t *testing.T) {
	r := New(iface.NewTable(), []string{"lo"}, 0, &position.Static{}, store.Discard{})
	valid := mustMarshal(t, &report.Report{Entries: []report.Entry{
		{Index: 0, Samples: [report.Slots]report.Sample{{Timestamp: 1, Throughput: 1}}},
	}})
	tests := []struct {
		name string
		b    []byte
		want error
	}{
		{name: "empty", b: nil, want: report.ErrShort},
		{name: "truncated", b: valid[:len(valid)-1], want: report.ErrLength},
		{
			name: "unknown-index",
			b: mustMarshal(t, &report.Report{Entries: []report.Entry{
				{Index: 3, Samples: [report.Slots]report.Sample{{Timestamp: 1, Throughput: 1}}},
			}}),
			want: report.ErrIndex,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Records(tt.b, data.Fix{})
			if !errors.Is(err, tt.want) {
				t.Errorf("Records() error = %v, want %v", err, tt.want)
			}
			if got != nil {
				t.Errorf("Records() = %v, want nil", got)
			}
		})
	}
}

func TestReceiver_Configure(t *testing.T) {
	c, err := config.Parse([]byte(`
[data-sender]
ifaces = lo 127.0.0.1, wlan0 10.0.0.1

[feedback-sender]
ifaces = lo 127.0.0.1

[feedback-receiver]
ifaces = lo 127.0.0.1
port = 45000
feedback-interval = 250
`))
	testingx.Must(t, err, "cannot parse config")
	r := New(nil, nil, 0, &position.Static{}, store.Discard{})
	testingx.Must(t, r.Configure(c), "cannot configure")
	if r.Port != 45000 {
		t.Errorf("Port = %d", r.Port)
	}
	if r.Interval != 250*time.Millisecond {
		t.Errorf("Interval = %v", r.Interval)
	}
	if len(r.Names) != 2 || r.Names[1] != "wlan0" {
		t.Errorf("Names = %v", r.Names)
	}
	if r.Table.Len() != 1 {
		t.Errorf("Table.Len() = %d", r.Table.Len())
	}
}

func TestReceiver_Run(t *testing.T) {
	defer goleak.VerifyNone(t)
	tbl := iface.NewTable()
	tbl.Add(iface.Record{Name: "lo", ClientAddr: "127.0.0.1", ServerAddr: "127.0.0.1"})
	sink := newRecordingSink()
	r := New(tbl, []string{"lo"}, 0, failingProvider{}, sink)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	var conn *net.UDPConn
	for deadline := time.Now().Add(5 * time.Second); conn == nil; {
		if time.Now().After(deadline) {
			t.Fatal("socket was never opened")
		}
		time.Sleep(time.Millisecond)
		conn = r.Conn("lo")
	}
	raddr := conn.LocalAddr().(*net.UDPAddr)
	client, err := net.DialUDP("udp4", nil, raddr)
	testingx.Must(t, err, "cannot dial")
	defer client.Close()

	_, err = client.Write([]byte{1, 2, 3})
	testingx.Must(t, err, "cannot write malformed report")
	_, err = client.Write(mustMarshal(t, &report.Report{Entries: []report.Entry{
		{Index: 0, Samples: [report.Slots]report.Sample{{Timestamp: 100, Throughput: 42}}},
	}}))
	testingx.Must(t, err, "cannot write report")

	select {
	case <-sink.stored:
	case <-time.After(5 * time.Second):
		t.Fatal("no records stored")
	}
	sink.mu.Lock()
	got := sink.batches[0]
	sink.mu.Unlock()
	if len(got) != 1 || got[0].Throughput != 42 || got[0].Latitude != 1 {
		t.Errorf("stored = %+v", got)
	}

	r.Stop()
	r.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after Stop")
	}
}
