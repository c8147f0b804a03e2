package iface

import (
	"errors"
	"math/rand"
	"reflect"
	"sync"
	"testing"
)

func newTestTable(t *testing.T, names ...string) *Table {
	tbl := NewTable()
	for i, n := range names {
		err := tbl.Add(Record{Name: n, ClientAddr: "127.0.0.1", ServerAddr: "127.0.0.1", Index: i})
		if err != nil {
			t.Fatalf("Add(%q) failed: %v", n, err)
		}
	}
	return tbl
}

func TestTable_Add(t *testing.T) {
	tbl := newTestTable(t, "wlan1", "lo", "wlan0")
	if got := tbl.Names(); !reflect.DeepEqual(got, []string{"wlan1", "lo", "wlan0"}) {
		t.Errorf("Names() = %v, want insertion order", got)
	}
	err := tbl.Add(Record{Name: "lo"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("Add(duplicate) = %v, want ErrDuplicate", err)
	}
	if tbl.Len() != 3 {
		t.Errorf("Len() = %d, want 3", tbl.Len())
	}
}

func TestTable_Prune(t *testing.T) {
	tbl := NewTable()
	tbl.Add(Record{Name: "lo", ClientAddr: "127.0.0.1", ServerAddr: "127.0.0.1"})
	tbl.Add(Record{Name: "wlan0", ServerAddr: "10.0.0.1"})
	tbl.Add(Record{Name: "wlan1", ClientAddr: "10.0.1.1"})
	dropped := tbl.Prune()
	if !reflect.DeepEqual(dropped, []string{"wlan0", "wlan1"}) {
		t.Errorf("Prune() dropped %v", dropped)
	}
	if got := tbl.Names(); !reflect.DeepEqual(got, []string{"lo"}) {
		t.Errorf("Names() after Prune = %v", got)
	}
	if _, found := tbl.Get("wlan0"); found {
		t.Error("wlan0 should not be present after Prune")
	}
}

func TestTable_Update(t *testing.T) {
	tbl := newTestTable(t, "a", "c")
	if !tbl.Update("c", func(r *Record) { r.Index = 7 }) {
		t.Fatal("Update(c) returned false")
	}
	if r, _ := tbl.Get("c"); r.Index != 7 {
		t.Errorf("Index = %d, want 7", r.Index)
	}
	if tbl.Update("b", func(r *Record) {}) {
		t.Error("Update(b) should fail for a missing record")
	}
}

func TestTable_HandoffNoDoubleCount(t *testing.T) {
	tbl := newTestTable(t, "lo")
	tbl.AddBytes("lo", 1000)

	got := tbl.Handoff([]string{"lo", "unknown"})
	if !reflect.DeepEqual(got, map[string]uint64{"lo": 1000}) {
		t.Fatalf("Handoff() = %v", got)
	}
	// More bytes arrive before the worker applies the drain.
	tbl.AddBytes("lo", 300)
	got = tbl.Handoff([]string{"lo"})
	if got["lo"] != 300 {
		t.Fatalf("second Handoff() = %d, want 300", got["lo"])
	}
	if tbl.Pending("lo") > tbl.Accumulated("lo") {
		t.Fatalf("pending %d exceeds accumulated %d", tbl.Pending("lo"), tbl.Accumulated("lo"))
	}
	if drained := tbl.ApplyDrain("lo"); drained != 1300 {
		t.Errorf("ApplyDrain() = %d, want 1300", drained)
	}
	tbl.AddBytes("lo", 50)
	if got := tbl.Handoff([]string{"lo"}); got["lo"] != 50 {
		t.Errorf("third Handoff() = %d, want 50", got["lo"])
	}
	if drained := tbl.ApplyDrain("lo"); drained != 50 {
		t.Errorf("ApplyDrain() = %d, want 50", drained)
	}
	if tbl.Accumulated("lo") != 0 || tbl.Pending("lo") != 0 {
		t.Errorf("counter = %d pending = %d, want both zero", tbl.Accumulated("lo"), tbl.Pending("lo"))
	}
}

func TestTable_DrainBeforeAccumulate(t *testing.T) {
	tbl := newTestTable(t, "lo")
	tbl.AddBytes("lo", 500)
	tbl.Handoff([]string{"lo"})
	// Worker order: drain first, then the newly read datagrams.
	tbl.ApplyDrain("lo")
	tbl.AddBytes("lo", 20)
	tbl.AddBytes("lo", 30)
	if got := tbl.Accumulated("lo"); got != 50 {
		t.Errorf("Accumulated() = %d, want 50", got)
	}
}

// Every reported value is eventually drained exactly once, so the sum of the
// reports plus what is left unreported equals the sum of all received bytes.
func TestTable_ConcurrentInterleaving(t *testing.T) {
	tbl := newTestTable(t, "lo", "wlan0")
	names := []string{"lo", "wlan0"}
	const rounds = 2000

	var wg sync.WaitGroup
	received := make(map[string]uint64)
	var recvMu sync.Mutex
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(len(name))))
			var sum uint64
			for i := 0; i < rounds; i++ {
				tbl.ApplyDrain(name)
				n := uint64(r.Intn(1500) + 1)
				tbl.AddBytes(name, n)
				sum += n
				if tbl.Pending(name) > tbl.Accumulated(name) {
					t.Errorf("%s: pending exceeds accumulated", name)
				}
			}
			recvMu.Lock()
			received[name] = sum
			recvMu.Unlock()
		}(name)
	}
	reported := make(map[string]uint64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < rounds/10; i++ {
			for k, v := range tbl.Handoff(names) {
				reported[k] += v
			}
		}
	}()
	wg.Wait()
	<-done

	for _, name := range names {
		unreported := tbl.Accumulated(name) - tbl.Pending(name)
		if reported[name]+unreported != received[name] {
			t.Errorf("%s: reported %d + unreported %d != received %d",
				name, reported[name], unreported, received[name])
		}
	}
}
