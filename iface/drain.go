package iface

// AddBytes adds n received bytes to the named counter.
func (t *Table) AddBytes(name string, n uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, found := t.records[name]; found {
		r.accumulated += n
	}
}

// Accumulated returns the raw counter of the named interface. Any pending
// drain has not been subtracted yet.
func (t *Table) Accumulated(name string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, found := t.records[name]; found {
		return r.accumulated
	}
	return 0
}

// Pending returns the drain not yet applied to the named counter.
func (t *Table) Pending(name string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending[name]
}

// ApplyDrain subtracts the pending drain of the named interface from its
// counter and zeroes the pending entry. Receiver workers call it before
// accumulating newly read bytes. It returns the amount drained.
func (t *Table) ApplyDrain(name string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.applyDrainLocked(name)
}

func (t *Table) applyDrainLocked(name string) uint64 {
	r, found := t.records[name]
	if !found {
		return 0
	}
	v := t.pending[name]
	if v == 0 {
		return 0
	}
	if v > r.accumulated {
		// Cannot happen while Handoff is the only writer of pending.
		v = r.accumulated
	}
	r.accumulated -= v
	t.pending[name] = 0
	return v
}

// Handoff returns, for each requested name present in the table, the bytes
// received since the previous handoff, and schedules them to be drained.
//
// The reported value is accumulated minus the drain still pending, and the
// new pending value is the whole counter. So pending never exceeds the
// counter, and bytes covered by a drain the worker has not applied yet are
// never reported twice.
func (t *Table) Handoff(names []string) map[string]uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]uint64, len(names))
	for _, name := range names {
		r, found := t.records[name]
		if !found {
			continue
		}
		out[name] = r.accumulated - t.pending[name]
		t.pending[name] = r.accumulated
	}
	return out
}
