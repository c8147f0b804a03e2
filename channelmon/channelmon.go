// Package channelmon samples per-interface link counters and stores them as
// channel telemetry records, next to the throughput records of the same
// instant.
package channelmon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
	"github.com/spf13/cast"

	"github.com/danielfilipeteixeira24/wintech2022-wiperf/config"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/data"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/iface"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/logging"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/metrics"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/store"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/transfer"
)

const role = "channel-monitor"

// DefaultProcPath is where the kernel statistics are read from.
const DefaultProcPath = "/proc"

// ErrChannelInfo is returned for a channel info string that does not hold
// the expected counters.
var ErrChannelInfo = errors.New("malformed channel info")

// Counters are the link counters of one interface over one sampling
// interval.
type Counters struct {
	RxBytes   uint64
	RxPackets uint64
	RxErrors  uint64
	RxDropped uint64
	TxBytes   uint64
	TxPackets uint64
	TxErrors  uint64
	TxDropped uint64
}

func (c *Counters) fields() []*uint64 {
	return []*uint64{
		&c.RxBytes, &c.RxPackets, &c.RxErrors, &c.RxDropped,
		&c.TxBytes, &c.TxPackets, &c.TxErrors, &c.TxDropped,
	}
}

// EncodeChannelInfo renders c as the opaque string stored in the
// channel_info column.
func EncodeChannelInfo(c Counters) string {
	parts := make([]string, 0, 8)
	for _, f := range c.fields() {
		parts = append(parts, cast.ToString(*f))
	}
	return strings.Join(parts, ",")
}

// DecodeChannelInfo parses a string built by EncodeChannelInfo.
func DecodeChannelInfo(s string) (Counters, error) {
	var c Counters
	parts := strings.Split(s, ",")
	fields := c.fields()
	if len(parts) != len(fields) {
		return Counters{}, fmt.Errorf("%w: %d fields", ErrChannelInfo, len(parts))
	}
	for i, p := range parts {
		if strings.HasPrefix(p, "-") {
			return Counters{}, fmt.Errorf("%w: negative counter %q", ErrChannelInfo, p)
		}
		v, err := cast.ToUint64E(p)
		if err != nil {
			return Counters{}, fmt.Errorf("%w: %v", ErrChannelInfo, err)
		}
		*fields[i] = v
	}
	return c, nil
}

// delta returns the growth of the counters since prev. A counter that went
// backwards was reset and counts from zero.
func delta(cur, prev procfs.NetDevLine) Counters {
	sub := func(a, b uint64) uint64 {
		if a < b {
			return a
		}
		return a - b
	}
	return Counters{
		RxBytes:   sub(cur.RxBytes, prev.RxBytes),
		RxPackets: sub(cur.RxPackets, prev.RxPackets),
		RxErrors:  sub(cur.RxErrors, prev.RxErrors),
		RxDropped: sub(cur.RxDropped, prev.RxDropped),
		TxBytes:   sub(cur.TxBytes, prev.TxBytes),
		TxPackets: sub(cur.TxPackets, prev.TxPackets),
		TxErrors:  sub(cur.TxErrors, prev.TxErrors),
		TxDropped: sub(cur.TxDropped, prev.TxDropped),
	}
}

// Monitor samples the counters of the configured interfaces on every
// sampling interval boundary.
type Monitor struct {
	*transfer.Endpoint

	Interval time.Duration
	ProcPath string
	Sink     store.Sink
	Now      func() time.Time

	pfs  procfs.FS
	prev map[string]procfs.NetDevLine
}

// New returns a monitor of the named interfaces.
func New(names []string, sink store.Sink) *Monitor {
	m := &Monitor{
		Endpoint: transfer.NewEndpoint(role, nil),
		Interval: config.DefaultSamplingInterval,
		ProcPath: DefaultProcPath,
		Sink:     sink,
		Now:      time.Now,
	}
	m.setNames(names)
	return m
}

func (m *Monitor) setNames(names []string) {
	m.Table = iface.NewTable()
	for _, n := range names {
		// Duplicates are dropped.
		_ = m.Table.Add(iface.Record{Name: n})
	}
}

// Configure reads the channel-monitor section.
func (m *Monitor) Configure(c *config.Config) error {
	names := c.ReadIfnames(config.ChannelMonitor)
	if len(names) == 0 {
		return errors.New("channel monitor: no interface to sample")
	}
	m.setNames(names)
	m.Interval = c.ReadInterval(config.ChannelMonitor, "sampling-interval", config.DefaultSamplingInterval)
	return nil
}

// Sample reads the counters once and returns one channel record for every
// interface seen in the previous sample as well.
func (m *Monitor) Sample() ([]data.Measurement, error) {
	if m.prev == nil {
		pfs, err := procfs.NewFS(m.ProcPath)
		if err != nil {
			return nil, err
		}
		m.pfs = pfs
		m.prev = make(map[string]procfs.NetDevLine)
	}
	nd, err := m.pfs.NetDev()
	if err != nil {
		return nil, err
	}
	ts := data.RoundUp(uint64(m.Now().UnixMilli()), m.Interval)
	ms := uint64(m.Interval / time.Millisecond)

	var out []data.Measurement
	for _, name := range m.Table.Names() {
		cur, found := nd[name]
		if !found {
			logging.Logger.WithField("iface", name).Debug("channel monitor: interface not found")
			delete(m.prev, name)
			continue
		}
		prev, seen := m.prev[name]
		m.prev[name] = cur
		if !seen {
			continue
		}
		d := delta(cur, prev)
		rec := data.Measurement{
			SchemaVersion:   data.CurrentSchemaVersion,
			TimestampMillis: ts,
			RAT:             name,
			ChannelInfo:     EncodeChannelInfo(d),
		}
		if ms > 0 {
			rec.TxBitrate = cast.ToInt(d.TxBytes * 8 / ms)
		}
		out = append(out, rec)
		metrics.ChannelSamples.WithLabelValues(name).Inc()
	}
	return out, nil
}

func (m *Monitor) untilBoundary() time.Duration {
	now := m.Now().UnixNano()
	return m.Interval - time.Duration(now%int64(m.Interval))
}

// Run samples on every interval boundary until Stop is called or ctx is
// done. A failed sample is logged and the loop goes on.
func (m *Monitor) Run(ctx context.Context) error {
	logging.Logger.Debug("channel monitor: start")
	defer logging.Logger.Debug("channel monitor: stop")
	ctx, cancel := m.WithShutdown(ctx)
	defer cancel()
	if ctx.Err() != nil {
		return nil
	}
	if m.Interval < time.Millisecond {
		return fmt.Errorf("sampling interval %v is below 1ms", m.Interval)
	}
	metrics.ActiveWorkers.WithLabelValues(role).Inc()
	defer metrics.ActiveWorkers.WithLabelValues(role).Dec()
	l := logging.Logger.WithFields(log.Fields{"role": role, "interval": m.Interval})

	timer := time.NewTimer(m.untilBoundary())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		records, err := m.Sample()
		if err != nil {
			l.WithError(err).Warn("channel monitor: cannot read counters")
		} else if len(records) > 0 {
			if err := m.Sink.Store(ctx, records); err != nil {
				l.WithError(err).Warn("channel monitor: cannot store records")
			}
		}
		timer.Reset(m.untilBoundary())
	}
}

// Stop asks the monitor to terminate.
func (m *Monitor) Stop() {
	m.RequestShutdown()
}
