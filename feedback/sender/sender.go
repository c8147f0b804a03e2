// Package sender implements the feedback sender. Every feedback interval
// it turns the data receiver byte counters into throughput samples and
// sends them, along with the samples of the two previous intervals, to the
// feedback receiver.
package sender

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/apex/log"

	"github.com/danielfilipeteixeira24/wintech2022-wiperf/config"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/data"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/feedback/report"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/iface"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/logging"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/metrics"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/transfer"
)

const role = "feedback-sender"

// ErrTooManyInterfaces means the reported interface list cannot fit in a
// single feedback datagram.
var ErrTooManyInterfaces = errors.New("too many interfaces to report")

// Counters is the view of the data receiver the feedback sender needs.
// Records gives the reported interfaces, in order, and their wire index.
type Counters interface {
	Records() []iface.Record
	Handoff(names []string) map[string]uint64
}

// Sender periodically reports data receiver throughput.
type Sender struct {
	*transfer.Endpoint

	// Port is the local port; PeerPort is the feedback receiver port.
	Port     uint16
	PeerPort uint16
	// Interval is the reporting period.
	Interval time.Duration

	// Now returns the current time. Tests replace it.
	Now func() time.Time

	counters Counters
	tm1, tm2 map[string]report.Sample
}

// New returns a feedback sender reporting the counters of the data
// receiver over the feedback interfaces in table.
func New(counters Counters, table *iface.Table, port, peerPort uint16) *Sender {
	return &Sender{
		Endpoint: transfer.NewEndpoint(role, table),
		Port:     port,
		PeerPort: peerPort,
		Interval: config.DefaultFeedbackInterval,
		Now:      time.Now,
		counters: counters,
	}
}

// Configure reads the feedback-sender settings.
func (s *Sender) Configure(c *config.Config) error {
	tbl, err := c.Pairs(config.FeedbackReceiver, config.FeedbackSender)
	if err != nil {
		return err
	}
	s.Table = tbl
	s.Port = c.ReadPort(config.FeedbackSender, config.FeedbackSenderPort)
	s.PeerPort = c.ReadPort(config.FeedbackReceiver, config.FeedbackReceiverPort)
	s.Interval = c.ReadInterval(config.FeedbackSender, "feedback-interval", config.DefaultFeedbackInterval)
	return s.validate()
}

func (s *Sender) validate() error {
	if n := len(s.counters.Records()); n > report.MaxEntries {
		return fmt.Errorf("%w: %d > %d", ErrTooManyInterfaces, n, report.MaxEntries)
	}
	if s.Interval < time.Millisecond {
		return fmt.Errorf("feedback interval %v is below 1ms", s.Interval)
	}
	return nil
}

// Throughput converts the bytes received during interval to kbit/s, which
// is the same as bits per millisecond.
func Throughput(nbytes uint64, interval time.Duration) uint32 {
	ms := uint64(interval / time.Millisecond)
	if ms == 0 {
		return 0
	}
	kbps := nbytes * 8 / ms
	if kbps > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(kbps)
}

// untilBoundary returns how long to sleep until the next multiple of the
// interval on the wall clock.
func (s *Sender) untilBoundary() time.Duration {
	now := s.Now().UnixNano()
	return s.Interval - time.Duration(now%int64(s.Interval))
}

// Cycle takes the counters and builds the report of the window that just
// ended, window being the time slept since the previous report. Samples
// are stamped with the current time rounded down to the interval, so the
// feedback receiver can join them with telemetry for the same instant.
func (s *Sender) Cycle(window time.Duration) *report.Report {
	ts := data.RoundDown(uint64(s.Now().UnixMilli()), s.Interval)
	records := s.counters.Records()
	names := make([]string, len(records))
	for i := range records {
		names[i] = records[i].Name
	}
	counts := s.counters.Handoff(names)

	current := make(map[string]report.Sample, len(counts))
	rep := &report.Report{}
	for _, r := range records {
		n, found := counts[r.Name]
		if !found {
			continue
		}
		cur := report.Sample{Timestamp: ts, Throughput: Throughput(n, window)}
		current[r.Name] = cur
		rep.Entries = append(rep.Entries, report.Entry{
			Index:   uint32(r.Index),
			Samples: [report.Slots]report.Sample{cur, s.tm1[r.Name], s.tm2[r.Name]},
		})
		metrics.Throughput.WithLabelValues(r.Name).Observe(float64(cur.Throughput))
	}
	s.tm2, s.tm1 = s.tm1, current
	return rep
}

// Run binds the feedback sockets and reports on every interval boundary
// until Stop is called or ctx is done.
func (s *Sender) Run(ctx context.Context) error {
	logging.Logger.Debug("feedback sender: start")
	defer logging.Logger.Debug("feedback sender: stop")
	ctx, cancel := s.WithShutdown(ctx)
	defer cancel()
	if ctx.Err() != nil {
		return nil
	}
	if err := s.validate(); err != nil {
		return err
	}
	if s.Table.Len() == 0 {
		return errors.New("feedback sender: no feedback interface")
	}
	if err := s.OpenSockets(ctx, transfer.Client, s.Port, false); err != nil {
		return err
	}
	defer s.CloseAllSockets()

	// Reports go out on the first feedback interface.
	first := s.Table.Records()[0]
	raddr, err := transfer.BuildAddress(first.ServerAddr, s.PeerPort)
	if err != nil {
		return err
	}
	metrics.ActiveWorkers.WithLabelValues(role).Inc()
	defer metrics.ActiveWorkers.WithLabelValues(role).Dec()
	l := logging.Logger.WithFields(log.Fields{"role": role, "iface": first.Name, "peer": raddr.String()})

	// The first window is usually partial; throughput is always computed
	// over the time actually slept.
	wait := s.nextWait()
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		s.send(first.Conn, raddr, wait, l)
		wait = s.nextWait()
		timer.Reset(wait)
	}
}

// nextWait is untilBoundary, skipping a boundary too close to measure a
// window.
func (s *Sender) nextWait() time.Duration {
	wait := s.untilBoundary()
	if wait < time.Millisecond {
		wait += s.Interval
	}
	return wait
}

func (s *Sender) send(conn *net.UDPConn, raddr *net.UDPAddr, window time.Duration, l *log.Entry) {
	b, err := s.Cycle(window).MarshalBinary()
	if err != nil {
		l.WithError(err).Error("feedback sender: cannot encode report")
		metrics.FeedbackReports.WithLabelValues("sent", "encode-error").Inc()
		return
	}
	if _, err := conn.WriteToUDP(b, raddr); err != nil {
		l.WithError(err).Warn("feedback sender: send failed")
		metrics.FeedbackReports.WithLabelValues("sent", "send-error").Inc()
		return
	}
	metrics.FeedbackReports.WithLabelValues("sent", "ok").Inc()
}

// Stop asks the sender to terminate.
func (s *Sender) Stop() {
	s.RequestShutdown()
}
