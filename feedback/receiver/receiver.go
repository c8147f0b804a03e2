// Package receiver implements the feedback receiver. It decodes the
// feedback reports, attaches the current position fix to every sample and
// hands the resulting measurements to a sink.
package receiver

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"

	"github.com/danielfilipeteixeira24/wintech2022-wiperf/config"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/data"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/feedback/report"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/iface"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/logging"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/metrics"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/position"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/store"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/transfer"
)

const role = "feedback-receiver"

// Receiver listens for feedback reports.
type Receiver struct {
	*transfer.Endpoint

	// Port is the local port of the feedback sockets.
	Port uint16
	// Interval is the feedback interval, used to derive bit counts.
	Interval time.Duration
	// Names maps wire indices to data interface names.
	Names []string

	Position position.Provider
	Sink     store.Sink
}

// New returns a feedback receiver listening on the interfaces of table.
func New(table *iface.Table, names []string, port uint16, pos position.Provider, sink store.Sink) *Receiver {
	return &Receiver{
		Endpoint: transfer.NewEndpoint(role, table),
		Port:     port,
		Interval: config.DefaultFeedbackInterval,
		Names:    names,
		Position: pos,
		Sink:     sink,
	}
}

// Configure reads the feedback-receiver settings.
func (r *Receiver) Configure(c *config.Config) error {
	tbl, err := c.Pairs(config.FeedbackReceiver, config.FeedbackSender)
	if err != nil {
		return err
	}
	r.Table = tbl
	r.Port = c.ReadPort(config.FeedbackReceiver, config.FeedbackReceiverPort)
	r.Interval = c.ReadInterval(config.FeedbackReceiver, "feedback-interval", config.DefaultFeedbackInterval)
	r.Names = c.ReadIfnames(config.DataSender)
	return nil
}

// Records decodes a report and returns one measurement per present slot,
// with fix attached. Malformed reports, including reports carrying an
// index with no configured name, yield an error and no records.
func (r *Receiver) Records(b []byte, fix data.Fix) ([]data.Measurement, error) {
	rep, err := report.Decode(b)
	if err != nil {
		return nil, err
	}
	if err := rep.Validate(len(r.Names)); err != nil {
		return nil, err
	}
	var out []data.Measurement
	for _, e := range rep.Entries {
		for _, s := range e.Samples {
			if s.Absent() {
				continue
			}
			m := data.Measurement{
				SchemaVersion:   data.CurrentSchemaVersion,
				TimestampMillis: s.Timestamp,
				RAT:             r.Names[e.Index],
				Throughput:      s.Throughput,
				NumBits:         data.NumBits(s.Throughput, r.Interval),
			}
			fix.Apply(&m)
			out = append(out, m)
		}
	}
	return out, nil
}

// Run binds the feedback sockets and processes reports until Stop is
// called or ctx is done.
func (r *Receiver) Run(ctx context.Context) error {
	logging.Logger.Debug("feedback receiver: start")
	defer logging.Logger.Debug("feedback receiver: stop")
	ctx, cancel := r.WithShutdown(ctx)
	defer cancel()
	if ctx.Err() != nil {
		return nil
	}
	if err := r.OpenSockets(ctx, transfer.Server, r.Port, false); err != nil {
		return err
	}
	defer r.CloseAllSockets()

	g, gctx := errgroup.WithContext(ctx)
	for _, rec := range r.Table.Records() {
		name, conn := rec.Name, rec.Conn
		g.Go(func() error {
			r.worker(gctx, name, conn)
			return nil
		})
	}
	return g.Wait()
}

// Stop asks the receiver to terminate.
func (r *Receiver) Stop() {
	r.RequestShutdown()
}

func (r *Receiver) worker(ctx context.Context, name string, conn *net.UDPConn) {
	metrics.ActiveWorkers.WithLabelValues(role).Inc()
	defer metrics.ActiveWorkers.WithLabelValues(role).Dec()
	defer transfer.WakeOnDone(ctx, conn)()
	l := logging.Logger.WithFields(log.Fields{"role": role, "iface": name})

	buf := make([]byte, report.MaxDatagram)
	for ctx.Err() == nil {
		// No timeout: only a report or the shutdown wake ends the read.
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			if !errors.Is(err, os.ErrDeadlineExceeded) {
				l.WithError(err).Warn("feedback receiver: read failed")
				metrics.FeedbackReports.WithLabelValues("received", "read-error").Inc()
			}
			continue
		}
		r.handle(ctx, buf[:n], l)
	}
}

func (r *Receiver) handle(ctx context.Context, b []byte, l *log.Entry) {
	fix, err := r.Position.Current(ctx)
	if err != nil {
		l.WithError(err).Warn("feedback receiver: no current position, using last known")
	}
	records, err := r.Records(b, fix)
	if err != nil {
		l.WithError(err).WithField("size", len(b)).Warn("feedback receiver: dropping malformed report")
		metrics.FeedbackReports.WithLabelValues("received", "malformed").Inc()
		return
	}
	metrics.FeedbackReports.WithLabelValues("received", "ok").Inc()
	if len(records) == 0 {
		return
	}
	if err := r.Sink.Store(ctx, records); err != nil {
		l.WithError(err).Warn("feedback receiver: cannot store records")
	}
}
