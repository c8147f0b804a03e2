// Package receiver implements the data receiver. It binds one socket per
// interface and counts the bytes received on each of them, so that the
// feedback sender can turn the counters into throughput samples.
package receiver

import (
	"context"
	"errors"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"

	"github.com/danielfilipeteixeira24/wintech2022-wiperf/config"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/iface"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/logging"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/metrics"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/netx"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/transfer"
)

const role = "data-receiver"

const (
	// BufferSize is large enough for any UDP payload.
	BufferSize = 65536
	// BatchSize bounds how many queued datagrams a worker reads before it
	// checks for drains and shutdown again.
	BatchSize = 64
	// PollInterval bounds how long a worker waits for data.
	PollInterval = 10 * time.Millisecond
)

// Receiver counts received bytes per interface.
type Receiver struct {
	*transfer.Endpoint

	// Port is the local port of every data socket.
	Port uint16
	// PollInterval overrides the package default when non-zero.
	PollInterval time.Duration

	stopped atomic.Bool
}

// New returns a receiver over table. A nil table is replaced by the one
// built by Configure.
func New(table *iface.Table, port uint16) *Receiver {
	return &Receiver{
		Endpoint: transfer.NewEndpoint(role, table),
		Port:     port,
	}
}

// Configure reads the data-receiver settings.
func (r *Receiver) Configure(c *config.Config) error {
	tbl, err := c.Pairs(config.DataReceiver, config.DataSender)
	if err != nil {
		return err
	}
	r.Table = tbl
	r.Port = c.ReadPort(config.DataReceiver, config.DataReceiverPort)
	return nil
}

// Interfaces returns the table the workers update. The feedback
// sender reads and drains the counters through it.
func (r *Receiver) Interfaces() *iface.Table {
	return r.Table
}

// Run binds the sockets and runs one worker per interface until Stop is
// called or ctx is done. The sockets are closed after every worker exits.
func (r *Receiver) Run(ctx context.Context) error {
	logging.Logger.Debug("receiver: start")
	defer logging.Logger.Debug("receiver: stop")
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
			return r.worker(gctx, name, conn)
		})
	}
	return g.Wait()
}

// Stop sets the receiver stop flag and requests the endpoint shutdown,
// which wakes workers waiting for data.
func (r *Receiver) Stop() {
	r.stopped.Store(true)
	r.RequestShutdown()
}

func (r *Receiver) pollInterval() time.Duration {
	if r.PollInterval > 0 {
		return r.PollInterval
	}
	return PollInterval
}

func (r *Receiver) worker(ctx context.Context, name string, conn *net.UDPConn) error {
	metrics.ActiveWorkers.WithLabelValues(role).Inc()
	defer metrics.ActiveWorkers.WithLabelValues(role).Dec()
	defer transfer.WakeOnDone(ctx, conn)()
	l := logging.Logger.WithFields(log.Fields{"role": role, "iface": name})
	received := metrics.ReceivedBytes.WithLabelValues(name)

	buf := make([]byte, BufferSize)
	for !r.stopped.Load() && ctx.Err() == nil {
		// Drain before accumulating, so bytes read below are never
		// covered by a drain computed before they arrived.
		r.Table.ApplyDrain(name)
		conn.SetReadDeadline(time.Now().Add(r.pollInterval()))
		_, n, err := netx.ReadBatch(conn, buf, BatchSize)
		if n > 0 {
			r.Table.AddBytes(name, uint64(n))
			received.Add(float64(n))
		}
		switch {
		case err == nil, errors.Is(err, os.ErrDeadlineExceeded):
		case errors.Is(err, net.ErrClosed):
			return nil
		default:
			l.WithError(err).Warn("receiver: read failed")
			metrics.ReceiveErrors.WithLabelValues(name, "read").Inc()
		}
	}
	return nil
}
