// Package sender implements the data sender, which saturates the data
// sockets with filler datagrams, either on every interface at once or on
// one interface at a time.
package sender

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"

	"github.com/danielfilipeteixeira24/wintech2022-wiperf/config"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/iface"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/logging"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/metrics"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/transfer"
)

const role = "data-sender"

// PayloadSize is the default datagram payload: the largest UDP payload
// over IPv4, minus one byte.
const PayloadSize = 65506

// Broadcast is the decision level that sends on every interface. Any
// higher level sends on one interface at a time.
const Broadcast = 0

// errorLogEvery limits how often a worker logs repeated send errors.
const errorLogEvery = 1000

// Sender transmits filler datagrams to the data receiver.
type Sender struct {
	*transfer.Endpoint

	// Port is the local port; PeerPort is the receiver port.
	Port     uint16
	PeerPort uint16

	DecisionLevel  int
	DecisionSeed   int64
	DecisionPeriod time.Duration
	PayloadSize    int
}

// New returns a broadcast sender over table.
func New(table *iface.Table, port, peerPort uint16) *Sender {
	return &Sender{
		Endpoint:       transfer.NewEndpoint(role, table),
		Port:           port,
		PeerPort:       peerPort,
		DecisionLevel:  Broadcast,
		DecisionSeed:   config.DefaultDecisionSeed,
		DecisionPeriod: config.DefaultDecisionPeriod,
		PayloadSize:    PayloadSize,
	}
}

// Configure reads the data-sender settings.
func (s *Sender) Configure(c *config.Config) error {
	tbl, err := c.Pairs(config.DataReceiver, config.DataSender)
	if err != nil {
		return err
	}
	s.Table = tbl
	s.Port = c.ReadPort(config.DataSender, config.DataSenderPort)
	s.PeerPort = c.ReadPort(config.DataReceiver, config.DataReceiverPort)
	s.DecisionLevel = c.ReadDecisionLevel()
	s.DecisionSeed = c.ReadDecisionSeed()
	s.DecisionPeriod = c.ReadDecisionPeriod()
	return nil
}

// Payload returns a printable filler payload of n bytes.
func Payload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(((i * 101) % (122 - 33)) + 33)
	}
	return data
}

type target struct {
	name  string
	conn  *net.UDPConn
	raddr *net.UDPAddr
}

func (s *Sender) targets() ([]target, error) {
	var out []target
	for _, r := range s.Table.Records() {
		raddr, err := transfer.BuildAddress(r.ServerAddr, s.PeerPort)
		if err != nil {
			return nil, err
		}
		out = append(out, target{name: r.Name, conn: r.Conn, raddr: raddr})
	}
	return out, nil
}

// Run binds the sockets and sends until Stop is called or ctx is done.
func (s *Sender) Run(ctx context.Context) error {
	logging.Logger.Debug("sender: start")
	defer logging.Logger.Debug("sender: stop")
	ctx, cancel := s.WithShutdown(ctx)
	defer cancel()
	if ctx.Err() != nil {
		return nil
	}

	if err := s.OpenSockets(ctx, transfer.Client, s.Port, true); err != nil {
		return err
	}
	defer s.CloseAllSockets()
	targets, err := s.targets()
	if err != nil {
		return err
	}
	payload := Payload(s.PayloadSize)

	g, gctx := errgroup.WithContext(ctx)
	if s.DecisionLevel == Broadcast {
		for _, t := range targets {
			t := t
			g.Go(func() error {
				s.broadcast(gctx, t, payload)
				return nil
			})
		}
	} else {
		g.Go(func() error {
			s.single(gctx, targets, payload)
			return nil
		})
	}
	return g.Wait()
}

// Stop asks every worker to terminate.
func (s *Sender) Stop() {
	s.RequestShutdown()
}

// wakeWriter unblocks a write waiting for socket buffer space once ctx is
// done.
func wakeWriter(ctx context.Context, conn *net.UDPConn) func() bool {
	return context.AfterFunc(ctx, func() {
		conn.SetWriteDeadline(time.Unix(1, 0))
	})
}

func (s *Sender) broadcast(ctx context.Context, t target, payload []byte) {
	metrics.ActiveWorkers.WithLabelValues(role).Inc()
	defer metrics.ActiveWorkers.WithLabelValues(role).Dec()
	defer wakeWriter(ctx, t.conn)()
	w := newWriter(t)
	for ctx.Err() == nil {
		if !w.send(payload) {
			return
		}
	}
}

func (s *Sender) single(ctx context.Context, targets []target, payload []byte) {
	if len(targets) == 0 {
		return
	}
	metrics.ActiveWorkers.WithLabelValues(role).Inc()
	defer metrics.ActiveWorkers.WithLabelValues(role).Dec()
	for _, t := range targets {
		defer wakeWriter(ctx, t.conn)()
	}
	writers := make([]*writer, len(targets))
	for i, t := range targets {
		writers[i] = newWriter(t)
	}
	ch := NewChooser(s.DecisionSeed, len(targets))
	ticker := time.NewTicker(s.DecisionPeriod)
	defer ticker.Stop()

	cur := writers[ch.Next()]
	logging.Logger.WithField("iface", cur.name).Debug("sender: selected interface")
	for ctx.Err() == nil {
		select {
		case <-ticker.C:
			cur = writers[ch.Next()]
			logging.Logger.WithField("iface", cur.name).Debug("sender: selected interface")
		default:
		}
		if !cur.send(payload) {
			return
		}
	}
}

// writer sends on one interface and keeps its error accounting.
type writer struct {
	target
	failures int
	l        *log.Entry
}

func newWriter(t target) *writer {
	return &writer{
		target: t,
		l:      logging.Logger.WithFields(log.Fields{"role": role, "iface": t.name}),
	}
}

// send transmits one datagram. It returns false when the socket can no
// longer be used, i.e. it was closed or woken for shutdown.
func (w *writer) send(payload []byte) bool {
	n, err := w.conn.WriteToUDP(payload, w.raddr)
	if err == nil {
		metrics.SentBytes.WithLabelValues(w.name).Add(float64(n))
		return true
	}
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, net.ErrClosed):
		return false
	case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.ENOBUFS):
		metrics.SendErrors.WithLabelValues(w.name, "would-block").Inc()
		return true
	}
	metrics.SendErrors.WithLabelValues(w.name, "send").Inc()
	if w.failures%errorLogEvery == 0 {
		w.l.WithError(err).WithField("count", w.failures+1).Warn("sender: send failed")
	}
	w.failures++
	return true
}
