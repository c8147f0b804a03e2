// Package transfer contains the lifecycle shared by every component that
// owns a set of per-interface UDP sockets: address parsing, socket setup
// and teardown, and the shutdown token workers observe.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/apex/log"
	"github.com/m-lab/go/warnonerror"
	perrors "github.com/pkg/errors"

	"github.com/danielfilipeteixeira24/wintech2022-wiperf/config"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/iface"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/logging"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/netx"
)

// ErrBadAddress is returned by BuildAddress for anything that is not a
// dotted-quad IPv4 literal.
var ErrBadAddress = errors.New("not an IPv4 address")

// Role is the capability every data-plane component implements.
type Role interface {
	// Configure reads the role settings and builds its interface table.
	Configure(c *config.Config) error
	// Run opens the sockets, runs the workers and blocks until they have
	// stopped. Sockets are closed before Run returns.
	Run(ctx context.Context) error
	// Stop asks the workers to terminate. It may be called many times.
	Stop()
}

// Side selects which address of an interface record a socket binds to.
type Side int

// Sides of the data and feedback planes.
const (
	Client Side = iota
	Server
)

func (s Side) addr(r *iface.Record) string {
	if s == Client {
		return r.ClientAddr
	}
	return r.ServerAddr
}

// BuildAddress parses a dotted-quad string and a port into a UDP address.
func BuildAddress(text string, port uint16) (*net.UDPAddr, error) {
	a, err := netip.ParseAddr(text)
	if err != nil || !a.Is4() {
		return nil, fmt.Errorf("%w: %q", ErrBadAddress, text)
	}
	return net.UDPAddrFromAddrPort(netip.AddrPortFrom(a, port)), nil
}

// Endpoint owns the interface table of a role and its shutdown token.
type Endpoint struct {
	// Name identifies the role in logs and metrics.
	Name string
	// Table holds the interfaces of the role.
	Table *iface.Table

	shutdown context.Context
	cancel   context.CancelFunc
}

// NewEndpoint returns an endpoint for the named role.
func NewEndpoint(name string, table *iface.Table) *Endpoint {
	ctx, cancel := context.WithCancel(context.Background())
	if table == nil {
		table = iface.NewTable()
	}
	return &Endpoint{
		Name:     name,
		Table:    table,
		shutdown: ctx,
		cancel:   cancel,
	}
}

// RequestShutdown flips the shutdown token. Workers blocked in a read are
// woken through WakeOnDone. It is safe to call many times and from any
// goroutine, including the one handling signals.
func (e *Endpoint) RequestShutdown() {
	e.cancel()
}

// ShutdownRequested reports whether RequestShutdown has been called.
func (e *Endpoint) ShutdownRequested() bool {
	return e.shutdown.Err() != nil
}

// WithShutdown returns a context that is done when parent is done or when
// RequestShutdown is called. The cancel function must be called when the
// context is no longer used.
func (e *Endpoint) WithShutdown(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	if e.ShutdownRequested() {
		cancel()
	}
	stop := context.AfterFunc(e.shutdown, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// WakeOnDone makes any read blocked on conn return as soon as ctx is done,
// by moving its deadline into the past. The returned function releases the
// hook and must be called when the reader exits.
func WakeOnDone(ctx context.Context, conn *net.UDPConn) func() bool {
	return context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Unix(1, 0))
	})
}

// OpenSockets binds one socket per interface, on the address selected by
// side and the given port. On failure every socket already opened is
// closed and the error is returned.
func (e *Endpoint) OpenSockets(ctx context.Context, side Side, port uint16, reuse bool) error {
	for _, r := range e.Table.Records() {
		r := r
		laddr, err := BuildAddress(side.addr(&r), port)
		if err != nil {
			e.CloseAllSockets()
			return perrors.Wrapf(err, "%s: interface %s", e.Name, r.Name)
		}
		conn, err := netx.ListenUDP(ctx, laddr, reuse)
		if err != nil {
			e.CloseAllSockets()
			return perrors.Wrapf(err, "%s: cannot bind %s", e.Name, laddr)
		}
		e.Table.Update(r.Name, func(rec *iface.Record) { rec.Conn = conn })
		logging.Logger.WithFields(log.Fields{
			"role":  e.Name,
			"iface": r.Name,
			"addr":  laddr.String(),
		}).Info("attaching interface")
	}
	return nil
}

// Conn returns the socket of the named interface, or nil.
func (e *Endpoint) Conn(name string) *net.UDPConn {
	r, found := e.Table.Get(name)
	if !found {
		return nil
	}
	return r.Conn
}

// CloseAllSockets closes every open socket of the table. Handles are
// cleared as they are closed, so calling it again is a no-op.
func (e *Endpoint) CloseAllSockets() {
	e.Table.Each(func(r *iface.Record) {
		if r.Conn == nil {
			return
		}
		warnonerror.Close(r.Conn, e.Name+": cannot close socket of "+r.Name)
		r.Conn = nil
	})
}
