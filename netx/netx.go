// Package netx extends the functionality of the net package with the UDP
// socket options the data plane needs.
package netx

import (
	"context"
	"net"
)

// ListenUDP binds a UDP socket to laddr. When reuse is true the address and
// port reuse options are set before binding, so that several processes, or
// a restarted one, can bind the same interface address.
func ListenUDP(ctx context.Context, laddr *net.UDPAddr, reuse bool) (*net.UDPConn, error) {
	lc := net.ListenConfig{}
	if reuse {
		lc.Control = reuseControl
	}
	pc, err := lc.ListenPacket(ctx, "udp4", laddr.String())
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}
