//go:build !unix

package netx

import "net"

// ReadBatch reads a single datagram; batching needs non-blocking reads on
// the raw socket, which this platform does not expose.
func ReadBatch(conn *net.UDPConn, buf []byte, max int) (count, total int, err error) {
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		return 0, 0, err
	}
	return 1, n, nil
}
