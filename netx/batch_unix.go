//go:build unix

package netx

import (
	"net"

	"golang.org/x/sys/unix"
)

// ReadBatch waits until conn is readable or its read deadline expires,
// then reads up to max queued datagrams without blocking. It returns the
// number of datagrams and the sum of their sizes.
func ReadBatch(conn *net.UDPConn, buf []byte, max int) (count, total int, err error) {
	rc, err := conn.SyscallConn()
	if err != nil {
		return 0, 0, err
	}
	var rerr error
	err = rc.Read(func(fd uintptr) bool {
		for count < max {
			n, _, e := unix.Recvfrom(int(fd), buf, unix.MSG_DONTWAIT)
			if e == unix.EAGAIN || e == unix.EWOULDBLOCK {
				// Nothing queued yet: go back to waiting for readability.
				return count > 0
			}
			if e == unix.EINTR {
				continue
			}
			if e != nil {
				rerr = e
				return true
			}
			count++
			total += n
		}
		return true
	})
	if err != nil {
		return count, total, err
	}
	return count, total, rerr
}
