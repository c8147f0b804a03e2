package netx

import (
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/danielfilipeteixeira24/wintech2022-wiperf/logging"
)

func reuseControl(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		// Note: casting to int is safe because a socket is int on Unix
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if serr != nil {
			logging.Logger.WithError(serr).Warn("SO_REUSEADDR failed")
			return
		}
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		if serr != nil {
			logging.Logger.WithError(serr).Warn("SO_REUSEPORT failed")
		}
	})
	if err != nil {
		return err
	}
	return serr
}
