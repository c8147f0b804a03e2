//go:build !linux
// +build !linux

package netx

import (
	"syscall"

	"github.com/danielfilipeteixeira24/wintech2022-wiperf/logging"
)

// reuseControl does nothing on platforms without SO_REUSEPORT support.
func reuseControl(network, address string, c syscall.RawConn) error {
	logging.Logger.Debug("address reuse not available on this platform")
	return nil
}
