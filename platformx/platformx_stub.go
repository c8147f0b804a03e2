//go:build !linux

package platformx

import (
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/logging"
)

func maybeEmitWarning() {
	logging.Logger.Warn("This platform is not officially supported. Sockets cannot share ports and the interface counters are unavailable.")
}
