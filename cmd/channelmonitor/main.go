// channelmonitor samples the link counters of the radio interfaces and
// stores them next to the throughput measurements.
package main

import (
	"context"
	"flag"
	"net"
	"os/signal"
	"syscall"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"

	"github.com/danielfilipeteixeira24/wintech2022-wiperf/channelmon"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/config"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/logging"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/metrics"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/platformx"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/store"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/transfer"
)

var (
	configPath  = flag.String("config", config.DefaultPath, "The wiperf configuration file.")
	logFile     = flag.String("logfile", "/var/log/channelmonitor.log", "Mirror the log into this file. Empty logs to stderr only.")
	dataDir     = flag.String("datadir", "", "Also archive the samples as JSON lines under this directory.")
	procPath    = flag.String("proc", channelmon.DefaultProcPath, "Read the interface counters under this proc mount.")
	metricsAddr = flag.String("metrics.address", ":9992", "Serve prometheus metrics on this address.")

	// Context for the whole program.
	ctx, cancel = context.WithCancel(context.Background())
)

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from env")
	defer cancel()

	c, err := config.Load(*configPath)
	rtx.Must(err, "Could not load the configuration")
	logging.SetLevel(c.ReadLogLevel(config.ChannelMonitor))
	logging.SetFile(*logFile, 1)
	defer logging.Close()
	logging.Logger.Info("Starting channelmonitor")
	platformx.WarnIfNotFullySupported()

	ln, err := net.Listen("tcp", *metricsAddr)
	rtx.Must(err, "Could not listen for metrics")
	srv := metrics.Serve(ln)
	defer srv.Close()

	sink, err := store.Open(c, *dataDir, "channel")
	rtx.Must(err, "Could not open the measurement sink")
	defer sink.Close()

	mon := channelmon.New(nil, sink)
	rtx.Must(mon.Configure(c), "Could not configure the channel monitor")
	mon.ProcPath = *procPath

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()
	rtx.Must(transfer.RunAll(sigCtx, mon), "channelmonitor failed")
	logging.Logger.Info("channelmonitor stopped")
}
