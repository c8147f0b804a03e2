// dreceiver counts the UDP traffic arriving on the data interfaces and
// reports the throughput of every feedback interval back to dsender.
package main

import (
	"context"
	"flag"
	"net"
	"os/signal"
	"syscall"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"

	"github.com/danielfilipeteixeira24/wintech2022-wiperf/config"
	fbsender "github.com/danielfilipeteixeira24/wintech2022-wiperf/feedback/sender"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/logging"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/metrics"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/platformx"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/receiver"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/transfer"
)

var (
	configPath  = flag.String("config", config.DefaultPath, "The wiperf configuration file.")
	logFile     = flag.String("logfile", "/var/log/dreceiver.log", "Mirror the log into this file. Empty logs to stderr only.")
	metricsAddr = flag.String("metrics.address", ":9991", "Serve prometheus metrics on this address.")

	// Context for the whole program.
	ctx, cancel = context.WithCancel(context.Background())
)

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from env")
	defer cancel()

	c, err := config.Load(*configPath)
	rtx.Must(err, "Could not load the configuration")
	logging.SetLevel(c.ReadLogLevel(config.DataReceiver))
	logging.SetFile(*logFile, 1)
	defer logging.Close()
	logging.Logger.Info("Starting dreceiver")
	platformx.WarnIfNotFullySupported()

	ln, err := net.Listen("tcp", *metricsAddr)
	rtx.Must(err, "Could not listen for metrics")
	srv := metrics.Serve(ln)
	defer srv.Close()

	data := receiver.New(nil, config.DataReceiverPort)
	rtx.Must(data.Configure(c), "Could not configure the data receiver")

	// The feedback sender drains the counters of the data receiver.
	fb := fbsender.New(data.Interfaces(), nil, config.FeedbackSenderPort, config.FeedbackReceiverPort)
	rtx.Must(fb.Configure(c), "Could not configure the feedback sender")

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()
	err = transfer.RunAll(sigCtx, data, fb)
	rtx.Must(err, "dreceiver failed")
	logging.Logger.Info("dreceiver stopped")
}
