// dsender floods the data interfaces with UDP traffic and records the
// throughput the remote dreceiver reports back over the feedback channel.
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
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/feedback/receiver"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/logging"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/metrics"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/platformx"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/position"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/redis"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/sender"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/store"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/transfer"
)

var (
	configPath  = flag.String("config", config.DefaultPath, "The wiperf configuration file.")
	logFile     = flag.String("logfile", "/var/log/dsender.log", "Mirror the log into this file. Empty logs to stderr only.")
	dataDir     = flag.String("datadir", "", "Also archive the measurements as JSON lines under this directory.")
	metricsAddr = flag.String("metrics.address", ":9990", "Serve prometheus metrics on this address.")

	// Context for the whole program.
	ctx, cancel = context.WithCancel(context.Background())
)

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from env")
	defer cancel()

	c, err := config.Load(*configPath)
	rtx.Must(err, "Could not load the configuration")
	logging.SetLevel(c.ReadLogLevel(config.DataSender))
	logging.SetFile(*logFile, 1)
	defer logging.Close()
	logging.Logger.Info("Starting dsender")
	platformx.WarnIfNotFullySupported()

	ln, err := net.Listen("tcp", *metricsAddr)
	rtx.Must(err, "Could not listen for metrics")
	srv := metrics.Serve(ln)
	defer srv.Close()

	data := sender.New(nil, config.DataSenderPort, config.DataReceiverPort)
	rtx.Must(data.Configure(c), "Could not configure the data sender")

	sink, err := store.Open(c, *dataDir, "feedback")
	rtx.Must(err, "Could not open the measurement sink")
	defer sink.Close()

	gps := redis.NewClient(c.ReadRedisAddr())
	defer gps.Close()
	fb := receiver.New(nil, nil, config.FeedbackReceiverPort, position.NewRedis(gps, c.ReadGpsShmPath()), sink)
	rtx.Must(fb.Configure(c), "Could not configure the feedback receiver")

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()
	err = transfer.RunAll(sigCtx, data, fb)
	rtx.Must(err, "dsender failed")
	logging.Logger.Info("dsender stopped")
}
