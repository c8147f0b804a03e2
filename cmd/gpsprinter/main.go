// gpsprinter prints the position fixes the GPS daemon publishes, one JSON
// object per line. It is a debugging aid.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"

	"github.com/danielfilipeteixeira24/wintech2022-wiperf/config"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/logging"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/redis"
)

var (
	configPath = flag.String("config", config.DefaultPath, "The wiperf configuration file.")
	count      = flag.Int("n", 0, "Stop after this many prints. Zero prints forever.")
	period     = flag.Duration("period", time.Second, "Time between prints.")
)

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from env")

	c, err := config.Load(*configPath)
	rtx.Must(err, "Could not load the configuration")
	logging.SetLevel(c.ReadLogLevel(config.GpsPrinter))

	gps := redis.NewClient(c.ReadRedisAddr())
	defer gps.Close()
	key := c.ReadGpsShmPath()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()
	enc := json.NewEncoder(os.Stdout)
	t := time.NewTicker(*period)
	defer t.Stop()
	for n := 0; *count == 0 || n < *count; n++ {
		fix, err := gps.GetFix(ctx, key)
		if err != nil {
			logging.Logger.WithError(err).Warn("cannot read fix")
		} else {
			rtx.Must(enc.Encode(fix), "Could not print fix")
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
