// scaninfo stores the results of a network scan next to the measurements
// of one interface. An external scanner pipes one "ssid,..." line per
// network seen; only the SSIDs listed in scan-ssids are kept.
package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"

	"github.com/danielfilipeteixeira24/wintech2022-wiperf/channelmon"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/config"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/data"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/logging"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/store"
)

var (
	configPath = flag.String("config", config.DefaultPath, "The wiperf configuration file.")
	rat        = flag.String("rat", "", "The interface the scan was made on.")
	begin      = flag.Int64("begin", 0, "Start of the scan, ms since the epoch, exclusive. Defaults to end minus the sampling interval.")
	end        = flag.Int64("end", 0, "End of the scan, ms since the epoch. Defaults to now.")
)

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from env")
	if *rat == "" {
		logging.Logger.Fatal("-rat is required")
	}
	if _, ok := data.ParseRAT(*rat); !ok {
		logging.Logger.WithField("rat", *rat).Warn("not a known radio access technology")
	}

	c, err := config.Load(*configPath)
	rtx.Must(err, "Could not load the configuration")
	logging.SetLevel(c.ReadLogLevel(config.ChannelMonitor))
	db, ok := c.ReadDatabase()
	if !ok {
		logging.Logger.Fatal("no database configured")
	}
	pg, err := store.OpenPostgres(db.DSN())
	rtx.Must(err, "Could not open the database")
	defer pg.Close()

	to := time.Now()
	if *end != 0 {
		to = time.UnixMilli(*end)
	}
	from := to.Add(-c.ReadInterval(config.ChannelMonitor, "sampling-interval", config.DefaultSamplingInterval))
	if *begin != 0 {
		from = time.UnixMilli(*begin)
	}

	var lines []string
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	rtx.Must(sc.Err(), "Could not read the scan results")
	info := channelmon.EncodeScanInfo(lines, c.ReadSsids(config.ChannelMonitor))

	n, err := pg.UpdateScanInfo(context.Background(), *rat, info, from, to)
	rtx.Must(err, "Could not store the scan results")
	logging.Logger.WithField("rows", n).Info("scan info stored")
}
