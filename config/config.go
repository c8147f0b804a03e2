// Package config reads the wiperf configuration file.
//
// The file is made of [section] headers followed by "key = value" lines;
// lines starting with '#' are comments. Every reader falls back to a
// documented default, with a warning, when a value is missing or malformed.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gopkg.in/ini.v1"

	"github.com/danielfilipeteixeira24/wintech2022-wiperf/logging"
	"github.com/danielfilipeteixeira24/wintech2022-wiperf/metrics"
)

// DefaultPath is where the processes look for their configuration.
const DefaultPath = "/etc/wiperf.conf"

// Section names.
const (
	DataSender       = "data-sender"
	DataReceiver     = "data-receiver"
	FeedbackSender   = "feedback-sender"
	FeedbackReceiver = "feedback-receiver"
	ChannelMonitor   = "channel-monitor"
	GpsInfo          = "gpsinfo"
	GpsPrinter       = "gps-printer"
	Database         = "database"
)

// Default ports. The data plane and the feedback plane use distinct pairs.
const (
	DataSenderPort       = 44443
	DataReceiverPort     = 44444
	FeedbackSenderPort   = 44445
	FeedbackReceiverPort = 44446
)

// Port bounds; the registered port range.
const (
	MinPort = 1024
	MaxPort = 49151
)

// Other defaults.
const (
	DefaultIfaces           = "lo 127.0.0.1"
	DefaultSsids            = "lo"
	DefaultLogLevel         = logging.DefaultLevel
	DefaultFeedbackInterval = 100 * time.Millisecond
	DefaultSamplingInterval = 100 * time.Millisecond
	DefaultDecisionLevel    = 0
	DefaultDecisionSeed     = 123123123
	DefaultDecisionPeriod   = 333 * time.Millisecond
	DefaultGpsShmPath       = "/wiperf-gpsinfo"
	DefaultRedisAddr        = "localhost:6379"
)

// Config is a parsed configuration file.
type Config struct {
	file *ini.File
}

// loadOptions make the reader lenient: lines it cannot parse are skipped,
// so the keys they held fall back to their defaults.
var loadOptions = ini.LoadOptions{
	Loose:                   true,
	SkipUnrecognizableLines: true,
}

// Load reads and parses the named file. A missing file is not an error:
// a warning is logged and every reader yields its default.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logging.Logger.WithField("path", path).Warn("config: file not found, will use defaults")
		return Empty(), nil
	}
	f, err := ini.LoadSources(loadOptions, path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot load config %q", path)
	}
	return &Config{file: f}, nil
}

// Parse parses configuration text.
func Parse(data []byte) (*Config, error) {
	f, err := ini.LoadSources(loadOptions, data)
	if err != nil {
		return nil, errors.Wrap(err, "cannot parse config")
	}
	return &Config{file: f}, nil
}

// Empty returns a configuration where every reader yields its default.
func Empty() *Config {
	return &Config{file: ini.Empty()}
}

// Value returns the raw value of key in section.
func (c *Config) Value(section, key string) (string, bool) {
	sec, err := c.file.GetSection(section)
	if err != nil || !sec.HasKey(key) {
		return "", false
	}
	return strings.TrimSpace(sec.Key(key).String()), true
}

func fallback(section, key string, def interface{}, reason string) {
	metrics.ConfigFallbacks.WithLabelValues(section, key).Inc()
	logging.Logger.WithFields(log.Fields{
		"section": section,
		"key":     key,
		"default": def,
	}).Warn("config: " + reason + ", using default")
}

func (c *Config) readInt(section, key string, def int, valid func(int) bool) int {
	s, found := c.Value(section, key)
	if !found {
		fallback(section, key, def, "missing value")
		return def
	}
	v, err := cast.ToIntE(s)
	if err != nil {
		fallback(section, key, def, fmt.Sprintf("malformed value %q", s))
		return def
	}
	if valid != nil && !valid(v) {
		fallback(section, key, def, fmt.Sprintf("invalid value %d", v))
		return def
	}
	return v
}

// ReadPort returns the port of section, which must be within the
// registered range.
func (c *Config) ReadPort(section string, def uint16) uint16 {
	v := c.readInt(section, "port", int(def), func(p int) bool {
		return p >= MinPort && p <= MaxPort
	})
	return uint16(v)
}

// ReadLogLevel returns the log level of section, 0 to 4.
func (c *Config) ReadLogLevel(section string) int {
	return c.readInt(section, "log-level", DefaultLogLevel, func(l int) bool {
		return l >= logging.LevelFatal && l <= logging.LevelVerbose
	})
}

// ReadInterval returns a positive duration expressed in milliseconds.
func (c *Config) ReadInterval(section, key string, def time.Duration) time.Duration {
	ms := c.readInt(section, key, int(def/time.Millisecond), func(v int) bool {
		return v > 0
	})
	return time.Duration(ms) * time.Millisecond
}

// ReadDecisionLevel returns the data sender policy: 0 broadcasts, anything
// above selects a single interface at a time.
func (c *Config) ReadDecisionLevel() int {
	return c.readInt(DataSender, "decision-level", DefaultDecisionLevel, func(v int) bool {
		return v >= 0
	})
}

// ReadDecisionSeed returns the seed of the single interface policy.
func (c *Config) ReadDecisionSeed() int64 {
	s, found := c.Value(DataSender, "decision-seed")
	if !found {
		return DefaultDecisionSeed
	}
	v, err := cast.ToInt64E(s)
	if err != nil {
		fallback(DataSender, "decision-seed", DefaultDecisionSeed, fmt.Sprintf("malformed value %q", s))
		return DefaultDecisionSeed
	}
	return v
}

// ReadDecisionPeriod returns how often the single interface policy picks
// a new interface.
func (c *Config) ReadDecisionPeriod() time.Duration {
	if _, found := c.Value(DataSender, "decision-interval"); !found {
		return DefaultDecisionPeriod
	}
	return c.ReadInterval(DataSender, "decision-interval", DefaultDecisionPeriod)
}

// ReadGpsShmPath returns the handle of the position source.
func (c *Config) ReadGpsShmPath() string {
	return c.readString(GpsInfo, "shm-path", DefaultGpsShmPath)
}

// ReadRedisAddr returns the address of the store publishing position fixes.
func (c *Config) ReadRedisAddr() string {
	if s, found := c.Value(GpsInfo, "redis-addr"); found && s != "" {
		return s
	}
	return DefaultRedisAddr
}

func (c *Config) readString(section, key, def string) string {
	s, found := c.Value(section, key)
	if !found || s == "" {
		fallback(section, key, def, "missing value")
		return def
	}
	return s
}

// ReadSsids returns the comma separated scan-ssids list of section.
func (c *Config) ReadSsids(section string) []string {
	s := c.readString(section, "scan-ssids", DefaultSsids)
	var ssids []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			ssids = append(ssids, v)
		}
	}
	if len(ssids) == 0 {
		fallback(section, "scan-ssids", DefaultSsids, "empty list")
		return []string{DefaultSsids}
	}
	return ssids
}

// DB holds the connection settings of the persistence database.
type DB struct {
	Name     string
	Host     string
	Port     int
	User     string
	Password string
}

// quoteDSN quotes a libpq keyword value, escaping quotes and backslashes.
func quoteDSN(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// DSN returns a libpq style connection string.
func (d DB) DSN() string {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s",
		quoteDSN(d.Host), quoteDSN(d.User), quoteDSN(d.Password), quoteDSN(d.Name))
	if d.Port != 0 {
		dsn += fmt.Sprintf(" port=%d", d.Port)
	}
	return dsn
}

// ReadDatabase returns the database settings. The boolean is false when the
// section names no database, in which case nothing should be persisted there.
func (c *Config) ReadDatabase() (DB, bool) {
	name, found := c.Value(Database, "db-name")
	if !found || name == "" {
		logging.Logger.Warn("config: no database configured")
		return DB{}, false
	}
	db := DB{
		Name:     name,
		Host:     c.readString(Database, "host", "localhost"),
		User:     c.readString(Database, "user", "postgres"),
		Password: "",
	}
	db.Password, _ = c.Value(Database, "password")
	if _, found := c.Value(Database, "db-port"); found {
		db.Port = c.readInt(Database, "db-port", 5432, func(p int) bool { return p > 0 && p < 65536 })
	}
	return db, true
}

func validIPv4(s string) bool {
	a, err := netip.ParseAddr(s)
	return err == nil && a.Is4()
}
