// Package logging contains the structured logger shared by every wiperf
// process, plus helpers to set its level and mirror it into a log file.
package logging

import (
	"io"
	golog "log"
	"net/http"
	"os"
	"sync"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/gorilla/handlers"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Configured log levels, as written in the config file.
const (
	LevelFatal = iota
	LevelError
	LevelWarn
	LevelMsg
	LevelVerbose
)

// DefaultLevel is used when the config file has no valid log-level.
const DefaultLevel = LevelError

// Logger is a logger that logs messages on the standard error
// in a structured JSON format, to simplify processing.
var Logger = log.Logger{
	Handler: json.New(os.Stderr),
	Level:   log.ErrorLevel,
}

var (
	mu   sync.Mutex
	file *lumberjack.Logger
)

// ApexLevel maps a configured level to the apex level. Out of range values
// map to the default.
func ApexLevel(level int) log.Level {
	switch level {
	case LevelFatal:
		return log.FatalLevel
	case LevelError:
		return log.ErrorLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelMsg:
		return log.InfoLevel
	case LevelVerbose:
		return log.DebugLevel
	}
	return log.ErrorLevel
}

// SetLevel sets the level of Logger from a configured value.
func SetLevel(level int) {
	Logger.Level = ApexLevel(level)
}

// SetFile mirrors every log line into path, rotating it at maxMegabytes.
// Passing an empty path restores logging to the standard error only.
func SetFile(path string, maxMegabytes int) {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
		file = nil
	}
	if path == "" {
		Logger.Handler = json.New(os.Stderr)
		return
	}
	file = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxMegabytes,
		MaxBackups: 3,
	}
	Logger.Handler = json.New(io.MultiWriter(os.Stderr, file))
}

// Close flushes and closes the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	Logger.Handler = json.New(os.Stderr)
	return err
}

// MakeAccessLogHandler wraps |handler| with another handler that logs
// access to each resource on the standard output.
func MakeAccessLogHandler(handler http.Handler) http.Handler {
	return handlers.LoggingHandler(golog.Writer(), handler)
}
