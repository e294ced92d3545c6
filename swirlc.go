// Package swirlc defines the global logger shared by every component of the
// runtime.
//
// swirlc is the per-location runtime library generated choreographic
// workflow code links against. It is disabled by default and the level can
// be increased through an environment variable:
//
//   SWIRLC_LOG=trace go test ./...
//   SWIRLC_LOG=info  go test ./...
//
package swirlc

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// EnvLogLevel is the name of the environment variable to change the logging
// level.
const EnvLogLevel = "SWIRLC_LOG"

var (
	promWarns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swirlc_log_warns",
		Help: "total number of warnings from the log",
	})

	promErrs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swirlc_log_errs",
		Help: "total number of errors from the log",
	})
)

const defaultLevel = zerolog.NoLevel

// levelByName maps SWIRLC_LOG's accepted values to zerolog levels. A name
// outside this table (anything but unset/empty) is treated as the noisiest
// level, on the assumption a typo'd override should fail loud rather than
// silently fall back to the default of disabled.
var levelByName = map[string]zerolog.Level{
	"error": zerolog.ErrorLevel,
	"warn":  zerolog.WarnLevel,
	"info":  zerolog.InfoLevel,
	"debug": zerolog.DebugLevel,
	"trace": zerolog.TraceLevel,
}

func init() {
	lvl := os.Getenv(EnvLogLevel)

	level, known := levelByName[lvl]
	switch {
	case lvl == "":
		level = defaultLevel
	case !known:
		level = zerolog.TraceLevel
	}

	Logger = Logger.Level(level)
}

var logout = zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.RFC3339,
}

// Logger is a globally available logger instance. By default its level is
// zerolog.NoLevel, which filters out every leveled message, errors included;
// the level can be lowered via EnvLogLevel.
var Logger = zerolog.New(logout).Level(defaultLevel).
	With().Timestamp().Logger().
	With().Caller().Logger().
	Hook(promHook{})

// promHook reports warnings and errors to Prometheus. The log level must be
// at least Warn for the counters to be incremented.
//
// - implements zerolog.Hook
type promHook struct{}

// Run implements zerolog.Hook.
func (promHook) Run(e *zerolog.Event, level zerolog.Level, message string) {
	switch level {
	case zerolog.WarnLevel:
		promWarns.Inc()
	case zerolog.ErrorLevel:
		promErrs.Inc()
	}
}

// Abort is the library's single process-exit path. It logs err through
// Logger at error level (the Prometheus hook above counts it when the level
// admits errors), writes the fatal-condition prelude to stderr, and exits
// with status 1. package fatal delegates to it; the cmd/swirlc entrypoint
// does not, and exits with status 1 on its own when the app returns an
// error.
func Abort(location string, err error) {
	Logger.Error().Str("location", location).Err(err).Msg("fatal condition")
	fmt.Fprintf(os.Stderr, "[%s] [%s] >>> %+v\n", time.Now().Format("15:04:05"), location, err)
	os.Exit(1)
}
