// Package logging provides structured, component-scoped logging for the
// realtime core using zerolog.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Log is the process-wide base logger. Component loggers derive from it.
var Log zerolog.Logger

func init() {
	Log = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// Initialize configures the global logger's level and output format.
//
// level accepts zerolog level names ("debug", "info", "warn", "error").
// When pretty is true, output is a human-readable console writer; otherwise
// structured JSON is written to stderr.
func Initialize(level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if pretty {
		Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
		return
	}
	Log = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// Auth returns the session-manager component logger.
func Auth() zerolog.Logger { return Log.With().Str("component", "auth").Logger() }

// Dispatch returns the query-dispatcher component logger.
func Dispatch() zerolog.Logger { return Log.With().Str("component", "dispatch").Logger() }

// Tick returns the tick-engine component logger.
func Tick() zerolog.Logger { return Log.With().Str("component", "tick").Logger() }

// Fanout returns the subscription fan-out component logger.
func Fanout() zerolog.Logger { return Log.With().Str("component", "fanout").Logger() }

// Notify returns the notification-bridge component logger.
func Notify() zerolog.Logger { return Log.With().Str("component", "notify").Logger() }

// Transport returns the HTTP/WebSocket transport component logger.
func Transport() zerolog.Logger { return Log.With().Str("component", "transport").Logger() }

// Store returns the store-adapter component logger.
func Store() zerolog.Logger { return Log.With().Str("component", "store").Logger() }
