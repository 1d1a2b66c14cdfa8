// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup installs the global logger. DEV gets a human readable console writer
// at debug level, every other environment gets JSON at info level.
func Setup(env string) {
	SetupWriter(env, os.Stderr)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(env string, w io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339
	if env == "DEV" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger().
			Level(zerolog.DebugLevel)
		return
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger().Level(zerolog.InfoLevel)
}
