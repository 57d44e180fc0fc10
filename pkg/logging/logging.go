// Package logging builds the zerolog loggers used across the cli and the migrate packages
package logging

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// New : console logger, debug level when verbose
func New(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime}).
		Level(level).
		With().
		Timestamp().
		Logger()
}
