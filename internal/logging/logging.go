// Package logging builds the broker's structured logger, adapted from the
// teacher's internal/shared/monitoring logger (adred-codev/ws_poc).
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger configured from level/format strings as
// validated by internal/config.Config.
//
// Example:
//
//	logger := logging.New("info", "json")
//	logger.Info().Str("component", "broker").Msg("starting")
func New(level, format string) zerolog.Logger {
	var output io.Writer = os.Stdout

	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)

	if format == "console" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Str("service", "eventbroker").
		Logger()
}
