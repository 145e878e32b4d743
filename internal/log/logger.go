package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const service = "starterkit-api"

func New(environment string) zerolog.Logger {
	return NewWithWriter(environment, os.Stdout)
}

// NewWithWriter logs JSON lines in production and human-readable lines elsewhere.
func NewWithWriter(environment string, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	writer := out
	if environment != "production" {
		writer = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(writer).With().
		Timestamp().
		Str("service", service).
		Str("env", environment).
		Logger()

	if environment == "production" {
		return logger.Level(zerolog.InfoLevel)
	}
	return logger.Level(zerolog.DebugLevel)
}

// Bootstrap is for failures before the environment is known: JSON lines, no
// level filter.
func Bootstrap(out io.Writer) zerolog.Logger {
	return zerolog.New(out).With().
		Timestamp().
		Str("service", service).
		Logger()
}
