// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures zerolog for the process.
func Setup(environment string) zerolog.Logger {
	return SetupWithWriter(environment, nil)
}

// SetupWithWriter configures zerolog with an additional writer, such as the
// remote console. The extra writer gets the same human-readable lines as
// stdout, without colour.
func SetupWithWriter(environment string, additionalWriter io.Writer) zerolog.Logger {
	return newLogger(environment, os.Stdout, additionalWriter)
}

func newLogger(environment string, out, additionalWriter io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := zerolog.InfoLevel
	if environment == "development" {
		level = zerolog.DebugLevel
	}

	var writer io.Writer = zerolog.ConsoleWriter{Out: out}
	if additionalWriter != nil {
		remote := zerolog.ConsoleWriter{Out: additionalWriter, NoColor: true, TimeFormat: "15:04:05"}
		writer = zerolog.MultiLevelWriter(writer, remote)
	}

	logger := zerolog.New(writer).With().Timestamp().Logger().Level(level)
	log.Logger = logger
	return logger
}
