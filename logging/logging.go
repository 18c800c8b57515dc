// Package logging provides JSON structured logging using zerolog
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level string `json:"level"`
	Debug bool   `json:"debug"`
}

// New builds the process-wide root logger. Components derive their own
// logger from it with a "component" field.
func New(config Config) zerolog.Logger {
	return NewWithOutput(config, os.Stdout)
}

func NewWithOutput(config Config, output io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level := zerolog.InfoLevel
	if config.Debug {
		level = zerolog.DebugLevel
	} else if config.Level != "" {
		if parsed, err := zerolog.ParseLevel(config.Level); err == nil {
			level = parsed
		}
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// Component returns a child logger tagged with the component name
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
