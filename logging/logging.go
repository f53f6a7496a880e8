// Package logging builds the process-wide zerolog logger.
package logging

import (
	"github.com/rs/zerolog"
	"io"
	"os"
	"strings"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

type Config struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	// JSON switches from the human readable console format to one JSON object per line.
	JSON bool `yaml:"json" env:"LOG_JSON"`
}

// New returns a logger writing to stdout.
func New(config Config) zerolog.Logger {
	return NewWithWriter(config, os.Stdout)
}

func NewWithWriter(config Config, w io.Writer) zerolog.Logger {
	zerolog.ErrorFieldName = "err"
	out := w
	if !config.JSON {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	}
	return zerolog.New(out).Level(ParseLevel(config.Level)).With().Timestamp().Logger()
}

// ParseLevel falls back to info for empty or unknown levels.
func ParseLevel(level string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}
