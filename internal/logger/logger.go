package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds the root logger. Production emits JSON, anything else a
// console writer.
func New(level string, production bool, service, environment string) (zerolog.Logger, error) {
	return newWithWriter(os.Stdout, level, production, service, environment)
}

func newWithWriter(out io.Writer, level string, production bool, service, environment string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Logger{}, err
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	if !production {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Str("service", service).
		Str("environment", environment).
		Logger(), nil
}
