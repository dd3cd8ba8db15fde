package log

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init points the global logger at a console writer on stderr and sets
// the level from level, falling back to LOG_LEVEL.
func Init(level string) {
	InitWriter(os.Stderr, level)
}

func InitWriter(w io.Writer, level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w})
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	zerolog.SetGlobalLevel(ParseLevel(level))
}

func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
