package monitoring

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogger configures the global zerolog logger. format is "console" for
// human-readable output on stderr; anything else writes JSON.
func SetupLogger(level, format string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var out io.Writer = os.Stderr
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	log.Logger = log.Output(out)

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if err != nil {
		log.Warn().Str("level", level).Msg("Unknown log level, using info")
	}
}
