package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger. Production writes JSON lines at info;
// other environments get a colored console at debug. A non-empty level
// overrides the environment default.
func New(environment, service, level string) zerolog.Logger {
	return newLogger(os.Stdout, environment, service, level)
}

func newLogger(out io.Writer, environment, service, level string) zerolog.Logger {
	production := environment == "production"

	writer := out
	if !production {
		writer = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(writer).With().
		Timestamp().
		Str("env", environment).
		Str("service", service).
		Logger()

	lvl := zerolog.DebugLevel
	if production {
		lvl = zerolog.InfoLevel
	}
	if level != "" {
		parsed, err := zerolog.ParseLevel(level)
		if err != nil {
			logger.Warn().Str("level", level).Msg("unknown log level, using default")
		} else {
			lvl = parsed
		}
	}

	return logger.Level(lvl)
}
