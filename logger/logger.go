package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger. The local environment gets the console
// writer, everything else JSON lines.
func Init(appName, appEnv, level string, debug bool) error {
	return initWithWriter(os.Stdout, appName, appEnv, level, debug)
}

func initWithWriter(w io.Writer, appName, appEnv, level string, debug bool) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	if debug {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := w
	if strings.EqualFold(appEnv, "local") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "02-01-2006 15:04:05.000"}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Str("app", appName).Logger()
	zerolog.DefaultContextLogger = &log.Logger

	log.Info().Str("level", lvl.String()).Msg("Logger initialized!")
	return nil
}

func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return zerolog.DebugLevel, nil
	case "INFO", "":
		return zerolog.InfoLevel, nil
	case "WARN", "WARNING":
		return zerolog.WarnLevel, nil
	case "ERROR":
		return zerolog.ErrorLevel, nil
	case "FATAL":
		return zerolog.FatalLevel, nil
	case "PANIC":
		return zerolog.PanicLevel, nil
	case "DISABLED":
		return zerolog.Disabled, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("incorrect log level %s", level)
	}
}
