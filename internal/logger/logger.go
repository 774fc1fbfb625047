package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const (
	colorRed     = 31
	colorGreen   = 32
	colorYellow  = 33
	colorMagenta = 35
	colorBold    = 1
)

func colorize(s interface{}, c int) string {
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}

// New creates a logger on out based on the PQK_ENV environment variable.
func New(out io.Writer, verbose bool) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	env := os.Getenv("PQK_ENV")
	if env == "development" || env == "dev" || env == "" {
		return NewDevelopment(out).Level(level)
	}
	return NewProduction(out).Level(level)
}

// NewDevelopment creates a console logger with colored levels.
func NewDevelopment(out io.Writer) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "15:04:05",
		FormatLevel: func(i interface{}) string {
			ll, ok := i.(string)
			if !ok {
				return strings.ToUpper(fmt.Sprintf("%s", i))
			}
			switch ll {
			case "trace":
				return colorize("TRC", colorMagenta)
			case "debug":
				return colorize("DBG", colorYellow)
			case "info":
				return colorize("INF", colorGreen)
			case "warn":
				return colorize("WRN", colorRed)
			case "error", "fatal", "panic":
				return colorize(strings.ToUpper(ll)[0:3], colorRed)
			default:
				if len(ll) < 3 {
					return colorize(strings.ToUpper(ll), colorBold)
				}
				return colorize(strings.ToUpper(ll)[0:3], colorBold)
			}
		},
	}
	return zerolog.New(output).With().Timestamp().Logger()
}

// NewProduction creates a JSON logger with UNIX timestamps.
func NewProduction(out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	return zerolog.New(out).With().Timestamp().Logger()
}
