package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/bilal/orion-agent/internal/config"
	"github.com/rs/zerolog"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the agent logger. Output always goes to stdout; when a log file
// is configured it is appended to as well. The returned closer releases the
// file.
func New(lcfg config.LoggingConfig) (zerolog.Logger, io.Closer, error) {
	return build(lcfg, os.Stdout)
}

func build(lcfg config.LoggingConfig, stdout io.Writer) (zerolog.Logger, io.Closer, error) {
	level := ParseLevel(lcfg.Level)
	zerolog.LevelFieldMarshalFunc = levelTag

	var console io.Writer = stdout
	if strings.ToLower(lcfg.Format) == "console" {
		console = zerolog.ConsoleWriter{
			Out:         stdout,
			TimeFormat:  time.RFC3339,
			NoColor:     true,
			FormatLevel: func(i interface{}) string { return fmt.Sprintf("%-7s", i) },
		}
	}

	var closer io.Closer = nopCloser{}
	out := console
	if lcfg.File != "" {
		f, err := os.OpenFile(lcfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open log file %s: %w", lcfg.File, err)
		}
		closer = f
		out = zerolog.MultiLevelWriter(f, console)
	}

	l := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return l, closer, nil
}

// levelTag renders levels as DEBUG, INFO, WARNING and ERROR.
func levelTag(l zerolog.Level) string {
	if l == zerolog.WarnLevel {
		return "WARNING"
	}
	return strings.ToUpper(l.String())
}

func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
