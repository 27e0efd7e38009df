// Package logging builds the logrus logger shared by the CLI and the stack
// orchestrator.
package logging

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mmr-tortoise/dockstack/internal/model"
)

// Supported formatter names.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// New returns a logger writing to out at the given level.
//
// level is one of debug, info, warn (or warning) and error; an empty level
// means info. format is "text" (full timestamps) or "json". Anything else
// is a validation error.
func New(level, format string, out io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)

	switch strings.ToLower(format) {
	case "", FormatText:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	case FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05Z07:00",
		})
	default:
		return nil, model.Errorf(model.KindValidation, "unknown log format %q (want text or json)", format)
	}

	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(lvl)

	return logger, nil
}

// ParseLevel maps a level name to a logrus level.
func ParseLevel(level string) (logrus.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel, nil
	case "", "info":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, model.Errorf(model.KindValidation, "unknown log level %q", level)
	}
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
