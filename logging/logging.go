// Package logging builds the process logger and adapts it to the
// printf-style hooks used by the core packages.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// New creates a logger writing to out.
// level is a logrus level name, format is "text" or "json".
func New(out io.Writer, level, format string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(lvl)

	switch format {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}

	return logger, nil
}

var prefixes = []struct {
	prefix string
	level  logrus.Level
}{
	{"ERROR: ", logrus.ErrorLevel},
	{"WARN: ", logrus.WarnLevel},
	{"INFO: ", logrus.InfoLevel},
	{"DEBUG: ", logrus.DebugLevel},
}

// Logf adapts logger to the Logf option of the core packages.
// Messages prefixed "ERROR: ", "WARN: ", "INFO: " or "DEBUG: " are logged at
// the matching level with the prefix removed. Other messages are logged at info.
func Logf(logger logrus.FieldLogger) func(format string, v ...any) {
	return func(format string, v ...any) {
		level := logrus.InfoLevel
		for _, p := range prefixes {
			if strings.HasPrefix(format, p.prefix) {
				level = p.level
				format = strings.TrimPrefix(format, p.prefix)
				break
			}
		}
		msg := fmt.Sprintf(format, v...)
		switch level {
		case logrus.ErrorLevel:
			logger.Error(msg)
		case logrus.WarnLevel:
			logger.Warn(msg)
		case logrus.DebugLevel:
			logger.Debug(msg)
		default:
			logger.Info(msg)
		}
	}
}
