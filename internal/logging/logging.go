// internal/logging/logging.go
package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log is the application-wide logger. It is usable before Init is called.
var Log = NewLogger("info")

// Init replaces the application logger with one at the given level.
func Init(level string) {
	Log = NewLogger(level)
}

// NewLogger creates an independent JSON logger writing to stdout.
func NewLogger(level string) *logrus.Logger {

	var log = logrus.New()

	// Using JSON format for structured logging.
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(ParseLevel(level))
	return log
}

// ParseLevel maps a config level name to a logrus level. Unknown names are info.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
