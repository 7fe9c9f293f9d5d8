package logger

import (
	"os"

	"github.com/charmbracelet/log"
)

// New returns a component logger writing to stderr
func New(prefix string, level log.Level) *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          prefix,
		Level:           level,
	})
}

// ParseLevel maps a config log level onto a logger level, falling back to info
func ParseLevel(s string) log.Level {
	level, err := log.ParseLevel(s)
	if err != nil {
		return log.InfoLevel
	}
	return level
}
