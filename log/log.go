// Package log provides loggers for psynth components.
package log

import (
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

var debug bool

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv("PSYNTH_DEBUG"))
	if err != nil {
		debug = false
	}
}

// GetLogger returns a new logger instance. Debug level is enabled with
// PSYNTH_DEBUG environment variable.
func GetLogger() *logrus.Logger {
	l := logrus.New()
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// New returns a logger with provided level. Empty level keeps the default
// one. If json is true, entries are formatted as json.
func New(level string, json bool) (*logrus.Logger, error) {
	l := GetLogger()
	if level != "" {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		l.SetLevel(lvl)
	}
	if json {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return l, nil
}

// Discard returns a logger that drops all entries.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
