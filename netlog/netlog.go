// Package netlog is the level-gated logger facade spec.md §6 expects of
// its "Logger" collaborator: a thin wrapper over
// github.com/sirupsen/logrus, grounded on nabbar-golib's logger package
// (_examples/nabbar-golib/logger), trimmed down to what opnet's own
// packages actually consume — they already take a *logrus.Entry
// directly, so this package's job is building and gating that entry, not
// replacing it.
package netlog

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// New builds a root *logrus.Entry for the given level name
// ("trace"/"debug"/"info"/"warn"/"error"), writing to out in either text
// or JSON form. An unrecognized level name falls back to InfoLevel.
func New(level string, out io.Writer, json bool) *logrus.Entry {
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(parseLevel(level))
	if json {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logrus.NewEntry(log)
}

func parseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// TraceLazy logs at Trace level with a message built by fn, skipping fn
// entirely when trace logging is disabled — spec.md §6's requirement that
// the logger collaborator never format on a hot path beyond a level
// check.
func TraceLazy(log *logrus.Entry, fn func() string) {
	if log.Logger.IsLevelEnabled(logrus.TraceLevel) {
		log.Trace(fn())
	}
}

// DebugLazy is TraceLazy for Debug level.
func DebugLazy(log *logrus.Entry, fn func() string) {
	if log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		log.Debug(fn())
	}
}

// Fieldf builds a one-off formatted field value without allocating a
// logrus.Fields map at call sites that only need a single extra field.
func Fieldf(log *logrus.Entry, key, format string, args ...any) *logrus.Entry {
	return log.WithField(key, fmt.Sprintf(format, args...))
}
