// Package logx is the engine's ambient logging shim: a package-level
// *logrus.Logger plus small helpers for the structured fields cmd/h1xget
// attaches consistently (exchange id, phase, connection), so call sites
// read logx.L().WithField(...)
// instead of reaching for logrus directly.
package logx

import (
	"os"

	"github.com/sirupsen/logrus"
)

var base = newDefault()

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// L returns the package-level logger. Call sites chain WithField/WithFields
// on it rather than holding their own *logrus.Logger.
func L() *logrus.Logger { return base }

// SetLevel adjusts the package-level logger's verbosity, e.g. from a CLI
// -verbose flag.
func SetLevel(level logrus.Level) { base.SetLevel(level) }

// Exchange returns an entry pre-tagged with the correlation id a caller
// generates per request (cmd/h1xget uses uuid.NewString for this).
func Exchange(id string) *logrus.Entry {
	return base.WithField("exchange_id", id)
}

// Phase tags an entry with the typestate phase name (request-header,
// request-body, response-header, response-body) so log lines make the
// exchange's progress through §2's phase diagram greppable.
func Phase(entry *logrus.Entry, phase string) *logrus.Entry {
	return entry.WithField("phase", phase)
}

// Conn tags an entry with a short connection identifier, matching the
// "conn" field fasthttp's access-log line (server_trace.go's ctxLogger)
// attaches per connection.
func Conn(entry *logrus.Entry, addr string) *logrus.Entry {
	return entry.WithField("conn", addr)
}
