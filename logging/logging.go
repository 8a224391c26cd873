// Package logging provides the structured logging conventions shared by
// every component: a logrus-backed logger with stream-routed output (errors
// to stderr, everything else to stdout, so container log collectors can
// split them) and a small context-field wrapper so call sites read as
// logger.WithField("uid", uid).Info("...") instead of building logrus.Fields
// by hand everywhere.
package logging

import (
	"bytes"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// outputSplitter routes formatted log lines to stderr when they carry
// logrus's error or fatal level marker ("level=error" in text format,
// "level":"error" in JSON format), stdout otherwise.
type outputSplitter struct{}

func (outputSplitter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("level=error")) || bytes.Contains(p, []byte("level=fatal")) ||
		bytes.Contains(p, []byte(`"level":"error"`)) || bytes.Contains(p, []byte(`"level":"fatal"`)) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Base is the package-level logger every component seeds its ContextLogger
// from. Components should not log through it directly; wrap it with
// New/WithFields so every log line carries a component tag.
var Base = logrus.New()

func init() {
	Base.SetOutput(outputSplitter{})
	Base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
}

// Config controls level/format for a process.
type Config struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "text" or "json"
}

// Configure applies cfg to Base. Call once at process start.
func Configure(cfg Config) {
	switch cfg.Level {
	case "debug":
		Base.SetLevel(logrus.DebugLevel)
	case "warn":
		Base.SetLevel(logrus.WarnLevel)
	case "error":
		Base.SetLevel(logrus.ErrorLevel)
	default:
		Base.SetLevel(logrus.InfoLevel)
	}

	if cfg.Format == "json" {
		Base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		Base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	}
}

// ContextLogger carries a fixed set of structured fields across a chain of
// With* calls, mirroring logrus's own builder but scoped to one component.
type ContextLogger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

// New creates a ContextLogger tagged with a component name.
func New(component string) *ContextLogger {
	return &ContextLogger{logger: Base, fields: logrus.Fields{"component": component}}
}

func (c *ContextLogger) with(fields logrus.Fields) *ContextLogger {
	merged := make(logrus.Fields, len(c.fields)+len(fields))
	for k, v := range c.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &ContextLogger{logger: c.logger, fields: merged}
}

// WithField returns a derived logger carrying one additional field.
func (c *ContextLogger) WithField(key string, value interface{}) *ContextLogger {
	return c.with(logrus.Fields{key: value})
}

// WithFields returns a derived logger carrying additional fields.
func (c *ContextLogger) WithFields(fields map[string]interface{}) *ContextLogger {
	return c.with(logrus.Fields(fields))
}

// WithError returns a derived logger carrying err's message.
func (c *ContextLogger) WithError(err error) *ContextLogger {
	if err == nil {
		return c
	}
	return c.with(logrus.Fields{"error": err.Error()})
}

func (c *ContextLogger) Debug(msg string)                            { c.logger.WithFields(c.fields).Debug(msg) }
func (c *ContextLogger) Debugf(format string, args ...interface{})   { c.logger.WithFields(c.fields).Debugf(format, args...) }
func (c *ContextLogger) Info(msg string)                             { c.logger.WithFields(c.fields).Info(msg) }
func (c *ContextLogger) Infof(format string, args ...interface{})    { c.logger.WithFields(c.fields).Infof(format, args...) }
func (c *ContextLogger) Warn(msg string)                             { c.logger.WithFields(c.fields).Warn(msg) }
func (c *ContextLogger) Warnf(format string, args ...interface{})    { c.logger.WithFields(c.fields).Warnf(format, args...) }
func (c *ContextLogger) Error(msg string)                            { c.logger.WithFields(c.fields).Error(msg) }
func (c *ContextLogger) Errorf(format string, args ...interface{})   { c.logger.WithFields(c.fields).Errorf(format, args...) }

// LogDuration logs the duration of an operation when the returned func is
// called; typical use is `defer logger.LogDuration("fetch_feed")()`.
func (c *ContextLogger) LogDuration(operation string) func() {
	start := time.Now()
	return func() {
		c.WithFields(map[string]interface{}{
			"operation":   operation,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("operation completed")
	}
}
