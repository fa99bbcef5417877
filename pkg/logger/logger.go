// Package logger provides the shared structured logging facility used across
// the service. It wraps logrus so callers get service-scoped, field-based
// logging without configuring a backend themselves.
package logger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LoggingConfig controls level, format and destination of a logger.
type LoggingConfig struct {
	Level      string
	Format     string // "text" or "json"
	Output     string // "stdout", "stderr" or "file"
	FilePrefix string // used when Output is "file"
}

// Logger is a thin wrapper around a logrus entry carrying service context.
// The embedded entry exposes the usual WithField/WithError/Info/Warn surface.
type Logger struct {
	*logrus.Entry
}

// New constructs a logger from the given configuration. Invalid levels fall
// back to info rather than failing startup.
func New(cfg LoggingConfig) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case "stderr":
		l.SetOutput(os.Stderr)
	case "file":
		if f, err := openLogFile(cfg.FilePrefix); err == nil {
			l.SetOutput(f)
		} else {
			l.SetOutput(os.Stdout)
			l.WithError(err).Warn("falling back to stdout logging")
		}
	default:
		l.SetOutput(os.Stdout)
	}

	return &Logger{Entry: logrus.NewEntry(l)}
}

// NewDefault returns a text logger on stdout scoped to the given service name.
func NewDefault(service string) *Logger {
	base := New(LoggingConfig{Level: "info", Format: "text", Output: "stdout"})
	return &Logger{Entry: base.WithField("service", service)}
}

// WithService returns a logger annotated with a service field.
func (l *Logger) WithService(service string) *Logger {
	return &Logger{Entry: l.WithField("service", service)}
}

func openLogFile(prefix string) (*os.File, error) {
	if strings.TrimSpace(prefix) == "" {
		prefix = "escrow-service"
	}
	name := fmt.Sprintf("%s-%s.log", prefix, time.Now().UTC().Format("2006-01-02"))
	return os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
