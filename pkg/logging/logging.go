// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options select the level, format and sinks of the logger.
type Options struct {
	Level  string
	Format string // text or json
	File   string
	Output io.Writer // defaults to os.Stderr
}

// New returns a configured logger and a function that releases its file sink.
func New(opts Options) (*logrus.Logger, func() error, error) {
	lvl := logrus.InfoLevel
	if s := strings.TrimSpace(opts.Level); s != "" {
		parsed, err := logrus.ParseLevel(s)
		if err != nil {
			return nil, nil, fmt.Errorf("log level: %w", err)
		}
		lvl = parsed
	}

	log := logrus.New()
	log.SetLevel(lvl)
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, nil, fmt.Errorf("log format %q (expected text|json)", opts.Format)
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	closer := func() error { return nil }
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(out, f)
		closer = f.Close
	}
	log.SetOutput(out)
	return log, closer, nil
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
