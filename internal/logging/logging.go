// Package logging builds the process logger from configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"marketdata/internal/config"
)

// New returns a logrus logger writing to out and, when cfg.File is set, to a
// rotated log file as well. The returned closer flushes the file.
func New(cfg config.Log, out io.Writer) (*logrus.Logger, io.Closer, error) {
	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: log.level: %w", config.ErrInvalidConfig, err)
	}

	l := logrus.New()
	l.SetLevel(level)
	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, nil, fmt.Errorf("%w: log.format %q is not one of text, json", config.ErrInvalidConfig, cfg.Format)
	}

	if out == nil {
		out = os.Stdout
	}
	if cfg.File == "" {
		l.SetOutput(out)
		return l, nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log dir: %w", err)
	}
	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	l.SetOutput(io.MultiWriter(out, file))
	return l, file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
