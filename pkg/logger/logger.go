// Package logger provides opinionated slog loggers for the freedom gateway
// and its CLI commands.
package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
)

// Format selects the handler New builds.
type Format int

const (
	// FormatText is slog's logfmt-style text handler.
	FormatText Format = iota

	// FormatJSON is slog's JSON handler, for services and log files.
	FormatJSON

	// FormatPretty is the colorized charmbracelet/log handler for terminals.
	FormatPretty
)

// DefaultRedactedKeys are attribute keys whose values are session
// capabilities and must never reach a log sink.
var DefaultRedactedKeys = []string{"session_token", "token", "x-vqd-4"}

type config struct {
	level    slog.Level
	format   Format
	source   bool
	writers  []io.Writer
	redacted []string
}

// New builds a *slog.Logger from the given options. Without options it writes
// Info and above as slog text to os.Stdout, with DefaultRedactedKeys masked.
func New(opts ...Option) *slog.Logger {
	c := &config{
		level:    slog.LevelInfo,
		redacted: DefaultRedactedKeys,
	}
	for _, opt := range opts {
		opt(c)
	}

	var w io.Writer
	switch len(c.writers) {
	case 0:
		w = os.Stdout
	case 1:
		w = c.writers[0]
	default:
		w = io.MultiWriter(c.writers...)
	}

	var h slog.Handler
	switch c.format {
	case FormatPretty:
		h = charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmlog.Level(c.level),
			ReportTimestamp: true,
			TimeFormat:      time.Kitchen,
			ReportCaller:    c.source,
		})
	case FormatJSON:
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: c.level, AddSource: c.source})
	default:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.level, AddSource: c.source})
	}

	if len(c.redacted) > 0 {
		h = newRedactHandler(h, c.redacted)
	}
	return slog.New(h)
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
