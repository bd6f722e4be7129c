package logger

import (
	"io"
	"log/slog"
)

// Option configures a logger created with New.
type Option func(*config)

// WithDebug lowers the level to Debug.
func WithDebug(debug bool) Option {
	return func(c *config) {
		c.level = slog.LevelInfo
		if debug {
			c.level = slog.LevelDebug
		}
	}
}

// WithFormat picks the output handler.
func WithFormat(format Format) Option {
	return func(c *config) { c.format = format }
}

// WithWriter sends output to w. Several writers are combined with
// io.MultiWriter.
func WithWriter(w ...io.Writer) Option {
	return func(c *config) { c.writers = w }
}

// WithSource adds the caller's file:line to each record.
func WithSource(source bool) Option {
	return func(c *config) { c.source = source }
}

// WithRedactedKeys replaces DefaultRedactedKeys. No keys disables
// redaction.
func WithRedactedKeys(keys ...string) Option {
	return func(c *config) { c.redacted = keys }
}
