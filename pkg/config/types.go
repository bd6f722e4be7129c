package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent freedom configuration stored as
// config.toml in the .freedom/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Gateway     GatewayConfig     `toml:"gateway"`
	Backend     BackendConfig     `toml:"backend"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Client      ClientConfig      `toml:"client"`
}

// GatewayConfig holds gateway server settings.
type GatewayConfig struct {
	Listen  string `toml:"listen,omitempty"`
	Metrics bool   `toml:"metrics,omitempty"`
}

// BackendConfig holds duckchat backend settings.
type BackendConfig struct {
	BaseURL    string `toml:"base_url,omitempty"`
	StatusPath string `toml:"status_path,omitempty"`
	ChatPath   string `toml:"chat_path,omitempty"`
	UserAgent  string `toml:"user_agent,omitempty"`

	// ReadTimeout is a Go duration string, e.g. "2m" or "90s".
	ReadTimeout string `toml:"read_timeout,omitempty"`
}

// EventStreamConfig holds exchange event publishing settings.
type EventStreamConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// gateway (e.g. freedom chat). GatewayTarget is a full URL (scheme + host +
// port).
type ClientConfig struct {
	GatewayTarget string `toml:"gateway_target,omitempty"`
	Model         string `toml:"model,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"gateway.listen": {
		get: func(c *Config) string { return c.Gateway.Listen },
		set: func(c *Config, v string) error { c.Gateway.Listen = v; return nil },
	},
	"gateway.metrics": {
		get: func(c *Config) string { return strconv.FormatBool(c.Gateway.Metrics) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for gateway.metrics: %w", err)
			}
			c.Gateway.Metrics = b
			return nil
		},
	},
	"backend.base_url": {
		get: func(c *Config) string { return c.Backend.BaseURL },
		set: func(c *Config, v string) error { c.Backend.BaseURL = v; return nil },
	},
	"backend.status_path": {
		get: func(c *Config) string { return c.Backend.StatusPath },
		set: func(c *Config, v string) error { c.Backend.StatusPath = v; return nil },
	},
	"backend.chat_path": {
		get: func(c *Config) string { return c.Backend.ChatPath },
		set: func(c *Config, v string) error { c.Backend.ChatPath = v; return nil },
	},
	"backend.user_agent": {
		get: func(c *Config) string { return c.Backend.UserAgent },
		set: func(c *Config, v string) error { c.Backend.UserAgent = v; return nil },
	},
	"backend.read_timeout": {
		get: func(c *Config) string { return c.Backend.ReadTimeout },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for backend.read_timeout: %w", err)
			}
			c.Backend.ReadTimeout = v
			return nil
		},
	},
	"eventstream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error { c.EventStream.Provider = v; return nil },
	},
	"eventstream.brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.Brokers, ",") },
		set: func(c *Config, v string) error { c.EventStream.Brokers = SplitList(v); return nil },
	},
	"eventstream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
	"client.gateway_target": {
		get: func(c *Config) string { return c.Client.GatewayTarget },
		set: func(c *Config, v string) error { c.Client.GatewayTarget = v; return nil },
	},
	"client.model": {
		get: func(c *Config) string { return c.Client.Model },
		set: func(c *Config, v string) error { c.Client.Model = v; return nil },
	},
}

// SplitList splits comma and whitespace separated values, dropping empties.
// Each argument may itself hold several values, so both
// []string{"a:9092,b:9092"} and []string{"a:9092", "b:9092"} yield two items.
func SplitList(values ...string) []string {
	var out []string
	for _, v := range values {
		for _, item := range strings.FieldsFunc(v, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == '\n'
		}) {
			out = append(out, item)
		}
	}
	return out
}
