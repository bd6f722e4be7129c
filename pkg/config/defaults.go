package config

import (
	"github.com/papercomputeco/freedom/pkg/duckchat"
	"github.com/papercomputeco/freedom/pkg/eventstream"
	"github.com/papercomputeco/freedom/pkg/llm"
)

const (
	defaultGatewayListen = ":8080"
	defaultReadTimeout   = "2m"

	defaultEventStreamProvider = "nop"

	defaultClientGatewayTarget = "http://localhost:8080"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Gateway: GatewayConfig{
			Listen: defaultGatewayListen,
		},
		Backend: BackendConfig{
			BaseURL:     duckchat.DefaultBaseURL,
			StatusPath:  duckchat.DefaultStatusPath,
			ChatPath:    duckchat.DefaultChatPath,
			UserAgent:   duckchat.DefaultUserAgent,
			ReadTimeout: defaultReadTimeout,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    eventstream.DefaultTopic,
		},
		Client: ClientConfig{
			GatewayTarget: defaultClientGatewayTarget,
			Model:         llm.DefaultModel,
		},
	}
}
