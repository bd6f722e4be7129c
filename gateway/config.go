package gateway

import (
	"github.com/papercomputeco/freedom/pkg/duckchat"
	"github.com/papercomputeco/freedom/pkg/eventstream"
)

// Config is the gateway server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// Backend configures the duckchat client. A nil Backend.Logger inherits
	// the gateway logger.
	Backend duckchat.Config

	// EnableMetrics mounts the Prometheus endpoint at /metrics.
	EnableMetrics bool

	// Publisher receives exchange events. Nil disables publishing.
	Publisher eventstream.Publisher

	// Version is reported as the event source version.
	Version string
}
