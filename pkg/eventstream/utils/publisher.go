package eventstreamutils

import (
	"fmt"
	"log/slog"

	"github.com/papercomputeco/freedom/pkg/eventstream"
	"github.com/papercomputeco/freedom/pkg/eventstream/kafka"
	"github.com/papercomputeco/freedom/pkg/eventstream/nop"
)

// Supported publisher providers.
const (
	ProviderNop   = "nop"
	ProviderKafka = "kafka"
)

type NewPublisherOpts struct {
	ProviderType string
	Brokers      []string
	Topic        string
	Logger       *slog.Logger
}

// NewPublisher builds the publisher named by o.ProviderType. An empty
// provider selects the no-op publisher.
func NewPublisher(o *NewPublisherOpts) (eventstream.Publisher, error) {
	switch o.ProviderType {
	case "", ProviderNop:
		return nop.NewPublisher(), nil
	case ProviderKafka:
		return kafka.NewPublisher(kafka.Config{
			Brokers: o.Brokers,
			Topic:   o.Topic,
			Logger:  o.Logger,
		})
	default:
		return nil, fmt.Errorf("unsupported eventstream provider: %s", o.ProviderType)
	}
}
