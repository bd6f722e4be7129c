package eventstream

import "errors"

var (
	// ErrNilExchangeEvent indicates a nil exchange event payload was provided to a publisher.
	ErrNilExchangeEvent = errors.New("nil exchange event")

	// ErrNoBrokers indicates a broker-backed publisher was configured without brokers.
	ErrNoBrokers = errors.New("no brokers configured")
)
