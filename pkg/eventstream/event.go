// Package eventstream defines the exchange telemetry events the gateway emits
// and the Publisher abstraction that ships them to a backend.
//
// Events describe an exchange, never its substance: they carry no message
// content and no session token.
package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeExchangeCompleted is emitted after a chat completion request finishes.
	EventTypeExchangeCompleted = "freedom.exchange.completed"

	// DefaultTopic is the topic broker-backed publishers write to by default.
	DefaultTopic = "freedom.exchanges"
)

// ExchangeCompletedEvent is a transport-neutral event payload for one
// finished chat completion request.
type ExchangeCompletedEvent struct {
	SchemaVersion int                 `json:"schema_version"`
	EventType     string              `json:"event_type"`
	EventID       string              `json:"event_id"`
	EmittedAt     time.Time           `json:"emitted_at"`
	Source        EventSource         `json:"source"`
	Request       ExchangeRequestMeta `json:"request"`
	Session       ExchangeSessionMeta `json:"session"`
	Result        ExchangeResultMeta  `json:"result"`
}

// EventSource identifies the gateway instance that handled the exchange.
type EventSource struct {
	Service string `json:"service"`
	Version string `json:"version,omitempty"`
}

// ExchangeRequestMeta captures request lifecycle metadata for the event.
type ExchangeRequestMeta struct {
	Path         string    `json:"path,omitempty"`
	Model        string    `json:"model"`
	Streaming    bool      `json:"streaming"`
	MessageCount int       `json:"message_count"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
	DurationMs   int64     `json:"duration_ms"`
	HTTPStatus   int       `json:"http_status"`
}

// ExchangeSessionMeta records how the session token was handled, without
// the token itself.
type ExchangeSessionMeta struct {
	Handshake bool `json:"handshake"`
	Rotated   bool `json:"rotated"`
}

// ExchangeResultMeta summarizes what the backend produced.
type ExchangeResultMeta struct {
	Outcome        string `json:"outcome"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
	Fragments      int    `json:"fragments"`
	ContentBytes   int    `json:"content_bytes"`
}

// NewExchangeCompletedEvent stamps a new event with a fresh ID and emit time.
func NewExchangeCompletedEvent(source EventSource, req ExchangeRequestMeta, session ExchangeSessionMeta, result ExchangeResultMeta) *ExchangeCompletedEvent {
	return &ExchangeCompletedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeExchangeCompleted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		Request:       req,
		Session:       session,
		Result:        result,
	}
}
