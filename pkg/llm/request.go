package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// Supported backend model identifiers.
const (
	ModelGPT35Turbo   = "gpt-3.5-turbo-0125"
	ModelClaude3Haiku = "claude-3-haiku-20240307"

	// DefaultModel is used when a request omits the model.
	DefaultModel = ModelGPT35Turbo
)

var supportedModels = []string{ModelGPT35Turbo, ModelClaude3Haiku}

var (
	// ErrNoMessages indicates a chat request without any messages.
	ErrNoMessages = errors.New("messages must not be empty")

	// ErrUnsupportedModel indicates a model the backend does not serve.
	ErrUnsupportedModel = errors.New("unsupported model")

	// ErrInvalidRole indicates a message role other than user or assistant.
	ErrInvalidRole = errors.New("invalid message role")
)

// ChatRequest is the inbound chat completion request.
type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// SupportedModels returns the model identifiers accepted by the gateway.
func SupportedModels() []string {
	return slices.Clone(supportedModels)
}

// ParseChatRequest decodes and validates a raw request body. An omitted model
// is replaced with DefaultModel.
func ParseChatRequest(body []byte) (*ChatRequest, error) {
	req := &ChatRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		return nil, fmt.Errorf("decoding chat request: %w", err)
	}

	if req.Model == "" {
		req.Model = DefaultModel
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	return req, nil
}

// Validate checks the request against the models and roles the backend
// understands.
func (r *ChatRequest) Validate() error {
	if !slices.Contains(supportedModels, r.Model) {
		return fmt.Errorf("%w: %q", ErrUnsupportedModel, r.Model)
	}

	if len(r.Messages) == 0 {
		return ErrNoMessages
	}

	for i, msg := range r.Messages {
		if !msg.Role.Valid() {
			return fmt.Errorf("%w %q at messages[%d]", ErrInvalidRole, msg.Role, i)
		}
	}

	return nil
}
