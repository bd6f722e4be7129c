package llm

// DoneSentinel terminates an SSE stream, both upstream and downstream.
const DoneSentinel = "[DONE]"

// CompletionResult is the non-streaming response body.
type CompletionResult struct {
	Choices []Choice `json:"choices"`
}

// Choice wraps the single assistant message of a CompletionResult.
type Choice struct {
	Message ChatMessage `json:"message"`
}

// NewCompletionResult builds a CompletionResult holding one assistant message.
func NewCompletionResult(content string) CompletionResult {
	return CompletionResult{
		Choices: []Choice{{Message: NewAssistantMessage(content)}},
	}
}

// DeltaChunk is one unit of the streaming response body.
type DeltaChunk struct {
	Choices []DeltaChoice `json:"choices"`
}

// DeltaChoice carries a single text fragment.
type DeltaChoice struct {
	Delta string `json:"delta"`
}

// NewDeltaChunk wraps a fragment as a DeltaChunk.
func NewDeltaChunk(fragment string) DeltaChunk {
	return DeltaChunk{
		Choices: []DeltaChoice{{Delta: fragment}},
	}
}

// ErrorResponse is returned for gateway-originated failures.
type ErrorResponse struct {
	Error string `json:"error"`
}
