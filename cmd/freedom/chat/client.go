package chatcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/papercomputeco/freedom/gateway"
	"github.com/papercomputeco/freedom/gateway/header"
	"github.com/papercomputeco/freedom/pkg/llm"
	"github.com/papercomputeco/freedom/pkg/sse"
	"github.com/papercomputeco/freedom/pkg/utils"
)

// errorBodyLimit caps how much of a failed response is read for its message.
const errorBodyLimit = 4 << 10

var errStreamTruncated = errors.New("stream ended before completion")

// reply is one completed turn as seen from the gateway caller.
type reply struct {
	Content   string
	SessionID string
}

// gatewayClient speaks the gateway's chat completion protocol and carries
// the X-Session-Id token from one turn to the next.
type gatewayClient struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

func newGatewayClient(target string, httpClient *http.Client, logger *slog.Logger) *gatewayClient {
	return &gatewayClient{
		endpoint:   strings.TrimRight(target, "/") + gateway.ChatCompletionsPath,
		httpClient: httpClient,
		logger:     logger,
	}
}

// complete sends req with sessionID and returns the assistant reply. In
// streaming mode each fragment is handed to onDelta as it arrives.
//
// The returned reply is non-nil even on error when the gateway answered, so
// the caller can pick up a rotated session token from a rejected turn.
func (g *gatewayClient) complete(ctx context.Context, req *llm.ChatRequest, sessionID string, onDelta func(string)) (*reply, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		httpReq.Header.Set(header.SessionIDHeader, sessionID)
	}

	g.logger.Debug("sending chat request",
		"endpoint", g.endpoint,
		"model", req.Model,
		"stream", req.Stream,
		"message_count", len(req.Messages),
		"resumed", sessionID != "",
	)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request to gateway: %w", err)
	}
	defer resp.Body.Close()

	out := &reply{SessionID: resp.Header.Get(header.SessionIDHeader)}

	if resp.StatusCode != http.StatusOK {
		return out, statusError(resp)
	}

	if req.Stream {
		out.Content, err = readStream(resp.Body, onDelta, g.logger)
	} else {
		out.Content, err = readCompletion(resp.Body)
	}
	if err != nil {
		return out, err
	}

	return out, nil
}

// statusError describes a non-200 gateway response. Gateway-originated
// failures carry an llm.ErrorResponse; backend rejections have no body.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))

	var errResp llm.ErrorResponse
	if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, errResp.Error)
	}

	if resp.StatusCode == http.StatusBadRequest && len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("gateway returned status %d: backend rejected the request", resp.StatusCode)
	}

	return fmt.Errorf("gateway returned status %d", resp.StatusCode)
}

func readCompletion(r io.Reader) (string, error) {
	var result llm.CompletionResult
	if err := json.NewDecoder(r).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding completion: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", nil
	}
	return result.Choices[0].Message.Content, nil
}

// readStream consumes delta events until the terminator. A stream that
// closes without the terminator was cut short by the gateway.
func readStream(r io.Reader, onDelta func(string), logger *slog.Logger) (string, error) {
	events := sse.NewReader(r)

	var content strings.Builder
	for {
		ev, err := events.Next()
		if err != nil {
			return content.String(), fmt.Errorf("reading stream: %w", err)
		}
		if ev == nil {
			return content.String(), errStreamTruncated
		}

		if ev.Data == llm.DoneSentinel {
			return content.String(), nil
		}

		var chunk llm.DeltaChunk
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil || len(chunk.Choices) == 0 {
			logger.Debug("skipping stream chunk", "data", utils.Truncate(ev.Data, 80))
			continue
		}

		delta := chunk.Choices[0].Delta
		content.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}
}
