package duckchat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/papercomputeco/freedom/pkg/llm"
)

// chatPayload is the upstream request body. The caller's stream flag is
// never forwarded: the backend always streams.
type chatPayload struct {
	Model    string            `json:"model"`
	Messages []llm.ChatMessage `json:"messages"`
}

// Exchange is an accepted upstream chat response.
type Exchange struct {
	// Token is the session token the caller should present next turn. It is
	// the rotated token when the backend sent one, otherwise the token that
	// was used for the call.
	Token string

	// Rotated is true when the backend returned a token header.
	Rotated bool

	Stream *FragmentStream

	body      io.ReadCloser
	cancel    context.CancelCauseFunc
	idle      *time.Timer
	closeOnce sync.Once
	closeErr  error
}

// Close releases the upstream connection. It is safe to call more than once
// and from any goroutine.
func (e *Exchange) Close() error {
	e.closeOnce.Do(func() {
		if e.idle != nil {
			e.idle.Stop()
		}
		e.closeErr = e.body.Close()
		e.cancel(nil)
	})
	return e.closeErr
}

// Chat sends the conversation upstream using token and returns the
// streaming exchange. A non-200 response yields a *StatusError. The caller
// must Close the returned Exchange.
//
// Each received event resets the read timeout. When it elapses the
// connection is torn down and the stream errors with ErrReadTimeout.
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest, token string) (*Exchange, error) {
	payload, err := json.Marshal(chatPayload{Model: req.Model, Messages: req.Messages})
	if err != nil {
		return nil, fmt.Errorf("encoding chat payload: %w", err)
	}

	ctx, cancel := context.WithCancelCause(ctx)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL, bytes.NewReader(payload))
	if err != nil {
		cancel(nil)
		return nil, fmt.Errorf("creating chat request: %w", err)
	}
	httpReq.Header.Set(TokenHeader, token)
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel(nil)
		return nil, fmt.Errorf("duckchat chat request: %w", err)
	}

	rotated := resp.Header.Get(TokenHeader)

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
		resp.Body.Close()
		cancel(nil)

		c.logger.Warn("duckchat chat endpoint rejected request",
			"status", resp.StatusCode,
			"model", req.Model,
			"duration", time.Since(start),
		)
		return nil, &StatusError{StatusCode: resp.StatusCode, Token: rotated}
	}

	ex := &Exchange{
		Token:   token,
		Rotated: rotated != "",
		Stream:  NewFragmentStream(resp.Body, c.logger),
		body:    resp.Body,
		cancel:  cancel,
	}
	if ex.Rotated {
		ex.Token = rotated
	}

	ex.Stream.cause = func() error { return context.Cause(ctx) }
	if c.readTimeout > 0 {
		timeout := c.readTimeout
		ex.idle = time.AfterFunc(timeout, func() { cancel(ErrReadTimeout) })
		ex.Stream.onEvent = func() { ex.idle.Reset(timeout) }
	}

	c.logger.Debug("duckchat exchange opened",
		"model", req.Model,
		"rotated", ex.Rotated,
		"duration", time.Since(start),
	)
	return ex, nil
}
