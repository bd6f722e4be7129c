package duckchat

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Session is the token resolved for a single request.
type Session struct {
	Token string

	// Fetched is true when the token came from a handshake rather than
	// from the caller.
	Fetched bool
}

// ResolveSession returns a token for the upcoming chat call. A non-blank
// callerToken is used as-is with no network call and no validation; an
// invalid token only surfaces when the chat call is rejected. Otherwise a
// fresh token is requested from the status endpoint.
func (c *Client) ResolveSession(ctx context.Context, callerToken string) (Session, error) {
	if strings.TrimSpace(callerToken) != "" {
		return Session{Token: callerToken}, nil
	}

	token, err := c.handshake(ctx)
	if err != nil {
		return Session{}, err
	}

	return Session{Token: token, Fetched: true}, nil
}

// handshake performs the status GET that issues a new token.
func (c *Client) handshake(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.statusURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: creating request: %w", ErrHandshake, err)
	}
	req.Header.Set(TokenAcceptHeader, "1")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status endpoint returned %d", ErrHandshake, resp.StatusCode)
	}

	token := resp.Header.Get(TokenHeader)
	if token == "" {
		return "", fmt.Errorf("%w: %w", ErrHandshake, ErrMissingToken)
	}

	c.logger.Debug("issued duckchat session token")
	return token, nil
}
