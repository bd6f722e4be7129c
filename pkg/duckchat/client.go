// Package duckchat is a client for the DuckDuckGo AI Chat backend.
//
// The backend gates its chat endpoint behind an ephemeral session token
// (the "x-vqd-4" header). A token is issued by the status endpoint, consumed
// by one chat call, and rotated on every chat response. Tokens are treated as
// opaque values: the client never caches, inspects, or logs them.
package duckchat

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL    = "https://duckduckgo.com"
	DefaultStatusPath = "/duckchat/v1/status"
	DefaultChatPath   = "/duckchat/v1/chat"
	DefaultUserAgent  = "Mozilla/5.0 (X11; Linux x86_64; rv:126.0) Gecko/20100101 Firefox/126.0"

	// DefaultReadTimeout bounds the wait for each upstream stream event.
	DefaultReadTimeout = 2 * time.Minute

	// TokenHeader carries the session token in both directions.
	TokenHeader = "x-vqd-4"

	// TokenAcceptHeader asks the status endpoint to issue a token.
	TokenAcceptHeader = "x-vqd-accept"

	// drainLimit caps how much of a discarded body is read so the
	// connection can go back to the pool.
	drainLimit = 64 * 1024
)

// Config configures a Client. Zero values fall back to the defaults above.
type Config struct {
	BaseURL    string
	StatusPath string
	ChatPath   string
	UserAgent  string

	// ReadTimeout is the longest the client waits for the next upstream
	// stream event. Negative disables the timeout.
	ReadTimeout time.Duration

	// HTTPClient is shared by every request. It must not set an overall
	// Timeout, which would cut long streams short.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client talks to the duckchat backend. It is safe for concurrent use and
// holds no per-session state.
type Client struct {
	statusURL   string
	chatURL     string
	userAgent   string
	readTimeout time.Duration
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, errors.New("duckchat base url must start with http:// or https://")
	}

	statusPath := orDefault(cfg.StatusPath, DefaultStatusPath)
	chatPath := orDefault(cfg.ChatPath, DefaultChatPath)
	userAgent := orDefault(cfg.UserAgent, DefaultUserAgent)

	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = DefaultReadTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		statusURL:   baseURL + ensureLeadingSlash(statusPath),
		chatURL:     baseURL + ensureLeadingSlash(chatPath),
		userAgent:   userAgent,
		readTimeout: readTimeout,
		httpClient:  httpClient,
		logger:      logger,
	}, nil
}

// NewHTTPClient returns a connection-reusing client suited to long-lived
// streaming responses: headers must arrive promptly, bodies may not.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   32,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
	}
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v == "" {
		return fallback
	}
	return v
}

func ensureLeadingSlash(path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	return "/" + path
}
