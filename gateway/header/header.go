// Package header manages the headers the gateway reads from and writes to
// its callers.
//
// The gateway sits between a caller and the duckchat backend like so:
//
//	Caller <--> Gateway <--> duckchat backend
//
// Each leg has its own header vocabulary. Callers speak X-Session-Id; the
// backend speaks x-vqd-4. Nothing is forwarded verbatim between the legs.
package header

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// SessionIDHeader carries the session token between caller and gateway in
// both directions.
const SessionIDHeader = "X-Session-Id"

// Handler manages caller-facing headers.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// SessionToken returns the caller-supplied session token, or "" when the
// header is absent or blank. The result is safe to keep after the handler
// returns.
func (h *Handler) SessionToken(c *fiber.Ctx) string {
	token := c.Get(SessionIDHeader)
	if strings.TrimSpace(token) == "" {
		return ""
	}
	return strings.Clone(token)
}

// SetSessionToken sets the next-turn token on the caller response. It must
// be called before any body byte is written.
func (h *Handler) SetSessionToken(c *fiber.Ctx, token string) {
	if token == "" {
		return
	}
	c.Set(SessionIDHeader, token)
}

// SetStreamHeaders prepares the caller response for server-sent events.
func (h *Handler) SetStreamHeaders(c *fiber.Ctx) {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")

	// Proxies in front of the gateway must not buffer the event stream.
	c.Set("X-Accel-Buffering", "no")
}
