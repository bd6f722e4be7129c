package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/freedom/gateway/worker"
	"github.com/papercomputeco/freedom/pkg/duckchat"
	"github.com/papercomputeco/freedom/pkg/eventstream"
	"github.com/papercomputeco/freedom/pkg/llm"
	"github.com/papercomputeco/freedom/pkg/metrics"
	"github.com/papercomputeco/freedom/pkg/sse"
)

// invalidModel labels requests rejected before a model could be trusted.
const invalidModel = "invalid"

// exchange tracks one request through the gateway for metrics and events.
type exchange struct {
	start          time.Time
	path           string
	req            *llm.ChatRequest
	handshake      bool
	rotated        bool
	upstreamStatus int
	fragments      int
	size           int
}

func (e *exchange) mode() string {
	if e.req.Stream {
		return metrics.ModeStream
	}
	return metrics.ModeAggregate
}

// handleChatCompletions resolves a session token, opens the upstream
// exchange and relays its fragments as a stream or a single completion.
func (g *Gateway) handleChatCompletions(c *fiber.Ctx) error {
	start := time.Now()

	req, err := llm.ParseChatRequest(c.Body())
	if err != nil {
		g.logger.Debug("rejecting chat request", "error", err)
		g.metrics.RecordRequest(invalidModel, metrics.ModeAggregate, metrics.OutcomeInvalid, time.Since(start))
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: err.Error()})
	}

	ex := &exchange{start: start, path: strings.Clone(c.Path()), req: req}

	g.logger.Debug("parsed chat request",
		"model", req.Model,
		"stream", req.Stream,
		"message_count", len(req.Messages),
	)

	session, err := g.client.ResolveSession(c.UserContext(), g.headerHandler.SessionToken(c))
	if err != nil {
		g.metrics.RecordHandshake(metrics.HandshakeFailed)
		g.logger.Error("session handshake failed", "error", err)
		g.finish(ex, metrics.OutcomeHandshakeError, fiber.StatusBadGateway)
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "session handshake failed"})
	}
	ex.handshake = session.Fetched
	if session.Fetched {
		g.metrics.RecordHandshake(metrics.HandshakeFetched)
	} else {
		g.metrics.RecordHandshake(metrics.HandshakeReused)
	}

	// The streaming body outlives this handler: fasthttp recycles its
	// RequestCtx once the handler returns, so the upstream call must not be
	// bound to it.
	ctx := c.UserContext()
	if req.Stream {
		ctx = context.Background()
	}

	upstream, err := g.client.Chat(ctx, req, session.Token)
	if err != nil {
		var statusErr *duckchat.StatusError
		if errors.As(err, &statusErr) {
			ex.upstreamStatus = statusErr.StatusCode
			g.metrics.RecordUpstreamStatus(statusErr.StatusCode)
			g.headerHandler.SetSessionToken(c, statusErr.Token)
			g.finish(ex, metrics.OutcomeUpstreamError, fiber.StatusBadRequest)

			// No body: the backend's rejection detail is not exposed.
			c.Status(fiber.StatusBadRequest)
			return nil
		}

		g.logger.Error("upstream request failed", "error", err)
		g.finish(ex, metrics.OutcomeUpstreamError, fiber.StatusBadGateway)
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "upstream request failed"})
	}

	ex.upstreamStatus = http.StatusOK
	ex.rotated = upstream.Rotated
	g.metrics.RecordUpstreamStatus(http.StatusOK)
	g.headerHandler.SetSessionToken(c, upstream.Token)

	if req.Stream {
		return g.handleStream(c, upstream, ex)
	}
	return g.handleAggregate(c, upstream, ex)
}

// handleAggregate drains the exchange and answers with one completion.
func (g *Gateway) handleAggregate(c *fiber.Ctx, upstream *duckchat.Exchange, ex *exchange) error {
	content, err := upstream.Stream.Collect()
	upstream.Close()

	ex.fragments = upstream.Stream.Fragments()
	ex.size = upstream.Stream.Size()

	if err != nil {
		g.logger.Error("upstream stream failed", "error", err, "fragments", ex.fragments)
		g.finish(ex, metrics.OutcomeStreamError, fiber.StatusBadGateway)
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "upstream stream failed"})
	}

	g.finish(ex, metrics.OutcomeOK, fiber.StatusOK)
	return c.JSON(llm.NewCompletionResult(content))
}

// handleStream re-emits each fragment as a delta event as soon as it
// arrives.
func (g *Gateway) handleStream(c *fiber.Ctx, upstream *duckchat.Exchange, ex *exchange) error {
	g.headerHandler.SetStreamHeaders(c)

	// io.Pipe gives consumer-paced backpressure: pw.Write blocks until
	// fasthttp has read the chunk and flushed it to the caller. A caller
	// disconnect closes the reader, which fails the next write.
	pr, pw := io.Pipe()
	go g.pipeFragments(upstream, pw, ex)

	// Unknown size (-1) triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// pipeFragments owns the upstream exchange for the lifetime of a streaming
// response and always releases it. The exchange is recorded before the pipe
// closes so the caller never observes the end of a stream that is not yet
// accounted for.
func (g *Gateway) pipeFragments(upstream *duckchat.Exchange, pw *io.PipeWriter, ex *exchange) {
	outcome, err := g.relayFragments(upstream, sse.NewWriter(pw))
	upstream.Close()

	ex.fragments = upstream.Stream.Fragments()
	ex.size = upstream.Stream.Size()
	g.finish(ex, outcome, fiber.StatusOK)

	// A nil error closes the pipe cleanly; anything else aborts the
	// chunked body so the caller sees a truncated stream without [DONE].
	pw.CloseWithError(err)
}

// relayFragments writes one delta event per fragment followed by the
// sentinel. Upstream events without content are relayed as keep-alive
// comments, so a caller disconnect surfaces on the next upstream event of any
// kind. A caller disconnect is an outcome, not an error.
func (g *Gateway) relayFragments(upstream *duckchat.Exchange, w *sse.Writer) (string, error) {
	for {
		fragment, ok, err := upstream.Stream.NextEvent()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			g.logger.Warn("upstream stream failed mid-response", "error", err)
			return metrics.OutcomeStreamError, err
		}

		if !ok {
			if err := w.WriteComment(); err != nil {
				g.logger.Debug("caller disconnected", "error", err)
				return metrics.OutcomeDisconnected, nil
			}
			continue
		}

		payload, err := json.Marshal(llm.NewDeltaChunk(fragment))
		if err != nil {
			return metrics.OutcomeStreamError, err
		}

		if err := w.WriteData(payload); err != nil {
			g.logger.Debug("caller disconnected", "error", err)
			return metrics.OutcomeDisconnected, nil
		}
	}

	if err := w.WriteString(llm.DoneSentinel); err != nil {
		g.logger.Debug("caller disconnected before completion", "error", err)
		return metrics.OutcomeDisconnected, nil
	}
	return metrics.OutcomeOK, nil
}

// finish records metrics for the exchange and queues its event.
func (g *Gateway) finish(ex *exchange, outcome string, httpStatus int) {
	elapsed := time.Since(ex.start)

	g.metrics.RecordRequest(ex.req.Model, ex.mode(), outcome, elapsed)
	g.metrics.RecordFragments(ex.req.Model, ex.fragments)

	g.logger.Debug("exchange finished",
		"model", ex.req.Model,
		"mode", ex.mode(),
		"outcome", outcome,
		"fragments", ex.fragments,
		"duration", elapsed,
	)

	completed := ex.start.Add(elapsed)
	g.workerPool.Enqueue(worker.Job{
		Event: eventstream.NewExchangeCompletedEvent(
			eventstream.EventSource{Service: "freedom", Version: g.config.Version},
			eventstream.ExchangeRequestMeta{
				Path:         ex.path,
				Model:        ex.req.Model,
				Streaming:    ex.req.Stream,
				MessageCount: len(ex.req.Messages),
				StartedAt:    ex.start.UTC(),
				CompletedAt:  completed.UTC(),
				DurationMs:   elapsed.Milliseconds(),
				HTTPStatus:   httpStatus,
			},
			eventstream.ExchangeSessionMeta{
				Handshake: ex.handshake,
				Rotated:   ex.rotated,
			},
			eventstream.ExchangeResultMeta{
				Outcome:        outcome,
				UpstreamStatus: ex.upstreamStatus,
				Fragments:      ex.fragments,
				ContentBytes:   ex.size,
			},
		),
	})
}
