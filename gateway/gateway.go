// Package gateway provides the HTTP front door that exposes the duckchat
// backend as an OpenAI-style chat completion endpoint.
package gateway

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"

	"github.com/papercomputeco/freedom/gateway/header"
	"github.com/papercomputeco/freedom/gateway/worker"
	"github.com/papercomputeco/freedom/pkg/duckchat"
	"github.com/papercomputeco/freedom/pkg/eventstream/nop"
	"github.com/papercomputeco/freedom/pkg/metrics"
)

// ChatCompletionsPath is the translator endpoint.
const ChatCompletionsPath = "/ddg/chat/completions"

// Gateway translates OpenAI-style chat completion requests into duckchat
// exchanges. It keeps no session state: the session token travels with each
// request and response.
type Gateway struct {
	config        Config
	client        *duckchat.Client
	metrics       *metrics.Collector
	workerPool    *worker.Pool
	logger        *slog.Logger
	server        *fiber.App
	headerHandler *header.Handler

	closeOnce sync.Once
	closeErr  error
}

// New creates a new Gateway.
func New(config Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	backend := config.Backend
	if backend.Logger == nil {
		backend.Logger = logger
	}
	client, err := duckchat.NewClient(backend)
	if err != nil {
		return nil, fmt.Errorf("could not create duckchat client: %w", err)
	}

	publisher := config.Publisher
	if publisher == nil {
		publisher = nop.NewPublisher()
	}
	wp, err := worker.NewPool(&worker.Config{
		Publisher: publisher,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		StreamRequestBody:     true,
	})

	app.Use(compress.New())

	g := &Gateway{
		config:        config,
		client:        client,
		workerPool:    wp,
		logger:        logger,
		server:        app,
		headerHandler: header.NewHandler(),
	}

	app.Get("/", g.handleRoot)
	app.Get("/ping", g.handlePing)
	app.Post(ChatCompletionsPath, g.handleChatCompletions)

	if config.EnableMetrics {
		g.metrics = metrics.NewCollector(nil)
		app.Get("/metrics", adaptor.HTTPHandler(g.metrics.Handler()))
	}

	return g, nil
}

// Run starts the gateway server on the configured listening address.
func (g *Gateway) Run() error {
	g.logger.Info("starting gateway server",
		"listen", g.config.ListenAddr,
		"metrics", g.config.EnableMetrics,
	)

	return g.server.Listen(g.config.ListenAddr)
}

// RunWithListener starts the gateway server using the provided listener.
func (g *Gateway) RunWithListener(listener net.Listener) error {
	g.logger.Info("starting gateway server",
		"listen", listener.Addr().String(),
		"metrics", g.config.EnableMetrics,
	)

	return g.server.Listener(listener)
}

// Close stops accepting requests, then drains pending exchange events.
// Subsequent calls return the first result.
func (g *Gateway) Close() error {
	g.closeOnce.Do(func() {
		g.closeErr = g.server.Shutdown()
		if err := g.workerPool.Close(); err != nil {
			g.logger.Warn("closing event publisher", "error", err)
		}
	})
	return g.closeErr
}

func (g *Gateway) handleRoot(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "Hello, my name is Ging"})
}

func (g *Gateway) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}
