// Package servecmder provides the serve command that runs the freedom gateway.
package servecmder

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/freedom/gateway"
	"github.com/papercomputeco/freedom/pkg/config"
	"github.com/papercomputeco/freedom/pkg/duckchat"
	eventstreamutils "github.com/papercomputeco/freedom/pkg/eventstream/utils"
	"github.com/papercomputeco/freedom/pkg/logger"
	"github.com/papercomputeco/freedom/pkg/utils"
)

type serveCommander struct {
	flags config.FlagSet

	listen      string
	metrics     bool
	baseURL     string
	userAgent   string
	readTimeout time.Duration
	provider    string
	brokers     []string
	topic       string

	debug    bool
	jsonLogs bool
	logFile  string

	viper  *viper.Viper
	logger *slog.Logger
}

// serveFlags are the registry keys bound by the serve command.
var serveFlags = []string{
	config.FlagListen,
	config.FlagMetrics,
	config.FlagBaseURL,
	config.FlagUserAgent,
	config.FlagReadTimeout,
	config.FlagEventStreamProvider,
	config.FlagBrokers,
	config.FlagTopic,
}

const serveLongDesc string = `Run the freedom gateway.

The gateway exposes POST /ddg/chat/completions, an OpenAI-style chat
completion endpoint backed by the duckchat conversational backend. Each
response carries an X-Session-Id header; send it back on the next request to
continue the session without a new token handshake.

Optionally publish one event per exchange to Kafka and expose Prometheus
metrics on /metrics.

Examples:
  freedom serve
  freedom serve --listen :9000 --metrics
  freedom serve --eventstream-provider kafka --brokers localhost:9092`

const serveShortDesc string = "Run the freedom gateway"

func NewServeCmd() *cobra.Command {
	return newServeCmd(&serveCommander{flags: config.Registry})
}

func newServeCmd(cmder *serveCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, cmder.flags, serveFlags)
			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, cmder.flags, config.FlagListen, &cmder.listen)
	config.AddBoolFlag(cmd, cmder.flags, config.FlagMetrics, &cmder.metrics)
	config.AddStringFlag(cmd, cmder.flags, config.FlagBaseURL, &cmder.baseURL)
	config.AddStringFlag(cmd, cmder.flags, config.FlagUserAgent, &cmder.userAgent)
	config.AddDurationFlag(cmd, cmder.flags, config.FlagReadTimeout, &cmder.readTimeout)
	config.AddStringFlag(cmd, cmder.flags, config.FlagEventStreamProvider, &cmder.provider)
	config.AddStringSliceFlag(cmd, cmder.flags, config.FlagBrokers, &cmder.brokers)
	config.AddStringFlag(cmd, cmder.flags, config.FlagTopic, &cmder.topic)

	cmd.Flags().BoolVar(&cmder.jsonLogs, "json", false, "Write logs as JSON instead of pretty terminal output")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also append JSON logs to this file")

	return cmd
}

// settings is the resolved gateway configuration after applying the
// flag > env > file > default precedence chain.
type settings struct {
	gateway  gateway.Config
	provider string
	brokers  []string
	topic    string
}

// resolveSettings reads every gateway setting from v.
func resolveSettings(v *viper.Viper) (*settings, error) {
	readTimeout, err := parseReadTimeout(v.GetString("backend.read_timeout"))
	if err != nil {
		return nil, err
	}

	return &settings{
		gateway: gateway.Config{
			ListenAddr: v.GetString("gateway.listen"),
			Backend: duckchat.Config{
				BaseURL:     v.GetString("backend.base_url"),
				StatusPath:  v.GetString("backend.status_path"),
				ChatPath:    v.GetString("backend.chat_path"),
				UserAgent:   v.GetString("backend.user_agent"),
				ReadTimeout: readTimeout,
			},
			EnableMetrics: v.GetBool("gateway.metrics"),
			Version:       utils.Version,
		},
		provider: v.GetString("eventstream.provider"),
		brokers:  config.SplitList(v.GetStringSlice("eventstream.brokers")...),
		topic:    v.GetString("eventstream.topic"),
	}, nil
}

// parseReadTimeout maps the configured idle timeout onto duckchat.Config,
// where zero means the default and a negative value disables the timer.
func parseReadTimeout(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid backend.read_timeout %q: %w", raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid backend.read_timeout %q: must not be negative", raw)
	}
	if d == 0 {
		return -1, nil
	}
	return d, nil
}

func (c *serveCommander) run() error {
	l, closeLog, err := c.newLogger()
	if err != nil {
		return err
	}
	defer closeLog()
	c.logger = l

	s, err := resolveSettings(c.viper)
	if err != nil {
		return err
	}

	publisher, err := eventstreamutils.NewPublisher(&eventstreamutils.NewPublisherOpts{
		ProviderType: s.provider,
		Brokers:      s.brokers,
		Topic:        s.topic,
		Logger:       c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating eventstream publisher: %w", err)
	}
	s.gateway.Publisher = publisher

	g, err := gateway.New(s.gateway, c.logger)
	if err != nil {
		_ = publisher.Close()
		return fmt.Errorf("creating gateway: %w", err)
	}
	defer g.Close()

	c.logger.Info("starting gateway",
		"listen", s.gateway.ListenAddr,
		"backend", s.gateway.Backend.BaseURL,
		"metrics", s.gateway.EnableMetrics,
		"eventstream_provider", s.provider,
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- g.Run()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("gateway error: %w", err)
		}
		return nil
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return nil
	}
}

// newLogger builds the terminal logger and, with --log-file, fans records
// out to a JSON file as well.
func (c *serveCommander) newLogger() (*slog.Logger, func(), error) {
	format := logger.FormatPretty
	if c.jsonLogs {
		format = logger.FormatJSON
	}
	terminal := logger.New(
		logger.WithDebug(c.debug),
		logger.WithFormat(format),
		logger.WithWriter(os.Stderr),
	)

	if c.logFile == "" {
		return terminal, func() {}, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	file := logger.New(
		logger.WithDebug(c.debug),
		logger.WithFormat(logger.FormatJSON),
		logger.WithWriter(f),
	)

	return logger.Multi(terminal, file), func() {
		if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			fmt.Fprintf(os.Stderr, "closing log file: %v\n", err)
		}
	}, nil
}
