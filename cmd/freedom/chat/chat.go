// Package chatcmder provides the chat command for interactive chat through
// a running freedom gateway.
package chatcmder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/freedom/pkg/cliui"
	"github.com/papercomputeco/freedom/pkg/config"
	"github.com/papercomputeco/freedom/pkg/llm"
	"github.com/papercomputeco/freedom/pkg/logger"
)

type chatCommander struct {
	flags config.FlagSet

	gatewayTarget string
	model         string
	render        bool
	debug         bool

	logger *slog.Logger

	in  io.Reader
	out io.Writer
	err io.Writer
}

var chatFlags = []string{
	config.FlagGatewayTarget,
	config.FlagModel,
}

const chatLongDesc string = `Start an interactive chat session through a running freedom gateway.

Each turn sends the full conversation to the gateway together with the
X-Session-Id token returned by the previous turn, so the backend session
continues without a new handshake. The conversation lives only as long as
the chat command.

Replies stream to the terminal as they arrive. With --render the reply is
requested in one piece and rendered as markdown.

Commands:
  /new     Start a fresh conversation and session
  /exit    Quit (Ctrl+D also works)

Examples:
  freedom chat
  freedom chat --model claude-3-haiku-20240307
  freedom chat --gateway-target http://localhost:9000 --render`

const chatShortDesc string = "Interactive chat through the freedom gateway"

func NewChatCmd() *cobra.Command {
	return newChatCmd(&chatCommander{flags: config.Registry})
}

func newChatCmd(cmder *chatCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, cmder.flags, chatFlags)
			cmder.gatewayTarget = v.GetString("client.gateway_target")
			cmder.model = v.GetString("client.model")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			cmder.err = cmd.ErrOrStderr()
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, cmder.flags, config.FlagGatewayTarget, &cmder.gatewayTarget)
	config.AddStringFlag(cmd, cmder.flags, config.FlagModel, &cmder.model)
	cmd.Flags().BoolVarP(&cmder.render, "render", "r", false, "Request whole replies and render them as markdown")

	return cmd
}

// conversation is the in-memory state of one chat: the message history and
// the session token for the next turn.
type conversation struct {
	messages  []llm.ChatMessage
	sessionID string
}

func (c *conversation) reset() {
	c.messages = nil
	c.sessionID = ""
}

func (c *chatCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithFormat(logger.FormatPretty),
		logger.WithWriter(c.err),
	)

	client := newGatewayClient(c.gatewayTarget, &http.Client{
		// Replies can take a while to finish streaming.
		Timeout: 5 * time.Minute,
	}, c.logger)

	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "  %s %s\n", c.style(cliui.KeyStyle.Render("Gateway:")), c.style(cliui.DimStyle.Render(c.gatewayTarget)))
	fmt.Fprintf(c.out, "  %s %s\n\n", c.style(cliui.KeyStyle.Render("Model:")), c.style(cliui.NameStyle.Render(c.model)))
	fmt.Fprintf(c.out, "  %s\n\n", c.style(cliui.DimStyle.Render("Type your message and press Enter. /new starts over, /exit or Ctrl+D quits.")))

	conv := &conversation{}
	scanner := bufio.NewScanner(c.in)

	for {
		fmt.Fprint(c.out, c.style(cliui.UserPrompt))
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/exit":
			fmt.Fprintln(c.out)
			return nil
		case "/new":
			conv.reset()
			fmt.Fprintf(c.out, "  %s New conversation\n\n", c.style(cliui.SuccessMark))
			continue
		}

		if err := c.turn(ctx, client, conv, input); err != nil {
			fmt.Fprintf(c.err, "  %s %v\n\n", cliui.ForWriter(c.err, cliui.FailMark), err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(c.out)
	return nil
}

// turn sends one user message and records the reply. A failed turn leaves
// the history unchanged so the message can be retried.
func (c *chatCommander) turn(ctx context.Context, client *gatewayClient, conv *conversation, input string) error {
	req := &llm.ChatRequest{
		Model:    c.model,
		Messages: append(conv.messages, llm.ChatMessage{Role: llm.RoleUser, Content: input}),
		Stream:   !c.render,
	}

	var onDelta func(string)
	if req.Stream {
		fmt.Fprint(c.out, c.style(cliui.AssistantPrompt))
		onDelta = func(delta string) { fmt.Fprint(c.out, delta) }
	}

	r, err := client.complete(ctx, req, conv.sessionID, onDelta)
	if r != nil {
		// Even a rejected turn hands back the token to use next.
		conv.sessionID = r.SessionID
	}
	if err != nil {
		if req.Stream {
			fmt.Fprintln(c.out)
		}
		return err
	}

	conv.messages = append(req.Messages, llm.NewAssistantMessage(r.Content))

	if req.Stream {
		fmt.Fprint(c.out, "\n\n")
		return nil
	}

	fmt.Fprintln(c.out, c.style(cliui.AssistantPrompt))
	fmt.Fprintln(c.out, c.renderReply(r.Content))
	return nil
}

// style drops terminal styling when the output is not a terminal.
func (c *chatCommander) style(s string) string {
	return cliui.ForWriter(c.out, s)
}

// renderReply renders markdown when writing to a terminal and falls back to
// the raw text otherwise.
func (c *chatCommander) renderReply(content string) string {
	if !cliui.IsTerminal(c.out) {
		return content
	}

	rendered, err := cliui.RenderMarkdown(content)
	if err != nil {
		c.logger.Debug("markdown render failed", "error", err)
		return content
	}
	return rendered
}
