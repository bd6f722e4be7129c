// Package configcmder provides the config command for managing persistent
// freedom configuration stored in the .freedom/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/freedom/pkg/cliui"
	"github.com/papercomputeco/freedom/pkg/config"
)

const configLongDesc string = `Manage persistent freedom configuration.

Configuration is stored as config.toml in the .freedom/ directory and provides
default values for command flags. CLI flags and FREEDOM_* environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  gateway.listen, gateway.metrics,
  backend.base_url, backend.status_path, backend.chat_path,
  backend.user_agent, backend.read_timeout,
  eventstream.provider, eventstream.brokers, eventstream.topic,
  client.gateway_target, client.model

Use subcommands to get, set, or list configuration values:
  freedom config set <key> <value>    Set a configuration value
  freedom config get <key>            Get a configuration value
  freedom config list                 List all configuration values

Examples:
  freedom config set gateway.metrics true
  freedom config set eventstream.brokers kafka-1:9092,kafka-2:9092
  freedom config get backend.read_timeout
  freedom config list`

const configShortDesc string = "Manage persistent freedom configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// completeKeys offers config keys for the first positional argument.
func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func unknownKeyError(key string) error {
	return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
		key, strings.Join(config.ValidConfigKeys(), ", "))
}

// printTarget reports which config file a command reads or writes.
func printTarget(w io.Writer, target string) {
	if target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}
