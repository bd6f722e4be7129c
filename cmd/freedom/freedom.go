// Package freedomcmder
package freedomcmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/freedom/cmd/freedom/chat"
	configcmder "github.com/papercomputeco/freedom/cmd/freedom/config"
	initcmder "github.com/papercomputeco/freedom/cmd/freedom/init"
	servecmder "github.com/papercomputeco/freedom/cmd/freedom/serve"
	versioncmder "github.com/papercomputeco/freedom/cmd/version"
)

const freedomLongDesc string = `Freedom is an OpenAI-style gateway to the duckchat conversational backend.

Run the gateway and talk to it:
  freedom serve       Run the gateway
  freedom chat        Chat through a running gateway
  freedom init        Create a local .freedom/ directory
  freedom config      Manage persistent configuration`

const freedomShortDesc string = "Freedom - duckchat gateway"

func NewFreedomCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "freedom",
		Short:         freedomShortDesc,
		Long:          freedomLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .freedom/ directory holding config.toml")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
