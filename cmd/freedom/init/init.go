// Package initcmder provides the init command for initializing a local
// .freedom directory in the current working directory.
package initcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/freedom/pkg/cliui"
	"github.com/papercomputeco/freedom/pkg/config"
)

const (
	dirName    = ".freedom"
	configFile = "config.toml"

	// remoteConfigLimit caps the size of a downloaded preset.
	remoteConfigLimit = 1 << 20
)

const initLongDesc string = `Initialize a new .freedom/ directory in the current working directory.

Creates a local .freedom/ directory, which takes precedence over ~/.freedom/,
and writes a config.toml. Without --preset the defaults are written unless a
config.toml already exists.

--preset takes a preset name or an http(s) URL pointing at a config.toml and
always replaces the existing config.toml.

Presets:
  default    Gateway on :8080, no metrics, no exchange events
  kafka      Metrics on, exchange events to Kafka at localhost:9092

Examples:
  freedom init
  freedom init --preset kafka
  freedom init --preset https://example.com/freedom/config.toml`

const initShortDesc string = "Initialize a local .freedom/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.Context(), cmd.OutOrStdout(), preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Preset name ("+strings.Join(config.ValidPresetNames(), ", ")+") or URL of a config.toml")

	return cmd
}

func runInit(ctx context.Context, w io.Writer, preset string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating .freedom directory: %w", err)
	}

	path := filepath.Join(dir, configFile)

	if preset == "" {
		_, err := os.Stat(path)
		switch {
		case err == nil:
			fmt.Fprintf(w, "Already initialized: %s\n", dir)
			return nil
		case !errors.Is(err, os.ErrNotExist):
			return fmt.Errorf("checking config: %w", err)
		}
		preset = config.PresetDefault
	}

	cfg, err := resolvePreset(ctx, preset)
	if err != nil {
		return err
	}

	cfger, err := config.NewConfiger(dir, true)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(w, "  %s Initialized %s %s\n",
		cliui.SuccessMark,
		cliui.DimStyle.Render(dir),
		cliui.NameStyle.Render("("+preset+")"),
	)
	return nil
}

// resolvePreset returns a named preset, or downloads and parses a config.toml
// when preset is a URL.
func resolvePreset(ctx context.Context, preset string) (*config.Config, error) {
	if !strings.HasPrefix(preset, "http://") && !strings.HasPrefix(preset, "https://") {
		return config.PresetConfig(preset)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, preset, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, remoteConfigLimit))
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	return config.ParseConfigTOML(data)
}
