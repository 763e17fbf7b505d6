package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# Pipeline configuration
pipeline:
  # Conversion backend: ovc or mock
  backend: "ovc"
  # Inference device: CPU, GPU, NPU or AUTO. Device indexes like GPU.1
  # are allowed.
  device: "CPU"
  # Directory holding the pulled checkpoint and converted IR artifacts
  models_dir: "models"
  # Directory animation output is written to
  output_dir: "output"

  # Generation settings
  frames: 16
  steps: 25
  guidance_scale: 3.5
  seed: 42

  # External converter toolchain
  ovc:
    binary: "ovc"
    # extra_args: ["--compress-to-fp16"]
    timeout: "10m"

  # Mock backend (for testing without the toolchain)
  mock:
    conversion_delay: "0s"
    failure_rate: 0.0

# Checkpoint registry
hub:
  registry_url: "https://hub.animatekit.dev"
  # cache_dir: "~/.cache/animatekit/hub"
  concurrency: 4
  # rate_limit: 0

# Demo server
demo:
  host: "127.0.0.1"
  port: 7860
  # Exposing the demo on all interfaces is opt-in; it never happens as a
  # fallback.
  share: false
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the animatekit config file",
	Long:    paragraph(fmt.Sprintf("\n%s the animatekit config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("animatekit config\nanimatekit config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("animatekit", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil {
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
