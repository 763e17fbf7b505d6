// Package main provides the entry point for the animatekit CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/animatekit/pipeline"
	"github.com/dgnsrekt/animatekit/pipeline/backends/mock"
	"github.com/dgnsrekt/animatekit/pipeline/backends/ovc"
	"github.com/dgnsrekt/animatekit/utils"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile  string
	backendName string
	device      string
	modelsDir   string
	mouse       bool

	rootCmd = &cobra.Command{
		Use:   "animatekit",
		Short: "Convert, compile and run image animation models on the CLI",
		Long: paragraph(
			fmt.Sprintf("\nPull an %s checkpoint, convert its stages to IR once, and run the compiled pipeline locally.", keyword("image animation")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
	}
)

// loadPipelineConfig resolves the pipeline configuration from the config
// file, environment and flags.
func loadPipelineConfig() (pipeline.Config, error) {
	cfg, err := pipeline.LoadConfigFromViper()
	if err != nil {
		return cfg, err
	}

	cfg.ModelsDir = utils.ExpandPath(cfg.ModelsDir)
	cfg.OutputDir = utils.ExpandPath(cfg.OutputDir)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// newBackend builds the configured conversion backend.
func newBackend(cfg pipeline.Config) (pipeline.Backend, error) {
	switch cfg.Backend {
	case "mock":
		b := mock.New()
		b.SetDelay(cfg.Mock.ConversionDelay)
		return b, nil
	case "ovc":
		return ovc.New(cfg.OVC), nil
	default:
		return nil, fmt.Errorf("%w: %q", pipeline.ErrBackendUnknown, cfg.Backend)
	}
}

// checkpointDir is where pulled checkpoint files live under the models dir.
func checkpointDir(cfg pipeline.Config) string {
	return filepath.Join(cfg.ModelsDir, "checkpoint")
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().StringVarP(&backendName, "backend", "b", "", "conversion backend (ovc or mock)")
	rootCmd.PersistentFlags().StringVarP(&device, "device", "d", "", "inference device (CPU, GPU, NPU or AUTO)")
	rootCmd.PersistentFlags().StringVarP(&modelsDir, "models-dir", "M", "", "directory holding checkpoints and IR artifacts")
	rootCmd.PersistentFlags().BoolVarP(&mouse, "mouse", "m", false, "enable mouse wheel (TUI-mode only)")
	_ = rootCmd.PersistentFlags().MarkHidden("mouse")

	_ = viper.BindPFlag("pipeline.backend", rootCmd.PersistentFlags().Lookup("backend"))
	_ = viper.BindPFlag("pipeline.device", rootCmd.PersistentFlags().Lookup("device"))
	_ = viper.BindPFlag("pipeline.models_dir", rootCmd.PersistentFlags().Lookup("models-dir"))
	_ = viper.BindPFlag("mouse", rootCmd.PersistentFlags().Lookup("mouse"))

	pipeline.SetDefaults()

	rootCmd.AddCommand(
		pullCmd,
		convertCmd,
		runCmd,
		demoCmd,
		infoCmd,
		ciCmd,
		configCmd,
		manCmd,
	)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "animatekit")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "animatekit")}, dirs...)
	}

	if c := os.Getenv("ANIMATEKIT_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("animatekit")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("animatekit")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "animatekit.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
