package pipeline

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// LoadConfigFromViper loads pipeline configuration from Viper.
func LoadConfigFromViper() (Config, error) {
	cfg := DefaultConfig()

	if viper.IsSet("pipeline.backend") {
		cfg.Backend = viper.GetString("pipeline.backend")
	}
	if viper.IsSet("pipeline.device") {
		cfg.Device = viper.GetString("pipeline.device")
	}
	if viper.IsSet("pipeline.models_dir") {
		cfg.ModelsDir = viper.GetString("pipeline.models_dir")
	}
	if viper.IsSet("pipeline.output_dir") {
		cfg.OutputDir = viper.GetString("pipeline.output_dir")
	}
	if viper.IsSet("pipeline.frames") {
		cfg.Frames = viper.GetInt("pipeline.frames")
	}
	if viper.IsSet("pipeline.steps") {
		cfg.Steps = viper.GetInt("pipeline.steps")
	}
	if viper.IsSet("pipeline.guidance_scale") {
		cfg.GuidanceScale = viper.GetFloat64("pipeline.guidance_scale")
	}
	if viper.IsSet("pipeline.seed") {
		cfg.Seed = viper.GetInt64("pipeline.seed")
	}

	cfg.OVC = loadOVCConfig()
	cfg.Mock = loadMockConfig()

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid pipeline configuration: %w", err)
	}
	return cfg, nil
}

// loadOVCConfig loads converter toolchain settings from Viper.
func loadOVCConfig() OVCConfig {
	cfg := DefaultOVCConfig()

	if viper.IsSet("pipeline.ovc.binary") {
		cfg.Binary = viper.GetString("pipeline.ovc.binary")
	}
	if viper.IsSet("pipeline.ovc.extra_args") {
		cfg.ExtraArgs = viper.GetStringSlice("pipeline.ovc.extra_args")
	}
	if viper.IsSet("pipeline.ovc.timeout") {
		if d, err := time.ParseDuration(viper.GetString("pipeline.ovc.timeout")); err == nil {
			cfg.Timeout = d
		}
	}
	return cfg
}

// loadMockConfig loads mock backend settings from Viper.
func loadMockConfig() MockConfig {
	cfg := DefaultMockConfig()

	if viper.IsSet("pipeline.mock.conversion_delay") {
		if d, err := time.ParseDuration(viper.GetString("pipeline.mock.conversion_delay")); err == nil {
			cfg.ConversionDelay = d
		}
	}
	if viper.IsSet("pipeline.mock.failure_rate") {
		cfg.FailureRate = viper.GetFloat64("pipeline.mock.failure_rate")
	}
	return cfg
}

// SetDefaults sets default values in Viper for pipeline configuration.
func SetDefaults() {
	defaults := DefaultConfig()

	viper.SetDefault("pipeline.backend", defaults.Backend)
	viper.SetDefault("pipeline.device", defaults.Device)
	viper.SetDefault("pipeline.models_dir", defaults.ModelsDir)
	viper.SetDefault("pipeline.output_dir", defaults.OutputDir)
	viper.SetDefault("pipeline.frames", defaults.Frames)
	viper.SetDefault("pipeline.steps", defaults.Steps)
	viper.SetDefault("pipeline.guidance_scale", defaults.GuidanceScale)
	viper.SetDefault("pipeline.seed", defaults.Seed)

	viper.SetDefault("pipeline.ovc.binary", defaults.OVC.Binary)
	viper.SetDefault("pipeline.ovc.timeout", defaults.OVC.Timeout.String())

	viper.SetDefault("pipeline.mock.conversion_delay", defaults.Mock.ConversionDelay.String())
	viper.SetDefault("pipeline.mock.failure_rate", defaults.Mock.FailureRate)
}
