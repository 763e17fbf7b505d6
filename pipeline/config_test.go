package pipeline

import (
	"testing"

	"github.com/spf13/viper"
)

func TestDefaultConfig_Valid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"gpu device", func(c *Config) { c.Device = "GPU" }, false},
		{"indexed device", func(c *Config) { c.Device = "GPU.1" }, false},
		{"auto device", func(c *Config) { c.Device = "AUTO" }, false},
		{"lowercase device", func(c *Config) { c.Device = "cpu" }, false},
		{"unknown device", func(c *Config) { c.Device = "TPU" }, true},
		{"unknown backend", func(c *Config) { c.Backend = "tensorrt" }, true},
		{"mock backend", func(c *Config) { c.Backend = "mock" }, false},
		{"empty models dir", func(c *Config) { c.ModelsDir = "" }, true},
		{"zero frames", func(c *Config) { c.Frames = 0 }, true},
		{"too many frames", func(c *Config) { c.Frames = 1000 }, true},
		{"zero steps", func(c *Config) { c.Steps = 0 }, true},
		{"negative guidance", func(c *Config) { c.GuidanceScale = -1 }, true},
		{"failure rate above one", func(c *Config) { c.Mock.FailureRate = 1.5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadConfigFromViper(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("pipeline.device", "GPU")
	viper.Set("pipeline.steps", 5)
	viper.Set("pipeline.ovc.binary", "/opt/toolchain/ovc")
	viper.Set("pipeline.ovc.timeout", "2m")

	cfg, err := LoadConfigFromViper()
	if err != nil {
		t.Fatalf("LoadConfigFromViper failed: %v", err)
	}

	if cfg.Device != "GPU" {
		t.Errorf("device = %q, want GPU", cfg.Device)
	}
	if cfg.Steps != 5 {
		t.Errorf("steps = %d, want 5", cfg.Steps)
	}
	if cfg.OVC.Binary != "/opt/toolchain/ovc" {
		t.Errorf("ovc binary = %q", cfg.OVC.Binary)
	}
	if cfg.OVC.Timeout.String() != "2m0s" {
		t.Errorf("ovc timeout = %s, want 2m0s", cfg.OVC.Timeout)
	}

	// Unset values keep their defaults.
	if cfg.Frames != DefaultConfig().Frames {
		t.Errorf("frames = %d, want default %d", cfg.Frames, DefaultConfig().Frames)
	}
}

func TestLoadConfigFromViper_InvalidRejected(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("pipeline.device", "QPU")

	if _, err := LoadConfigFromViper(); err == nil {
		t.Error("expected error for unknown device")
	}
}

func TestSetDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	SetDefaults()

	if got := viper.GetString("pipeline.backend"); got != "ovc" {
		t.Errorf("pipeline.backend default = %q, want ovc", got)
	}
	if got := viper.GetInt("pipeline.frames"); got != 16 {
		t.Errorf("pipeline.frames default = %d, want 16", got)
	}
}
