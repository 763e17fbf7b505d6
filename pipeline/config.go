package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// Config contains all pipeline configuration options.
type Config struct {
	// Backend selection
	Backend string `yaml:"backend" env:"ANIMATEKIT_BACKEND" envDefault:"ovc"`

	// Device is the device selector passed to the compiler, e.g. "CPU",
	// "GPU" or "AUTO". It is an explicit constructor parameter; nothing
	// is patched at runtime to force a device.
	Device string `yaml:"device" env:"ANIMATEKIT_DEVICE" envDefault:"CPU"`

	// Paths
	ModelsDir string `yaml:"models_dir" env:"ANIMATEKIT_MODELS_DIR" envDefault:"models"`
	OutputDir string `yaml:"output_dir" env:"ANIMATEKIT_OUTPUT_DIR" envDefault:"output"`

	// Generation settings
	Frames        int     `yaml:"frames" env:"ANIMATEKIT_FRAMES" envDefault:"16"`
	Steps         int     `yaml:"steps" env:"ANIMATEKIT_STEPS" envDefault:"25"`
	GuidanceScale float64 `yaml:"guidance_scale" env:"ANIMATEKIT_GUIDANCE_SCALE" envDefault:"3.5"`
	Seed          int64   `yaml:"seed" env:"ANIMATEKIT_SEED" envDefault:"42"`

	// Backend-specific configurations
	OVC  OVCConfig  `yaml:"ovc"`
	Mock MockConfig `yaml:"mock"`
}

// OVCConfig contains settings for the external converter toolchain.
type OVCConfig struct {
	Binary    string        `yaml:"binary" env:"ANIMATEKIT_OVC_BINARY" envDefault:"ovc"`
	ExtraArgs []string      `yaml:"extra_args"`
	Timeout   time.Duration `yaml:"timeout" env:"ANIMATEKIT_OVC_TIMEOUT" envDefault:"10m"`
}

// MockConfig contains mock backend settings for testing.
type MockConfig struct {
	ConversionDelay time.Duration `yaml:"conversion_delay" env:"ANIMATEKIT_MOCK_CONVERSION_DELAY" envDefault:"0ms"`
	FailureRate     float64       `yaml:"failure_rate" env:"ANIMATEKIT_MOCK_FAILURE_RATE" envDefault:"0.0"`
}

// knownDevices are the device selectors the compiler accepts.
var knownDevices = []string{"CPU", "GPU", "NPU", "AUTO"}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:       "ovc",
		Device:        "CPU",
		ModelsDir:     "models",
		OutputDir:     "output",
		Frames:        16,
		Steps:         25,
		GuidanceScale: 3.5,
		Seed:          42,
		OVC:           DefaultOVCConfig(),
		Mock:          DefaultMockConfig(),
	}
}

// DefaultOVCConfig returns default converter toolchain settings.
func DefaultOVCConfig() OVCConfig {
	return OVCConfig{
		Binary:  "ovc",
		Timeout: 10 * time.Minute,
	}
}

// DefaultMockConfig returns default mock backend settings.
func DefaultMockConfig() MockConfig {
	return MockConfig{}
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	if c.Backend != "ovc" && c.Backend != "mock" {
		return fmt.Errorf("%w: %q", ErrBackendUnknown, c.Backend)
	}

	device := strings.ToUpper(c.Device)
	found := false
	for _, d := range knownDevices {
		if device == d || strings.HasPrefix(device, d+".") {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %q", ErrUnknownDevice, c.Device)
	}

	if c.ModelsDir == "" {
		return fmt.Errorf("%w: models_dir must not be empty", ErrInvalidConfig)
	}
	if c.Frames < 1 || c.Frames > 256 {
		return fmt.Errorf("%w: frames must be between 1 and 256, got %d", ErrInvalidConfig, c.Frames)
	}
	if c.Steps < 1 || c.Steps > 1000 {
		return fmt.Errorf("%w: steps must be between 1 and 1000, got %d", ErrInvalidConfig, c.Steps)
	}
	if c.GuidanceScale < 0 || c.GuidanceScale > 50 {
		return fmt.Errorf("%w: guidance_scale must be between 0 and 50, got %.2f", ErrInvalidConfig, c.GuidanceScale)
	}
	if c.Mock.FailureRate < 0 || c.Mock.FailureRate > 1 {
		return fmt.Errorf("%w: mock failure_rate must be between 0 and 1", ErrInvalidConfig)
	}
	return nil
}
