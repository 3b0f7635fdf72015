package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/fkcurrie/rgbmatrix-golang/pkg/gpio"
	"github.com/fkcurrie/rgbmatrix-golang/pkg/rgbmatrix"
)

// Config represents the application configuration
type Config struct {
	Display DisplayConfig `yaml:"display"`
	GPIO    GPIOConfig    `yaml:"gpio"`
	Refresh RefreshConfig `yaml:"refresh"`
	Log     LogConfig     `yaml:"log"`
}

// DisplayConfig describes the panel chain and how it is rendered.
type DisplayConfig struct {
	rgbmatrix.Geometry  `yaml:",inline"`
	BrightnessDepth     int  `yaml:"brightness_depth"`
	LuminanceCorrection bool `yaml:"luminance_correction"`
}

// GPIOConfig selects the signal interface.
type GPIOConfig struct {
	Backend string `yaml:"backend"`
	Chip    string `yaml:"chip"`
	// Mapping names a built-in pinout; Pins overrides it when set.
	Mapping string           `yaml:"mapping"`
	Pins    *gpio.PinMapping `yaml:"pins,omitempty"`
}

// RefreshConfig tunes the refresh thread.
type RefreshConfig struct {
	BaseDwell     time.Duration `yaml:"base_dwell"`
	Priority      int           `yaml:"priority"`
	CPUs          []int         `yaml:"cpus"`
	StatsInterval time.Duration `yaml:"stats_interval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads the configuration from a YAML file. Missing fields keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the default configuration: one 32x32 panel on the
// Adafruit HAT driven through the GPIO character device.
func Default() *Config {
	return &Config{
		Display: DisplayConfig{
			Geometry: rgbmatrix.Geometry{
				PanelWidth:  32,
				PanelHeight: 32,
				Rows:        1,
				Cols:        1,
			},
			BrightnessDepth: rgbmatrix.MaxBrightnessDepth,
		},
		GPIO: GPIOConfig{
			Backend: gpio.BackendChip,
			Chip:    "gpiochip0",
			Mapping: gpio.MappingAdafruitHAT.Name,
		},
		Refresh: RefreshConfig{
			BaseDwell:     rgbmatrix.DefaultBaseDwell,
			Priority:      rgbmatrix.DefaultPriority,
			StatsInterval: rgbmatrix.DefaultStatsInterval,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Validate checks the configuration without touching hardware.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Display.Geometry.Validate(); err != nil {
		errs = append(errs, err)
	}
	if d := c.Display.BrightnessDepth; d < rgbmatrix.MinBrightnessDepth || d > rgbmatrix.MaxBrightnessDepth {
		errs = append(errs, fmt.Errorf("brightness_depth %d out of range", d))
	}
	switch c.GPIO.Backend {
	case gpio.BackendChip, gpio.BackendPeriph, gpio.BackendRPIO:
	default:
		errs = append(errs, fmt.Errorf("unknown gpio backend %q", c.GPIO.Backend))
	}
	if m, err := c.PinMapping(); err != nil {
		errs = append(errs, err)
	} else if err := m.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Refresh.BaseDwell < 0 {
		errs = append(errs, fmt.Errorf("base_dwell %s is negative", c.Refresh.BaseDwell))
	}
	if c.Refresh.Priority > 99 {
		errs = append(errs, fmt.Errorf("priority %d above 99", c.Refresh.Priority))
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	return errors.Join(errs...)
}

// PinMapping returns the configured pinout.
func (c *Config) PinMapping() (gpio.PinMapping, error) {
	if c.GPIO.Pins != nil {
		return *c.GPIO.Pins, nil
	}
	return gpio.MappingByName(c.GPIO.Mapping)
}

// Matrix builds the matrix configuration. The signal interface is left
// for the caller to attach.
func (c *Config) Matrix(logger *zerolog.Logger) (*rgbmatrix.Config, error) {
	m, err := c.PinMapping()
	if err != nil {
		return nil, err
	}
	return &rgbmatrix.Config{
		Geometry:            c.Display.Geometry,
		Mapping:             m,
		BrightnessDepth:     c.Display.BrightnessDepth,
		LuminanceCorrection: c.Display.LuminanceCorrection,
		Refresh: rgbmatrix.RefreshConfig{
			BaseDwell:     c.Refresh.BaseDwell,
			Priority:      c.Refresh.Priority,
			CPUs:          c.Refresh.CPUs,
			StatsInterval: c.Refresh.StatsInterval,
		},
		Logger: logger,
	}, nil
}
