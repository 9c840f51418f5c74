// SPDX-License-Identifier: GPL-3.0-only

// Package config loads the daemon configuration from a YAML file, a .env
// file and ASD_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/shini4i/asd-adaptive-brightness/internal/als"
	"github.com/shini4i/asd-adaptive-brightness/internal/storage"
)

const appName = "asd-adaptive-brightness"

// Ambient light sensor types.
const (
	ALSIIO    = "iio"
	ALSTime   = "time"
	ALSMQTT   = "mqtt"
	ALSStatic = "static"
)

// Content luminance source types.
const (
	LumaNone = "none"
	LumaFile = "file"
)

// DefaultSenseInterval is the delay between two sensing cycles.
const DefaultSenseInterval = 500 * time.Millisecond

// Config is the daemon configuration.
type Config struct {
	SenseInterval     time.Duration `yaml:"sense_interval"`
	Persistent        bool          `yaml:"persistent"`
	Storage           string        `yaml:"storage"`
	DataDir           string        `yaml:"data_dir"`
	FatalDeviceErrors bool          `yaml:"fatal_device_errors"`
	StudioDisplays    bool          `yaml:"studio_displays"`

	// Backlights restricts the controlled backlights. Empty means every
	// backlight found under /sys/class/backlight.
	Backlights []string `yaml:"backlights"`

	ALS     ALS     `yaml:"als"`
	Luma    Luma    `yaml:"luma"`
	Metrics Metrics `yaml:"metrics"`
}

// ALS selects and configures the ambient light sensor.
type ALS struct {
	Type string `yaml:"type"`

	// Path is the IIO device directory. Empty means auto-discovery.
	Path string `yaml:"path"`

	// Thresholds maps an hour of the day to a lux value for the time sensor.
	Thresholds map[uint8]uint64 `yaml:"thresholds"`

	// Lux is the value reported by the static sensor.
	Lux uint64 `yaml:"lux"`

	MQTT MQTT `yaml:"mqtt"`
}

// MQTT configures a remote sensor publishing to a broker.
type MQTT struct {
	Broker     string        `yaml:"broker"`
	Topic      string        `yaml:"topic"`
	ClientID   string        `yaml:"client_id"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	Key        string        `yaml:"key"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

// Luma selects the content luminance source.
type Luma struct {
	Type string `yaml:"type"`

	// Path is the screenshot file read by the file source.
	Path string `yaml:"path"`
}

// Metrics configures the HTTP metrics endpoint.
type Metrics struct {
	// Listen is the address to serve on. Empty disables the endpoint.
	Listen string `yaml:"listen"`
}

// Default returns the configuration used when nothing is configured.
func Default() Config {
	return Config{
		SenseInterval:  DefaultSenseInterval,
		Persistent:     true,
		Storage:        storage.KindYAML,
		DataDir:        DefaultDataDir(),
		StudioDisplays: true,
		ALS: ALS{
			Type:       ALSIIO,
			Thresholds: maps.Clone(als.DefaultThresholds),
			MQTT: MQTT{
				ClientID:   appName,
				Key:        als.DefaultMQTTKey,
				StaleAfter: als.DefaultStaleAfter,
			},
		},
		Luma: Luma{Type: LumaNone},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/asd-adaptive-brightness/config.yaml.
func DefaultPath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), appName, "config.yaml")
}

// DefaultDataDir returns $XDG_DATA_HOME/asd-adaptive-brightness.
func DefaultDataDir() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share")), appName)
}

func xdgDir(env, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fallback
	}
	return filepath.Join(home, fallback)
}

// Load reads the configuration file at path on top of the defaults, applies
// environment overrides and validates the result. A missing file is not an
// error.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// A configured table replaces the default one instead of merging into it.
		cfg.ALS.Thresholds = nil
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if cfg.ALS.Thresholds == nil {
		cfg.ALS.Thresholds = maps.Clone(als.DefaultThresholds)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v, ok := lookupEnvTrimmed("ASD_SENSE_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ASD_SENSE_INTERVAL: %w", err)
		}
		cfg.SenseInterval = d
	}
	if v, ok := lookupEnvTrimmed("ASD_PERSISTENT"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ASD_PERSISTENT: %w", err)
		}
		cfg.Persistent = b
	}
	if v, ok := lookupEnvTrimmed("ASD_DATA_DIR"); ok {
		cfg.DataDir = v
	}
	if v, ok := lookupEnvTrimmed("ASD_STORAGE"); ok {
		cfg.Storage = v
	}
	if v, ok := lookupEnvTrimmed("ASD_ALS"); ok {
		cfg.ALS.Type = v
	}
	if v, ok := lookupEnvTrimmed("ASD_METRICS_LISTEN"); ok {
		cfg.Metrics.Listen = v
	}
	return nil
}

func lookupEnvTrimmed(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.SenseInterval <= 0 {
		return errors.New("sense_interval must be positive")
	}

	switch c.Storage {
	case storage.KindYAML, storage.KindSQLite:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	}

	if c.Persistent && c.DataDir == "" {
		return errors.New("data_dir is required in persistent mode")
	}

	switch c.ALS.Type {
	case ALSIIO, ALSStatic:
	case ALSTime:
		if len(c.ALS.Thresholds) == 0 {
			return errors.New("als.thresholds must not be empty")
		}
		for hour := range c.ALS.Thresholds {
			if hour > 23 {
				return fmt.Errorf("als.thresholds: invalid hour %d", hour)
			}
		}
	case ALSMQTT:
		if c.ALS.MQTT.Broker == "" || c.ALS.MQTT.Topic == "" {
			return errors.New("als.mqtt.broker and als.mqtt.topic are required")
		}
		if c.ALS.MQTT.StaleAfter < 0 {
			return errors.New("als.mqtt.stale_after must not be negative")
		}
	default:
		return fmt.Errorf("unknown als type %q", c.ALS.Type)
	}

	switch c.Luma.Type {
	case LumaNone, "":
	case LumaFile:
		if c.Luma.Path == "" {
			return errors.New("luma.path is required for the file source")
		}
	default:
		return fmt.Errorf("unknown luma type %q", c.Luma.Type)
	}

	seen := make(map[string]struct{}, len(c.Backlights))
	for _, name := range c.Backlights {
		if name == "" {
			return errors.New("backlights: empty output name")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("backlights: duplicate output %q", name)
		}
		seen[name] = struct{}{}
	}

	return nil
}
