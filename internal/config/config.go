// Package config loads and persists the daemon's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full on-disk configuration. Zero values are filled in by
// Default; Load layers the file on top of the defaults so older files with
// missing keys keep working.
type Config struct {
	LEDCount   int    `yaml:"led_count"`
	FPS        int    `yaml:"fps"`
	Brightness uint8  `yaml:"brightness"`
	ColorOrder string `yaml:"color_order"`
	Driver     string `yaml:"driver"` // spi, console or sim

	HTTP   HTTPConfig   `yaml:"http"`
	SPI    SPIConfig    `yaml:"spi"`
	Sacn   SacnConfig   `yaml:"sacn"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	Prompt PromptConfig `yaml:"prompt"`
}

type HTTPConfig struct {
	Addr      string `yaml:"addr"`
	AuthToken string `yaml:"auth_token"`
}

type SPIConfig struct {
	Device  string `yaml:"device"`
	SpeedHz int64  `yaml:"speed_hz"`
}

type SacnConfig struct {
	Enabled       bool          `yaml:"enabled"`
	StartUniverse uint16        `yaml:"start_universe"`
	UniverseCount int           `yaml:"universe_count"`
	StartChannel  int           `yaml:"start_channel"`
	Unicast       bool          `yaml:"unicast"`
	AcceptPreview bool          `yaml:"accept_preview"`
	DataTimeout   time.Duration `yaml:"data_timeout"`
}

type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Prefix   string `yaml:"prefix"`
}

type PromptConfig struct {
	Enabled  bool   `yaml:"enabled"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns a runnable configuration: a 100-pixel simulated strip at
// 60 fps with the HTTP API on :8080 and everything optional switched off.
func Default() Config {
	return Config{
		LEDCount:   100,
		FPS:        60,
		Brightness: 255,
		ColorOrder: "grb",
		Driver:     "sim",
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		SPI: SPIConfig{
			Device:  "",
			SpeedHz: 2_500_000,
		},
		Sacn: SacnConfig{
			StartUniverse: 1,
			UniverseCount: 1,
			StartChannel:  1,
			DataTimeout:   5 * time.Second,
		},
		MQTT: MQTTConfig{
			Broker:   "tcp://localhost:1883",
			ClientID: "lume",
			Prefix:   "lume",
		},
		Prompt: PromptConfig{
			Model:    "claude-3-5-haiku-latest",
			Endpoint: "https://api.anthropic.com/v1/messages",
		},
	}
}

// Load reads path over the defaults. A missing file is not an error; the
// defaults are returned as-is so first boot works without any setup.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration atomically (temp file + rename).
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: mkdir %s: %w", dir, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("config: rename: %w", err)
	}
	return nil
}
