// Package config loads the server configuration from a YAML file with
// flag overrides.
package config

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ValidatorConfig names the external validator command lines.
type ValidatorConfig struct {
	Schema         []string `yaml:"schema"`
	Domain         []string `yaml:"domain"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Config holds the application configuration.
type Config struct {
	Listen       string          `yaml:"listen"`
	ObjectDriver string          `yaml:"object_driver"`
	ObjectRoot   string          `yaml:"object_root"`
	Metrics      string          `yaml:"metrics"` // prometheus|expvar|none
	WatchLive    bool            `yaml:"watch_live"`
	Validators   ValidatorConfig `yaml:"validators"`
}

// Default returns the development configuration.
func Default() Config {
	return Config{
		Listen:       ":8844",
		ObjectDriver: "fs",
		ObjectRoot:   "./objectdata",
		Metrics:      "prometheus",
		WatchLive:    true,
		Validators:   ValidatorConfig{TimeoutSeconds: 60},
	}
}

// Load reads path when it exists and merges it over the defaults. A
// missing file is not an error; the defaults stand.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseFlags parses command line flags and merges them over the config
// file.
func ParseFlags(args []string) (Config, error) {
	fs := flag.NewFlagSet("usdmd", flag.ContinueOnError)
	configPath := fs.String("config", "config.yml", "path to configuration file")
	listen := fs.String("listen", "", "listen address (overrides config)")
	driver := fs.String("object-driver", "", "object store driver: fs|memory|s3|sqlite|postgres (overrides config)")
	root := fs.String("object-root", "", "fs driver root directory (overrides config)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg, err := Load(*configPath)
	if err != nil {
		return Config{}, err
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *driver != "" {
		cfg.ObjectDriver = *driver
	}
	if *root != "" {
		cfg.ObjectRoot = *root
	}
	return cfg, nil
}

// Save writes the configuration to path.
func (c Config) Save(path string) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
