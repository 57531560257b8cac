// Package config loads process settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds settings shared by the server and the CLI.
type Config struct {
	Port          string   `yaml:"port" validate:"required,numeric"`
	DatabaseURL   string   `yaml:"database_url"`
	LogMode       string   `yaml:"log_mode" validate:"oneof=dev prod"`
	AppVersion    string   `yaml:"app_version" validate:"required"`
	CORSOrigins   []string `yaml:"cors_origins" validate:"dive,url"`
	PresetWorkers int      `yaml:"preset_workers" validate:"gte=1,lte=64"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:          "8080",
		LogMode:       "dev",
		AppVersion:    "0.0.0-dev",
		CORSOrigins:   []string{"http://localhost:5173", "http://127.0.0.1:5173"},
		PresetWorkers: 4,
	}
}

// Load reads path (if non-empty), applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		c.Port = v
	}
	if v, ok := lookup("DATABASE_URL"); ok {
		c.DatabaseURL = v
	}
	if v, ok := lookup("LOG_MODE"); ok && v != "" {
		c.LogMode = v
	}
	if v, ok := lookup("APP_VERSION"); ok && v != "" {
		c.AppVersion = v
	}
	if v, ok := lookup("CORS_ORIGINS"); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.CORSOrigins = origins
	}
	if v, ok := lookup("PRESET_WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PRESET_WORKERS: %w", err)
		}
		c.PresetWorkers = n
	}
	return nil
}
