package main

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the CLI configuration, loaded from an optional YAML file
// and overridden by PARLEY_* environment variables and flags.
type Config struct {
	APIURL       string `yaml:"api_url"`
	WSURL        string `yaml:"ws_url"`
	SessionToken string `yaml:"session_token"`
	LogLevel     string `yaml:"log_level"`
}

func loadConfig(path string) (Config, error) {
	cfg := Config{
		APIURL:   "http://localhost:8000/api/v1",
		WSURL:    "ws://localhost:8000/chat",
		LogLevel: "info",
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse config %s", path)
		}
	}
	if v := os.Getenv("PARLEY_API_URL"); v != "" {
		cfg.APIURL = v
	}
	if v := os.Getenv("PARLEY_WS_URL"); v != "" {
		cfg.WSURL = v
	}
	if v := os.Getenv("PARLEY_SESSION_TOKEN"); v != "" {
		cfg.SessionToken = v
	}
	if v := os.Getenv("PARLEY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}
