package main

import (
	"github.com/banshee-data/markerpose/internal/config"
)

// flagOverrides are command-line values that win over file and
// environment configuration when set.
type flagOverrides struct {
	Fixtures   string
	SerialPort string
	LogLevel   string
}

func loadSettings(configPath, envPath string, flags flagOverrides, getenv func(string) string) (config.Settings, error) {
	if envPath != "" {
		if err := config.LoadDotEnv(envPath); err != nil {
			return config.Settings{}, err
		}
	}

	cfg := &config.Config{}
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return config.Settings{}, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return config.Settings{}, err
	}

	if flags.Fixtures != "" {
		cfg.FixturesPath = &flags.Fixtures
	}
	if flags.SerialPort != "" {
		cfg.SerialPort = &flags.SerialPort
	}
	if flags.LogLevel != "" {
		cfg.LogLevel = &flags.LogLevel
	}
	return cfg.Resolve()
}
