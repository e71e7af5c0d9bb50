// Pawprint - APRS live map core for Direwolf and AllStarLink nodes
// Copyright 2026 KI9NG
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ki9ng/pawprint

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where the config file is searched, first hit
// wins.
var DefaultConfigPaths = []string{
	"pawprint.yaml",
	"pawprint.yml",
	"/etc/pawprint/pawprint.yaml",
	"/etc/pawprint/pawprint.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "PAWPRINT_CONFIG"

// Load builds the configuration from layered sources:
//  1. struct defaults
//  2. optional YAML config file
//  3. environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling configuration: %w", err)
	}
	cfg.Station.Callsign = strings.ToUpper(strings.TrimSpace(cfg.Station.Callsign))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to config paths.
// Unmapped variables are skipped so ambient environment noise cannot leak
// into the configuration.
func envTransformFunc(key string) string {
	envMappings := map[string]string{
		"mycall":            "station.callsign",
		"station_callsign":  "station.callsign",
		"beacon_symbol":     "station.symbol",
		"beacon_table":      "station.symbol_table",
		"beacon_comment":    "station.comment",
		"aprs_is_host":      "feed.host",
		"aprs_is_port":      "feed.port",
		"aprs_is_passcode":  "feed.passcode",
		"agw_host":          "agw.host",
		"agw_port":          "agw.port",
		"direwolf_log":      "direwolf.log_path",
		"retention_hours":   "map.retention_hours",
		"filter_radius_km":  "map.radius_km",
		"center_lat":        "map.center_lat",
		"center_lon":        "map.center_lon",
		"http_host":         "server.host",
		"http_port":         "server.port",
		"static_dir":        "server.static_dir",
		"data_dir":          "data.dir",
		"log_level":         "logging.level",
		"log_format":        "logging.format",
		"log_caller":        "logging.caller",
	}

	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
