// Pawprint - APRS live map core for Direwolf and AllStarLink nodes
// Copyright 2026 KI9NG
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ki9ng/pawprint

// Package config loads Pawprint's configuration from layered sources with
// koanf: struct defaults, then an optional YAML file, then environment
// variables.
package config

import (
	"fmt"

	"github.com/ki9ng/pawprint/internal/validation"
)

// Config is the complete runtime configuration.
type Config struct {
	Station  StationConfig  `koanf:"station"`
	Feed     FeedConfig     `koanf:"feed"`
	AGW      AGWConfig      `koanf:"agw"`
	Direwolf DirewolfConfig `koanf:"direwolf"`
	Map      MapConfig      `koanf:"map"`
	Server   ServerConfig   `koanf:"server"`
	Data     DataConfig     `koanf:"data"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// StationConfig identifies the operator.
type StationConfig struct {
	// Callsign with optional SSID, e.g. KI9NG-10.
	Callsign string `koanf:"callsign" validate:"required,callsign"`

	// SymbolTable and Symbol select the map glyph for manual beacons.
	SymbolTable string `koanf:"symbol_table" validate:"len=1"`
	Symbol      string `koanf:"symbol" validate:"len=1"`

	// Comment is appended to manual beacons.
	Comment string `koanf:"comment" validate:"max=43"`
}

// FeedConfig is the APRS-IS endpoint.
type FeedConfig struct {
	Host string `koanf:"host" validate:"required"`
	Port int    `koanf:"port" validate:"min=1,max=65535"`
	// Passcode 0 means compute it from the callsign.
	Passcode int `koanf:"passcode" validate:"min=0"`
}

// AGWConfig is the local Direwolf AGWPE port for outbound messages.
type AGWConfig struct {
	Host string `koanf:"host" validate:"required"`
	Port int    `koanf:"port" validate:"min=1,max=65535"`
}

// DirewolfConfig locates the transmitter console log.
type DirewolfConfig struct {
	LogPath string `koanf:"log_path" validate:"required"`
}

// MapConfig carries the station model's initial settings. RetentionHours
// and RadiusKM act as fallbacks; values persisted at runtime win over them.
type MapConfig struct {
	RetentionHours int     `koanf:"retention_hours" validate:"min=1"`
	RadiusKM       int     `koanf:"radius_km" validate:"min=10"`
	CenterLat      float64 `koanf:"center_lat" validate:"min=-90,max=90"`
	CenterLon      float64 `koanf:"center_lon" validate:"min=-180,max=180"`
}

// ServerConfig is the HTTP serving surface.
type ServerConfig struct {
	Host string `koanf:"host" validate:"required"`
	Port int    `koanf:"port" validate:"min=1,max=65535"`

	// StaticDir holds the map UI. Empty disables static serving.
	StaticDir string `koanf:"static_dir"`
}

// DataConfig locates the flat-file persistence directory.
type DataConfig struct {
	Dir string `koanf:"dir" validate:"required"`
}

// LoggingConfig mirrors the logging package's options.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

func defaultConfig() *Config {
	return &Config{
		Station: StationConfig{
			Callsign:    "",
			SymbolTable: "/",
			Symbol:      "-",
			Comment:     "pawprint",
		},
		Feed: FeedConfig{
			Host:     "rotate.aprs2.net",
			Port:     14580,
			Passcode: 0,
		},
		AGW: AGWConfig{
			Host: "127.0.0.1",
			Port: 8000,
		},
		Direwolf: DirewolfConfig{
			LogPath: "/var/log/direwolf/direwolf.log",
		},
		Map: MapConfig{
			RetentionHours: 168,
			RadiusKM:       50,
			CenterLat:      41.54,
			CenterLon:      -87.14,
		},
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      8073,
			StaticDir: "web/static",
		},
		Data: DataConfig{
			Dir: "/var/lib/pawprint",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks the configuration against its struct rules.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c.Station); err != nil {
		return fmt.Errorf("station: %w", err)
	}
	if err := validation.ValidateStruct(c.Feed); err != nil {
		return fmt.Errorf("feed: %w", err)
	}
	if err := validation.ValidateStruct(c.AGW); err != nil {
		return fmt.Errorf("agw: %w", err)
	}
	if err := validation.ValidateStruct(c.Direwolf); err != nil {
		return fmt.Errorf("direwolf: %w", err)
	}
	if err := validation.ValidateStruct(c.Map); err != nil {
		return fmt.Errorf("map: %w", err)
	}
	if err := validation.ValidateStruct(c.Server); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := validation.ValidateStruct(c.Data); err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if err := validation.ValidateStruct(c.Logging); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
