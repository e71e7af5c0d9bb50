// Pawprint - APRS live map core for Direwolf and AllStarLink nodes
// Copyright 2026 KI9NG
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ki9ng/pawprint

// Package main is the entry point for the Pawprint server.
//
// Pawprint tracks APRS activity around an AllStarLink/Direwolf node and
// serves a live map of it. Packets arrive from two sources:
//
//   - APRS-IS: a filtered internet feed centered on the node's own position
//   - Direwolf: the node's own transmissions, tailed from its log file
//
// Both flow into a single in-memory station store. Mutations fan out over a
// WebSocket hub to connected map viewers and are periodically persisted to
// disk, so a restart comes back with the map already populated.
//
// # Configuration
//
// Settings load via Koanf with layered sources (highest priority wins):
// environment variables, then an optional YAML file (PAWPRINT_CONFIG or
// ./pawprint.yaml or /etc/pawprint/pawprint.yaml), then built-in defaults.
// Only MYCALL is required:
//
//	export MYCALL=KI9NG
//	./pawprint
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains,
// the persister writes a final snapshot, and the feed disconnects.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ki9ng/pawprint/internal/agw"
	"github.com/ki9ng/pawprint/internal/api"
	"github.com/ki9ng/pawprint/internal/beacon"
	"github.com/ki9ng/pawprint/internal/config"
	"github.com/ki9ng/pawprint/internal/feed"
	"github.com/ki9ng/pawprint/internal/hub"
	"github.com/ki9ng/pawprint/internal/logging"
	"github.com/ki9ng/pawprint/internal/models"
	"github.com/ki9ng/pawprint/internal/store"
	"github.com/ki9ng/pawprint/internal/supervisor"
	"github.com/ki9ng/pawprint/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("callsign", cfg.Station.Callsign).
		Str("feed", fmt.Sprintf("%s:%d", cfg.Feed.Host, cfg.Feed.Port)).
		Str("direwolf_log", cfg.Direwolf.LogPath).
		Str("data_dir", cfg.Data.Dir).
		Msg("Starting Pawprint")

	// The store publishes into the hub and the hub snapshots the store, so
	// one side is wired through a closure.
	var st *store.Store
	eventHub := hub.New(func() models.Snapshot { return st.Snapshot() })
	st = store.New(store.Config{
		OwnCallsign:    cfg.Station.Callsign,
		RetentionHours: cfg.Map.RetentionHours,
		RadiusKM:       cfg.Map.RadiusKM,
		DefaultCenter:  models.Position{Lat: cfg.Map.CenterLat, Lon: cfg.Map.CenterLon},
	}, eventHub)

	persister := store.NewPersister(st, cfg.Data.Dir)
	if err := persister.Load(time.Now()); err != nil {
		logging.Warn().Err(err).Msg("Could not restore persisted state, starting empty")
	} else {
		logging.Info().Int("stations", st.StationCount()).Msg("Persisted state restored")
	}

	ingestor := feed.New(feed.Config{
		Host:     cfg.Feed.Host,
		Port:     cfg.Feed.Port,
		Callsign: cfg.Station.Callsign,
		Passcode: cfg.Feed.Passcode,
	}, st)

	watcher := beacon.New(cfg.Direwolf.LogPath, cfg.Station.Callsign, st, ingestor)

	agwClient := agw.New(agw.Config{
		Host:     cfg.AGW.Host,
		Port:     cfg.AGW.Port,
		Callsign: cfg.Station.Callsign,
	})
	defer func() {
		if err := agwClient.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing AGW connection")
		}
	}()

	handler := api.NewHandler(st, eventHub, ingestor, agwClient, api.BeaconIdentity{
		SymbolTable: cfg.Station.SymbolTable,
		Symbol:      cfg.Station.Symbol,
		Comment:     cfg.Station.Comment,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewRouter(handler, cfg.Server.StaticDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddCoreService(eventHub)
	tree.AddCoreService(persister)
	tree.AddCoreService(services.NewJanitor(st, time.Hour))
	tree.AddIngestService(ingestor)
	tree.AddIngestService(watcher)
	tree.AddAPIService(services.NewHTTPServerService(httpServer, 10*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", httpServer.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Pawprint stopped")
}
