// Pawprint - APRS live map core for Direwolf and AllStarLink nodes
// Copyright 2026 KI9NG
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ki9ng/pawprint

package services

import (
	"context"
	"time"

	"github.com/ki9ng/pawprint/internal/logging"
	"github.com/ki9ng/pawprint/internal/metrics"
	"github.com/ki9ng/pawprint/internal/store"
)

const defaultEvictionInterval = time.Hour

// Janitor periodically evicts stations not heard within the retention
// window. Retention changes through the API evict immediately; this service
// covers stations that simply go quiet.
type Janitor struct {
	store    *store.Store
	interval time.Duration
}

func NewJanitor(st *store.Store, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = defaultEvictionInterval
	}
	return &Janitor{store: st, interval: interval}
}

// Serve implements suture.Service.
func (j *Janitor) Serve(ctx context.Context) error {
	metrics.Stations.Set(float64(j.store.StationCount()))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			removed := j.store.EvictStale(now)
			if len(removed) > 0 {
				logging.Info().Int("evicted", len(removed)).Msg("stale stations evicted")
			}
			metrics.Stations.Set(float64(j.store.StationCount()))
		}
	}
}

func (j *Janitor) String() string {
	return "janitor"
}
