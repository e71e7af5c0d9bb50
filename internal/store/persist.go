// Pawprint - APRS live map core for Direwolf and AllStarLink nodes
// Copyright 2026 KI9NG
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ki9ng/pawprint

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/ki9ng/pawprint/internal/logging"
	"github.com/ki9ng/pawprint/internal/models"
)

const (
	// maxPersistedStations bounds the station file. Beyond the bound the
	// most recently heard stations win.
	maxPersistedStations = 500

	stationsFile = "stations.json"
	tracksFile   = "tracks.json"
	messagesFile = "messages.json"
	settingsFile = "settings.json"

	// saveDebounce coalesces bursts of mutations into one write.
	saveDebounce = 5 * time.Second
)

// persistedSettings is the small config record written alongside the station
// data. The legacy days field is read for migration and never written back.
type persistedSettings struct {
	RetentionHours int `json:"station_max_age_hours,omitempty"`
	LegacyMaxDays  int `json:"station_max_age_days,omitempty"`
	RadiusKM       int `json:"radius_km,omitempty"`
}

// Persister saves the store to flat JSON files in a data directory, off the
// mutation path. Mutations flip a dirty flag; a background loop debounces
// and writes.
type Persister struct {
	store  *Store
	dir    string
	dirty  chan struct{}
	logger zerolog.Logger
}

// NewPersister wires a persister to the store's dirty notifier.
func NewPersister(s *Store, dir string) *Persister {
	p := &Persister{
		store:  s,
		dir:    dir,
		dirty:  make(chan struct{}, 1),
		logger: logging.With().Str("component", "persister").Logger(),
	}
	s.SetDirtyNotifier(p.markDirty)
	return p
}

// markDirty never blocks; a pending flag absorbs bursts.
func (p *Persister) markDirty() {
	select {
	case p.dirty <- struct{}{}:
	default:
	}
}

// Load reads the persisted files into the store. Missing files are a normal
// first run. Settings carry the legacy whole-days retention unit forward by
// a one-time multiplication.
func (p *Persister) Load(now time.Time) error {
	settings := persistedSettings{}
	if err := p.readJSON(settingsFile, &settings); err != nil {
		return err
	}
	retention := settings.RetentionHours
	if retention == 0 && settings.LegacyMaxDays > 0 {
		retention = settings.LegacyMaxDays * 24
		p.logger.Info().
			Int("days", settings.LegacyMaxDays).
			Int("hours", retention).
			Msg("migrated retention from legacy day unit")
	}

	var stations []models.Station
	if err := p.readJSON(stationsFile, &stations); err != nil {
		return err
	}

	tracks := make(map[string][]models.TrackPoint)
	if err := p.readJSON(tracksFile, &tracks); err != nil {
		return err
	}

	var messages []models.Message
	if err := p.readJSON(messagesFile, &messages); err != nil {
		return err
	}

	p.store.Restore(stations, tracks, messages, retention, settings.RadiusKM)
	p.store.EvictStale(now)
	return nil
}

// readJSON decodes one data file into dst; a missing file leaves dst alone.
func (p *Persister) readJSON(name string, dst any) error {
	data, err := os.ReadFile(filepath.Join(p.dir, name))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decoding %s: %w", name, err)
	}
	return nil
}

// Serve runs the debounced save loop until the context is cancelled, then
// takes a final save.
func (p *Persister) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if err := p.Save(); err != nil {
				p.logger.Error().Err(err).Msg("final save failed")
			}
			return ctx.Err()
		case <-p.dirty:
			timer := time.NewTimer(saveDebounce)
			select {
			case <-ctx.Done():
				timer.Stop()
				if err := p.Save(); err != nil {
					p.logger.Error().Err(err).Msg("final save failed")
				}
				return ctx.Err()
			case <-timer.C:
			}
			if err := p.Save(); err != nil {
				p.logger.Error().Err(err).Msg("save failed")
			}
		}
	}
}

func (p *Persister) String() string {
	return "persister"
}

// Save writes the current snapshot to the data directory. Station output is
// bounded to the most recently heard.
func (p *Persister) Save() error {
	snap := p.store.Snapshot()

	stations := snap.Stations
	sort.Slice(stations, func(i, j int) bool {
		return stations[i].LastHeard.After(stations[j].LastHeard)
	})
	if len(stations) > maxPersistedStations {
		stations = stations[:maxPersistedStations]
	}

	settings := persistedSettings{
		RetentionHours: snap.RetentionHours,
		RadiusKM:       snap.Filter.RadiusKM,
	}

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	if err := p.writeJSON(stationsFile, stations); err != nil {
		return err
	}
	if err := p.writeJSON(tracksFile, snap.Tracks); err != nil {
		return err
	}
	if err := p.writeJSON(messagesFile, p.store.Messages()); err != nil {
		return err
	}
	return p.writeJSON(settingsFile, settings)
}

// writeJSON writes atomically: temp file in the same directory, then rename.
func (p *Persister) writeJSON(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	path := filepath.Join(p.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s: %w", name, err)
	}
	return nil
}

// Restore loads persisted state into the store without publishing events.
// Zero retention or radius keeps the store's configured value. The outbound
// message counter resumes past the highest persisted number.
func (s *Store) Restore(stations []models.Station, tracks map[string][]models.TrackPoint, messages []models.Message, retentionHours, radiusKM int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range stations {
		st := stations[i]
		s.stations[st.Callsign] = &st
	}
	for call, track := range tracks {
		if len(track) > maxTrackPoints {
			track = track[len(track)-maxTrackPoints:]
		}
		s.tracks[call] = track
	}
	if len(messages) > maxMessages {
		messages = messages[len(messages)-maxMessages:]
	}
	s.messages = append(s.messages[:0], messages...)
	for _, m := range s.messages {
		if m.Direction != "tx" {
			continue
		}
		if n, err := strconv.Atoi(m.MsgID); err == nil && n > s.msgSeq {
			s.msgSeq = n
		}
	}

	if retentionHours >= MinRetentionHours {
		s.retentionHours = retentionHours
	}
	if radiusKM >= MinRadiusKM {
		s.filter.RadiusKM = radiusKM
	}
}
