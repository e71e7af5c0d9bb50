// Pawprint - APRS live map core for Direwolf and AllStarLink nodes
// Copyright 2026 KI9NG
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ki9ng/pawprint

// Package store holds the authoritative in-memory model: current station
// records, per-station bounded track history, the operator's own position,
// the active geographic filter, and the message log. All mutation funnels
// through the Store's operation set under one mutex, and every mutation is
// published to the event sink inside the critical section so subscribers see
// per-station changes in the order they were applied.
package store

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ki9ng/pawprint/internal/aprs"
	"github.com/ki9ng/pawprint/internal/geo"
	"github.com/ki9ng/pawprint/internal/logging"
	"github.com/ki9ng/pawprint/internal/models"
)

const (
	// maxTrackPoints bounds one station's history: a week of one-minute
	// beacons at 5-minute spacing headroom.
	maxTrackPoints = 2016

	// maxMessages bounds the retained message log.
	maxMessages = 200

	// dedupEpsilon is the positional identity threshold in degrees. Two
	// consecutive fixes closer than this on both axes are one track point.
	dedupEpsilon = 1e-4

	// centerDriftKM is how far the filter center must move before the feed
	// subscription is worth re-issuing.
	centerDriftKM = 2.0

	// MinRetentionHours and MinRadiusKM are the configuration floors.
	// Values below them are rejected at the boundary.
	MinRetentionHours = 1
	MinRadiusKM       = 10
)

// EventSink receives store mutations for fan-out. Publish must never block;
// the hub satisfies this with a buffered enqueue that drops on overflow.
type EventSink interface {
	Publish(event models.Event)
}

// Config carries the store's initial settings.
type Config struct {
	OwnCallsign    string
	RetentionHours int
	RadiusKM       int
	DefaultCenter  models.Position
}

// Store is the single shared-mutable resource of the core.
type Store struct {
	mu sync.Mutex

	ownCallsign string

	stations map[string]*models.Station
	tracks   map[string][]models.TrackPoint
	messages []models.Message
	msgSeq   int

	ownPos         *models.Position
	filter         models.FilterState
	retentionHours int

	feedConnected bool
	agwConnected  bool

	sink   EventSink
	notify func()

	logger zerolog.Logger
}

// New builds an empty store. The sink may be nil when no live stream is
// attached (tests).
func New(cfg Config, sink EventSink) *Store {
	retention := cfg.RetentionHours
	if retention < MinRetentionHours {
		retention = MinRetentionHours
	}
	radius := cfg.RadiusKM
	if radius < MinRadiusKM {
		radius = MinRadiusKM
	}
	center := cfg.DefaultCenter
	return &Store{
		ownCallsign: cfg.OwnCallsign,
		stations:    make(map[string]*models.Station),
		tracks:      make(map[string][]models.TrackPoint),
		filter: models.FilterState{
			Center:   &center,
			RadiusKM: radius,
		},
		retentionHours: retention,
		sink:           sink,
		logger:         logging.With().Str("component", "store").Logger(),
	}
}

// SetDirtyNotifier installs the persistence callback invoked after every
// mutation. The callback must not block; the persister uses a non-blocking
// channel send.
func (s *Store) SetDirtyNotifier(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = fn
}

// OwnCallsign reports the operator callsign the store was built with.
func (s *Store) OwnCallsign() string {
	return s.ownCallsign
}

// UpsertResult reports what one Upsert did, so the caller can log it.
type UpsertResult struct {
	Created       bool
	TrackAppended bool
	Station       models.Station
}

// Upsert inserts or updates the station identified by the fix, appending a
// track point when the position is new and the station is not an object.
// A record evicted earlier is recreated fresh; history does not resurrect.
func (s *Store) Upsert(fix aprs.Fix, dst, raw string, now time.Time) UpsertResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, exists := s.stations[fix.Callsign]
	if !exists {
		st = &models.Station{Callsign: fix.Callsign}
		s.stations[fix.Callsign] = st
	}

	lat, lon := fix.Lat, fix.Lon
	st.Lat = &lat
	st.Lon = &lon
	st.SymbolTable = fix.SymbolTable
	st.Symbol = fix.Symbol
	st.IsObject = fix.IsObject
	st.Gateway = fix.Gateway
	if fix.Comment != "" {
		st.Comment = fix.Comment
	}
	if dst != "" {
		st.To = dst
	}
	if raw != "" {
		st.Raw = raw
		st.PacketType = packetType(raw)
	}
	if now.After(st.LastHeard) {
		st.LastHeard = now
	}
	st.PacketCount++

	appended := false
	if !fix.IsObject {
		appended = s.appendTrackPoint(fix.Callsign, fix.Lat, fix.Lon, now)
	}

	res := UpsertResult{Created: !exists, TrackAppended: appended, Station: *st}

	s.publish(models.Event{Type: models.EventStationUpdate, Data: res.Station})
	if appended {
		s.publish(models.Event{Type: models.EventTrackPoint, Data: models.TrackPointEvent{
			Callsign: fix.Callsign,
			Point:    models.TrackPoint{Lat: fix.Lat, Lon: fix.Lon, At: now},
		}})
	}
	s.markDirty()
	return res
}

// Touch bumps last-heard and the packet counter for an already-known
// station, for traffic that carries no position. It never creates a record
// and never fabricates a position.
func (s *Store) Touch(callsign, raw string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stations[callsign]
	if !ok {
		return false
	}
	if now.After(st.LastHeard) {
		st.LastHeard = now
	}
	st.PacketCount++
	if raw != "" {
		st.Raw = raw
		st.PacketType = packetType(raw)
	}
	s.publish(models.Event{Type: models.EventStationUpdate, Data: *st})
	s.markDirty()
	return true
}

// AppendOwnTrackPoint records the operator's own movement. The own callsign
// never gets a station record; its beacons carry only a track, the own
// position, and the filter center.
func (s *Store) AppendOwnTrackPoint(lat, lon float64, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.appendTrackPoint(s.ownCallsign, lat, lon, now) {
		return false
	}
	s.publish(models.Event{Type: models.EventTrackPoint, Data: models.TrackPointEvent{
		Callsign: s.ownCallsign,
		Point:    models.TrackPoint{Lat: lat, Lon: lon, At: now},
	}})
	s.markDirty()
	return true
}

// appendTrackPoint applies the dedup rule and the history bounds. Caller
// holds the lock.
func (s *Store) appendTrackPoint(callsign string, lat, lon float64, now time.Time) bool {
	track := s.tracks[callsign]
	if n := len(track); n > 0 {
		last := track[n-1]
		if math.Abs(last.Lat-lat) < dedupEpsilon && math.Abs(last.Lon-lon) < dedupEpsilon {
			return false
		}
	}

	track = append(track, models.TrackPoint{Lat: lat, Lon: lon, At: now})
	track = pruneTrack(track, s.retentionCutoff(now))
	if len(track) > maxTrackPoints {
		track = track[len(track)-maxTrackPoints:]
	}
	s.tracks[callsign] = track
	return true
}

func (s *Store) retentionCutoff(now time.Time) time.Time {
	return now.Add(-time.Duration(s.retentionHours) * time.Hour)
}

func pruneTrack(track []models.TrackPoint, cutoff time.Time) []models.TrackPoint {
	i := 0
	for i < len(track) && track[i].At.Before(cutoff) {
		i++
	}
	return track[i:]
}

// EvictStale removes every station silent longer than the retention window
// and prunes survivors' tracks. Returns the evicted callsigns.
func (s *Store) EvictStale(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictStaleLocked(now)
}

func (s *Store) evictStaleLocked(now time.Time) []string {
	cutoff := s.retentionCutoff(now)

	var evicted []string
	for call, st := range s.stations {
		if st.LastHeard.Before(cutoff) {
			evicted = append(evicted, call)
		}
	}
	for _, call := range evicted {
		delete(s.stations, call)
		delete(s.tracks, call)
		s.publish(models.Event{Type: models.EventStationRemove, Data: models.StationRemoveEvent{Callsign: call}})
	}
	for call, track := range s.tracks {
		s.tracks[call] = pruneTrack(track, cutoff)
	}

	if len(evicted) > 0 {
		s.logger.Info().Int("count", len(evicted)).Msg("evicted stale stations")
		s.markDirty()
	}
	return evicted
}

// ClearAll removes every station and track unconditionally.
func (s *Store) ClearAll() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := make([]string, 0, len(s.stations))
	for call := range s.stations {
		evicted = append(evicted, call)
	}
	for _, call := range evicted {
		delete(s.stations, call)
		s.publish(models.Event{Type: models.EventStationRemove, Data: models.StationRemoveEvent{Callsign: call}})
	}
	s.tracks = make(map[string][]models.TrackPoint)

	s.logger.Info().Int("count", len(evicted)).Msg("cleared all stations")
	s.markDirty()
	return evicted
}

// SetRetention updates the silence threshold and immediately evicts anything
// the new window makes stale. Values below the floor are rejected and the
// prior value retained.
func (s *Store) SetRetention(hours int, now time.Time) ([]string, error) {
	if hours < MinRetentionHours {
		return nil, fmt.Errorf("retention below minimum of %d hours: %d", MinRetentionHours, hours)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.retentionHours = hours
	evicted := s.evictStaleLocked(now)
	s.markDirty()
	return evicted, nil
}

// RetentionHours reports the current silence threshold.
func (s *Store) RetentionHours() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retentionHours
}

// SetFilterRadius updates the feed subscription radius. Values below the
// floor are rejected and the prior value retained.
func (s *Store) SetFilterRadius(radiusKM int) error {
	if radiusKM < MinRadiusKM {
		return fmt.Errorf("radius below minimum of %d km: %d", MinRadiusKM, radiusKM)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter.RadiusKM = radiusKM
	s.publish(models.Event{Type: models.EventFilterUpdate, Data: s.filterCopyLocked()})
	s.markDirty()
	return nil
}

// UpdateOwnPosition replaces the operator's own position and recomputes the
// filter center. Reports whether the center drifted far enough that the feed
// subscription should be re-issued.
func (s *Store) UpdateOwnPosition(lat, lon float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	moved := true
	if s.filter.Center != nil && s.ownPos != nil {
		moved = geo.DistanceKM(s.filter.Center.Lat, s.filter.Center.Lon, lat, lon) > centerDriftKM
	}

	s.ownPos = &models.Position{Lat: lat, Lon: lon}
	s.publish(models.Event{Type: models.EventPosition, Data: *s.ownPos})

	if moved {
		s.filter.Center = &models.Position{Lat: lat, Lon: lon}
		s.publish(models.Event{Type: models.EventFilterUpdate, Data: s.filterCopyLocked()})
	}
	s.markDirty()
	return moved
}

// Filter returns a copy of the active geographic filter.
func (s *Store) Filter() models.FilterState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterCopyLocked()
}

func (s *Store) filterCopyLocked() models.FilterState {
	f := models.FilterState{RadiusKM: s.filter.RadiusKM}
	if s.filter.Center != nil {
		c := *s.filter.Center
		f.Center = &c
	}
	return f
}

// SetFeedConnected records the feed link state and publishes a status event.
func (s *Store) SetFeedConnected(up bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.feedConnected == up {
		return
	}
	s.feedConnected = up
	s.publish(models.Event{Type: models.EventStatus, Data: models.StatusEvent{
		FeedConnected: s.feedConnected,
		AGWConnected:  s.agwConnected,
	}})
}

// SetAGWConnected records the transmit link state and publishes a status
// event.
func (s *Store) SetAGWConnected(up bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.agwConnected == up {
		return
	}
	s.agwConnected = up
	s.publish(models.Event{Type: models.EventStatus, Data: models.StatusEvent{
		FeedConnected: s.feedConnected,
		AGWConnected:  s.agwConnected,
	}})
}

// NextMsgID issues the next outbound message number.
func (s *Store) NextMsgID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgSeq++
	return fmt.Sprintf("%d", s.msgSeq)
}

// AppendMessage records one message in the bounded log and publishes it.
func (s *Store) AppendMessage(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)
	if len(s.messages) > maxMessages {
		s.messages = s.messages[len(s.messages)-maxMessages:]
	}
	s.publish(models.Event{Type: models.EventMessage, Data: msg})
	s.markDirty()
}

// SetMessageStatus updates the delivery status of the outbound message to
// toCall carrying msgID.
func (s *Store) SetMessageStatus(toCall, msgID, status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setMessageStatusLocked(toCall, msgID, status, models.EventMessageStatus)
}

// ResolveAck marks the outbound message that fromCall just acknowledged.
func (s *Store) ResolveAck(fromCall, msgID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setMessageStatusLocked(fromCall, msgID, models.MessageStatusAcked, models.EventAck)
}

func (s *Store) setMessageStatusLocked(toCall, msgID, status, eventType string) bool {
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := &s.messages[i]
		if m.Direction == "tx" && m.To == toCall && m.MsgID == msgID {
			m.Status = status
			s.publish(models.Event{Type: eventType, Data: models.MessageStatusEvent{
				To:     toCall,
				MsgID:  msgID,
				Status: status,
			}})
			s.markDirty()
			return true
		}
	}
	return false
}

// Messages returns a copy of the retained message log, oldest first.
func (s *Store) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Snapshot takes a consistent point-in-time copy of the whole model.
func (s *Store) Snapshot() models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := models.Snapshot{
		Stations:       make([]models.Station, 0, len(s.stations)),
		Tracks:         make(map[string][]models.TrackPoint, len(s.tracks)),
		Filter:         s.filterCopyLocked(),
		RetentionHours: s.retentionHours,
		FeedConnected:  s.feedConnected,
		AGWConnected:   s.agwConnected,
	}
	for _, st := range s.stations {
		snap.Stations = append(snap.Stations, *st)
	}
	for call, track := range s.tracks {
		cp := make([]models.TrackPoint, len(track))
		copy(cp, track)
		snap.Tracks[call] = cp
	}
	if s.ownPos != nil {
		p := *s.ownPos
		snap.OwnPosition = &p
	}
	return snap
}

// Tracks returns per-station track copies restricted to the given age, or
// all retained points when maxAge is zero.
func (s *Store) Tracks(maxAge time.Duration, now time.Time) map[string][]models.TrackPoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]models.TrackPoint, len(s.tracks))
	for call, track := range s.tracks {
		filtered := track
		if maxAge > 0 {
			filtered = pruneTrack(track, now.Add(-maxAge))
		}
		if len(filtered) == 0 {
			continue
		}
		cp := make([]models.TrackPoint, len(filtered))
		copy(cp, filtered)
		out[call] = cp
	}
	return out
}

// StationCount reports the number of known stations.
func (s *Store) StationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stations)
}

// publish enqueues one event while holding the lock. The sink's enqueue is
// non-blocking; delivery happens in the hub goroutine.
func (s *Store) publish(ev models.Event) {
	if s.sink != nil {
		s.sink.Publish(ev)
	}
}

func (s *Store) markDirty() {
	if s.notify != nil {
		s.notify()
	}
}

// packetType classifies a raw packet by its info field's data type
// identifier, for display only.
func packetType(raw string) string {
	pkt, err := aprs.ParsePacket(raw)
	if err != nil || pkt.Info == "" {
		return ""
	}
	switch pkt.Info[0] {
	case '!', '=', '/', '@':
		return "position"
	case ';':
		return "object"
	case ':':
		return "message"
	case '>':
		return "status"
	case 'T':
		return "telemetry"
	case '_':
		return "weather"
	default:
		return "other"
	}
}
