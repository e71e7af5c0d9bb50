// Pawprint - APRS live map core for Direwolf and AllStarLink nodes
// Copyright 2026 KI9NG
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ki9ng/pawprint

package store

import (
	"io"
	"testing"
	"time"

	"github.com/ki9ng/pawprint/internal/aprs"
	"github.com/ki9ng/pawprint/internal/logging"
	"github.com/ki9ng/pawprint/internal/models"
)

func TestMain(m *testing.M) {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
	m.Run()
}

// captureSink records published events. Publish runs under the store lock,
// and the tests only read after the mutating call returns.
type captureSink struct {
	events []models.Event
}

func (c *captureSink) Publish(ev models.Event) {
	c.events = append(c.events, ev)
}

func (c *captureSink) ofType(t string) []models.Event {
	var out []models.Event
	for _, ev := range c.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func newTestStore(sink EventSink) *Store {
	return New(Config{
		OwnCallsign:    "KI9NG",
		RetentionHours: 168,
		RadiusKM:       50,
		DefaultCenter:  models.Position{Lat: 41.54, Lon: -87.14},
	}, sink)
}

func fixAt(call string, lat, lon float64) aprs.Fix {
	return aprs.Fix{Callsign: call, Lat: lat, Lon: lon, SymbolTable: "/", Symbol: ">"}
}

func TestAppendOwnTrackPointCreatesNoStation(t *testing.T) {
	sink := &captureSink{}
	s := newTestStore(sink)
	now := time.Now()

	if !s.AppendOwnTrackPoint(41.505, -87.255, now) {
		t.Fatal("first own track point not appended")
	}
	// Positional identity suppresses the duplicate.
	if s.AppendOwnTrackPoint(41.505, -87.255, now.Add(time.Minute)) {
		t.Error("duplicate own position appended")
	}

	if s.StationCount() != 0 {
		t.Fatalf("station count = %d after own track points, want 0", s.StationCount())
	}
	snap := s.Snapshot()
	if len(snap.Stations) != 0 {
		t.Fatalf("stations = %+v, want empty", snap.Stations)
	}
	if got := len(snap.Tracks["KI9NG"]); got != 1 {
		t.Fatalf("own track points = %d, want 1", got)
	}

	if got := len(sink.ofType(models.EventStationUpdate)); got != 0 {
		t.Errorf("station_update events = %d for own beacon, want 0", got)
	}
	points := sink.ofType(models.EventTrackPoint)
	if len(points) != 1 {
		t.Fatalf("track_point events = %d, want 1", len(points))
	}
	if ev := points[0].Data.(models.TrackPointEvent); ev.Callsign != "KI9NG" {
		t.Errorf("track_point callsign = %q, want KI9NG", ev.Callsign)
	}
}

func TestUpsertCreatesThenUpdates(t *testing.T) {
	sink := &captureSink{}
	s := newTestStore(sink)
	now := time.Now()

	res := s.Upsert(fixAt("N9XYZ-9", 41.5, -87.2), "APRS", "N9XYZ-9>APRS:!...", now)
	if !res.Created || !res.TrackAppended {
		t.Fatalf("first upsert: created=%v appended=%v, want both true", res.Created, res.TrackAppended)
	}

	res = s.Upsert(fixAt("N9XYZ-9", 41.6, -87.2), "APRS", "", now.Add(time.Minute))
	if res.Created {
		t.Error("second upsert reported created")
	}
	if !res.TrackAppended {
		t.Error("moved station did not append a track point")
	}
	if res.Station.PacketCount != 2 {
		t.Errorf("packet count = %d, want 2", res.Station.PacketCount)
	}

	if got := len(sink.ofType(models.EventStationUpdate)); got != 2 {
		t.Errorf("station_update events = %d, want 2", got)
	}
	if got := len(sink.ofType(models.EventTrackPoint)); got != 2 {
		t.Errorf("track_point events = %d, want 2", got)
	}
}

func TestUpsertDeduplicatesIdenticalPosition(t *testing.T) {
	s := newTestStore(nil)
	now := time.Now()

	s.Upsert(fixAt("N9XYZ-9", 41.5, -87.2), "", "", now)
	res := s.Upsert(fixAt("N9XYZ-9", 41.5, -87.2), "", "", now.Add(time.Second))
	if res.TrackAppended {
		t.Error("identical position appended a second track point")
	}
	// Just inside the positional identity threshold.
	res = s.Upsert(fixAt("N9XYZ-9", 41.50005, -87.20005), "", "", now.Add(2*time.Second))
	if res.TrackAppended {
		t.Error("sub-epsilon move appended a track point")
	}

	if got := len(s.Snapshot().Tracks["N9XYZ-9"]); got != 1 {
		t.Errorf("track has %d points, want 1", got)
	}
}

func TestLastHeardNeverRegresses(t *testing.T) {
	s := newTestStore(nil)
	now := time.Now()

	s.Upsert(fixAt("N9XYZ-9", 41.5, -87.2), "", "", now)
	s.Upsert(fixAt("N9XYZ-9", 41.6, -87.2), "", "", now.Add(-time.Hour))

	snap := s.Snapshot()
	if !snap.Stations[0].LastHeard.Equal(now) {
		t.Errorf("last heard = %v, want %v", snap.Stations[0].LastHeard, now)
	}
	// The late-arriving position still applies.
	if *snap.Stations[0].Lat != 41.6 {
		t.Errorf("lat = %v, want 41.6", *snap.Stations[0].Lat)
	}
}

func TestEvictStaleBoundary(t *testing.T) {
	sink := &captureSink{}
	s := newTestStore(sink)
	now := time.Now()
	threshold := 168 * time.Hour

	s.Upsert(fixAt("OLD-1", 41.5, -87.2), "", "", now.Add(-threshold-time.Second))
	s.Upsert(fixAt("NEW-1", 41.6, -87.3), "", "", now.Add(-threshold+time.Second))

	evicted := s.EvictStale(now)
	if len(evicted) != 1 || evicted[0] != "OLD-1" {
		t.Fatalf("evicted = %v, want [OLD-1]", evicted)
	}

	snap := s.Snapshot()
	if len(snap.Stations) != 1 || snap.Stations[0].Callsign != "NEW-1" {
		t.Errorf("surviving stations = %v", snap.Stations)
	}
	if _, ok := snap.Tracks["OLD-1"]; ok {
		t.Error("evicted station left an orphaned track")
	}
	if got := len(sink.ofType(models.EventStationRemove)); got != 1 {
		t.Errorf("station_remove events = %d, want 1", got)
	}
}

func TestSetRetentionEvictsImmediately(t *testing.T) {
	s := newTestStore(nil)
	now := time.Now()

	s.Upsert(fixAt("QUIET-1", 41.5, -87.2), "", "", now.Add(-5*time.Hour))
	s.Upsert(fixAt("FRESH-1", 41.6, -87.3), "", "", now.Add(-time.Hour))

	evicted, err := s.SetRetention(4, now)
	if err != nil {
		t.Fatalf("SetRetention: %v", err)
	}
	if len(evicted) != 1 || evicted[0] != "QUIET-1" {
		t.Errorf("evicted = %v, want [QUIET-1]", evicted)
	}
	if s.RetentionHours() != 4 {
		t.Errorf("retention = %d, want 4", s.RetentionHours())
	}
}

func TestSetRetentionRejectsBelowFloor(t *testing.T) {
	s := newTestStore(nil)
	if _, err := s.SetRetention(0, time.Now()); err == nil {
		t.Error("retention 0 accepted")
	}
	if s.RetentionHours() != 168 {
		t.Errorf("retention = %d, want prior value 168", s.RetentionHours())
	}
	if err := s.SetFilterRadius(5); err == nil {
		t.Error("radius 5 accepted")
	}
	if s.Filter().RadiusKM != 50 {
		t.Errorf("radius = %d, want prior value 50", s.Filter().RadiusKM)
	}
}

func TestClearAllEmitsRemovePerStation(t *testing.T) {
	sink := &captureSink{}
	s := newTestStore(sink)
	now := time.Now()

	for _, call := range []string{"A1AAA", "B2BBB", "C3CCC"} {
		s.Upsert(fixAt(call, 41.5, -87.2), "", "", now)
	}

	evicted := s.ClearAll()
	if len(evicted) != 3 {
		t.Fatalf("evicted %d stations, want 3", len(evicted))
	}
	if got := len(sink.ofType(models.EventStationRemove)); got != 3 {
		t.Errorf("station_remove events = %d, want 3", got)
	}
	snap := s.Snapshot()
	if len(snap.Stations) != 0 || len(snap.Tracks) != 0 {
		t.Error("store not empty after ClearAll")
	}
}

func TestObjectsNeverAccrueTrackPoints(t *testing.T) {
	s := newTestStore(nil)
	now := time.Now()

	obj := aprs.Fix{Callsign: "W9ML-10", Lat: 41.8, Lon: -87.6, IsObject: true, Gateway: "WINLINK", SymbolTable: "/", Symbol: "a"}
	for i := 0; i < 5; i++ {
		obj.Lat += 0.01
		res := s.Upsert(obj, "", "", now.Add(time.Duration(i)*time.Minute))
		if res.TrackAppended {
			t.Fatal("object report appended a track point")
		}
	}

	snap := s.Snapshot()
	if len(snap.Stations) != 1 {
		t.Fatalf("stations = %d, want 1", len(snap.Stations))
	}
	st := snap.Stations[0]
	if st.Callsign != "W9ML-10" || st.Gateway != "WINLINK" || !st.IsObject {
		t.Errorf("station = %+v", st)
	}
	if len(snap.Tracks) != 0 {
		t.Errorf("object accrued tracks: %v", snap.Tracks)
	}
}

func TestEvictionDoesNotResurrectHistory(t *testing.T) {
	s := newTestStore(nil)
	now := time.Now()

	s.Upsert(fixAt("N9XYZ-9", 41.5, -87.2), "", "", now.Add(-200*time.Hour))
	s.EvictStale(now)

	res := s.Upsert(fixAt("N9XYZ-9", 41.6, -87.3), "", "", now)
	if !res.Created {
		t.Error("re-sighting after eviction did not create a fresh record")
	}
	if res.Station.PacketCount != 1 {
		t.Errorf("packet count = %d, want 1 on fresh record", res.Station.PacketCount)
	}
	if got := len(s.Snapshot().Tracks["N9XYZ-9"]); got != 1 {
		t.Errorf("track points = %d, want 1", got)
	}
}

func TestUpdateOwnPositionCenterDrift(t *testing.T) {
	sink := &captureSink{}
	s := newTestStore(sink)

	// First sighting always re-filters.
	if !s.UpdateOwnPosition(41.54, -87.14) {
		t.Error("first own position did not request a re-filter")
	}
	// ~100 m move: no re-filter.
	if s.UpdateOwnPosition(41.541, -87.14) {
		t.Error("sub-threshold drift requested a re-filter")
	}
	// ~5 km move: re-filter.
	if !s.UpdateOwnPosition(41.59, -87.14) {
		t.Error("5 km drift did not request a re-filter")
	}

	if got := len(sink.ofType(models.EventPosition)); got != 3 {
		t.Errorf("position events = %d, want 3", got)
	}
	if got := len(sink.ofType(models.EventFilterUpdate)); got != 2 {
		t.Errorf("filter_update events = %d, want 2", got)
	}

	snap := s.Snapshot()
	if snap.OwnPosition == nil || snap.OwnPosition.Lat != 41.59 {
		t.Errorf("own position = %+v", snap.OwnPosition)
	}
	if snap.Filter.Center.Lat != 41.59 {
		t.Errorf("filter center lat = %v, want 41.59", snap.Filter.Center.Lat)
	}
}

func TestTouchNeverCreates(t *testing.T) {
	s := newTestStore(nil)
	now := time.Now()

	if s.Touch("GHOST-1", "", now) {
		t.Error("Touch created a station")
	}
	s.Upsert(fixAt("N9XYZ-9", 41.5, -87.2), "", "", now)
	if !s.Touch("N9XYZ-9", "N9XYZ-9>APRS::KI9NG    :hi", now.Add(time.Minute)) {
		t.Error("Touch missed an existing station")
	}

	snap := s.Snapshot()
	if snap.Stations[0].PacketCount != 2 {
		t.Errorf("packet count = %d, want 2", snap.Stations[0].PacketCount)
	}
	if snap.Stations[0].PacketType != "message" {
		t.Errorf("packet type = %q, want message", snap.Stations[0].PacketType)
	}
}

func TestPerStationEventOrder(t *testing.T) {
	sink := &captureSink{}
	s := newTestStore(sink)
	now := time.Now()

	for i := 0; i < 5; i++ {
		s.Upsert(fixAt("N9XYZ-9", 41.5+float64(i)*0.01, -87.2), "", "", now.Add(time.Duration(i)*time.Minute))
	}

	var lats []float64
	for _, ev := range sink.ofType(models.EventTrackPoint) {
		lats = append(lats, ev.Data.(models.TrackPointEvent).Point.Lat)
	}
	if len(lats) != 5 {
		t.Fatalf("track_point events = %d, want 5", len(lats))
	}
	for i := 1; i < len(lats); i++ {
		if lats[i] <= lats[i-1] {
			t.Fatalf("events out of order: %v", lats)
		}
	}
}

func TestMessageLogBoundAndAck(t *testing.T) {
	sink := &captureSink{}
	s := newTestStore(sink)
	now := time.Now()

	id := s.NextMsgID()
	s.AppendMessage(models.Message{
		Direction: "tx", From: "KI9NG", To: "N9XYZ-9",
		Text: "see you at the net", MsgID: id, At: now,
		Status: models.MessageStatusSending,
	})
	if !s.SetMessageStatus("N9XYZ-9", id, models.MessageStatusSent) {
		t.Fatal("SetMessageStatus missed the message")
	}
	if !s.ResolveAck("N9XYZ-9", id) {
		t.Fatal("ResolveAck missed the message")
	}
	if s.ResolveAck("N9XYZ-9", "999") {
		t.Error("ResolveAck matched an unknown message number")
	}

	msgs := s.Messages()
	if msgs[0].Status != models.MessageStatusAcked {
		t.Errorf("status = %q, want acked", msgs[0].Status)
	}
	if got := len(sink.ofType(models.EventAck)); got != 1 {
		t.Errorf("ack events = %d, want 1", got)
	}

	// The log is bounded; the oldest entries fall off.
	for i := 0; i < maxMessages+50; i++ {
		s.AppendMessage(models.Message{Direction: "rx", From: "A1AAA", To: "KI9NG", Text: "x", At: now})
	}
	if got := len(s.Messages()); got != maxMessages {
		t.Errorf("message log length = %d, want %d", got, maxMessages)
	}
}

func TestTracksQueryFiltersByAge(t *testing.T) {
	s := newTestStore(nil)
	now := time.Now()

	s.Upsert(fixAt("N9XYZ-9", 41.5, -87.2), "", "", now.Add(-3*time.Hour))
	s.Upsert(fixAt("N9XYZ-9", 41.6, -87.2), "", "", now.Add(-time.Hour))

	all := s.Tracks(0, now)
	if got := len(all["N9XYZ-9"]); got != 2 {
		t.Errorf("unfiltered track points = %d, want 2", got)
	}
	recent := s.Tracks(2*time.Hour, now)
	if got := len(recent["N9XYZ-9"]); got != 1 {
		t.Errorf("filtered track points = %d, want 1", got)
	}
}

func TestStatusEventsOnLinkChange(t *testing.T) {
	sink := &captureSink{}
	s := newTestStore(sink)

	s.SetFeedConnected(true)
	s.SetFeedConnected(true) // no change, no event
	s.SetAGWConnected(true)
	s.SetFeedConnected(false)

	events := sink.ofType(models.EventStatus)
	if len(events) != 3 {
		t.Fatalf("status events = %d, want 3", len(events))
	}
	last := events[2].Data.(models.StatusEvent)
	if last.FeedConnected || !last.AGWConnected {
		t.Errorf("final status = %+v", last)
	}
}
