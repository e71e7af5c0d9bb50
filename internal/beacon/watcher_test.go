// Pawprint - APRS live map core for Direwolf and AllStarLink nodes
// Copyright 2026 KI9NG
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ki9ng/pawprint

package beacon

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ki9ng/pawprint/internal/logging"
	"github.com/ki9ng/pawprint/internal/models"
	"github.com/ki9ng/pawprint/internal/store"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

type countingPusher struct {
	calls atomic.Int32
}

func (p *countingPusher) UpdateFilter() error {
	p.calls.Add(1)
	return nil
}

func newTestStore() *store.Store {
	return store.New(store.Config{
		OwnCallsign:    "KI9NG",
		RetentionHours: 168,
		RadiusKM:       50,
		DefaultCenter:  models.Position{Lat: 41.54, Lon: -87.14},
	}, nil)
}

func TestSanitizeStripsControlBytes(t *testing.T) {
	in := "\x1b[92m[0L]\x1b[0m KI9NG>APRS:!4130.50N/08715.25W>\x07\x00 ok"
	want := "[0L] KI9NG>APRS:!4130.50N/08715.25W> ok"
	if got := sanitize(in); got != want {
		t.Errorf("sanitize = %q, want %q", got, want)
	}
}

func TestApplyLineParsesOwnBeacon(t *testing.T) {
	st := newTestStore()
	pusher := &countingPusher{}
	w := New("/nonexistent", "KI9NG", st, pusher)

	if !w.applyLine("[0L] KI9NG>APRS,WIDE1-1:!4130.50N/08715.25W>pawprint") {
		t.Fatal("beacon line not recognized")
	}

	snap := st.Snapshot()
	if snap.OwnPosition == nil {
		t.Fatal("own position not set")
	}
	if got := snap.OwnPosition.Lat; got < 41.50 || got > 41.52 {
		t.Errorf("own lat = %v", got)
	}
	if len(snap.Tracks["KI9NG"]) != 1 {
		t.Errorf("own track points = %d, want 1", len(snap.Tracks["KI9NG"]))
	}
	// Own beacons never enter the station list.
	for _, s := range snap.Stations {
		if s.Callsign == "KI9NG" {
			t.Errorf("own callsign listed as a station: %+v", s)
		}
	}
	if len(snap.Stations) != 0 {
		t.Errorf("stations = %d after own beacon, want 0", len(snap.Stations))
	}
	if snap.Filter.Center.Lat == 41.54 {
		t.Error("filter center not recentered on own position")
	}
	if pusher.calls.Load() != 1 {
		t.Errorf("filter pushes = %d, want 1", pusher.calls.Load())
	}

	// Same position again: no second track point, no second push.
	w.applyLine("[1L] KI9NG>APRS,WIDE1-1:!4130.50N/08715.25W>pawprint")
	if got := len(st.Snapshot().Tracks["KI9NG"]); got != 1 {
		t.Errorf("track points after duplicate = %d, want 1", got)
	}
	if pusher.calls.Load() != 1 {
		t.Errorf("filter pushes after duplicate = %d, want 1", pusher.calls.Load())
	}
}

func TestApplyLineChannelTagIsUnconstrained(t *testing.T) {
	tags := []string{"[0L]", "[1L]", "[0H]", "[ig]"}
	for _, tag := range tags {
		st := newTestStore()
		w := New("/nonexistent", "KI9NG", st, nil)
		line := fmt.Sprintf("%s KI9NG>APRS:!4130.50N/08715.25W>", tag)
		if !w.applyLine(line) {
			t.Errorf("tag %s not accepted", tag)
		}
	}
}

func TestApplyLineIgnoresOtherTraffic(t *testing.T) {
	st := newTestStore()
	w := New("/nonexistent", "KI9NG", st, nil)

	lines := []string{
		"[0.3] N9XYZ-9>APRS:!4130.50N/08715.25W>", // received, not ours
		"[0L] KI9NG-9>APRS:!4130.50N/08715.25W>",  // different SSID
		"Digipeater WIDE1 audio level = 52",       // chatter
		"[0L] KI9NG>APRS:>status with no position",
	}
	for _, line := range lines {
		if w.applyLine(line) {
			t.Errorf("line %q treated as own beacon", line)
		}
	}
	if st.Snapshot().OwnPosition != nil {
		t.Error("own position set from foreign traffic")
	}
}

func TestSeedFromHistoryUsesMostRecentBeacon(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "direwolf.log")

	content := "[0L] KI9NG>APRS:!4000.00N/08000.00W>old\n" +
		"[0.3] N9XYZ-9>APRS:!4130.50N/08715.25W>\n" +
		"[0L] KI9NG>APRS:!4200.00N/08700.00W>newer\n" +
		"Digipeater chatter line\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	st := newTestStore()
	w := New(path, "KI9NG", st, nil)
	if err := w.seedFromHistory(); err != nil {
		t.Fatalf("seed: %v", err)
	}

	pos := st.Snapshot().OwnPosition
	if pos == nil {
		t.Fatal("seed found no beacon")
	}
	if pos.Lat != 42.0 {
		t.Errorf("seeded lat = %v, want 42.0 from the newest beacon", pos.Lat)
	}
}

func TestSeedMissingFileIsNotFatal(t *testing.T) {
	st := newTestStore()
	w := New(filepath.Join(t.TempDir(), "absent.log"), "KI9NG", st, nil)
	if err := w.seedFromHistory(); err == nil {
		t.Error("expected an error for a missing file")
	}
	// Serve must keep running regardless.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := w.Serve(ctx); err != context.DeadlineExceeded {
		t.Errorf("Serve returned %v", err)
	}
}

func TestTailPicksUpAppendedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "direwolf.log")
	if err := os.WriteFile(path, []byte("startup banner\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	st := newTestStore()
	w := New(path, "KI9NG", st, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Serve(ctx) }()

	// Give the tail a moment to open and seek to the end.
	time.Sleep(2 * pollInterval)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("[0L] KI9NG>APRS,WIDE1-1:!4130.50N/08715.25W>live\n")
	_ = f.Close()

	deadline := time.Now().Add(5 * time.Second)
	for st.Snapshot().OwnPosition == nil && time.Now().Before(deadline) {
		time.Sleep(pollInterval)
	}
	if st.Snapshot().OwnPosition == nil {
		t.Fatal("appended beacon never applied")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop on cancel")
	}
}

func TestTailSurvivesTruncation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "direwolf.log")
	if err := os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	st := newTestStore()
	w := New(path, "KI9NG", st, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Serve(ctx) }()
	time.Sleep(2 * pollInterval)

	// Rotate: truncate to empty, then write a fresh beacon.
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * pollInterval)
	if err := os.WriteFile(path, []byte("[0L] KI9NG>APRS:!4130.50N/08715.25W>after rotate\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for st.Snapshot().OwnPosition == nil && time.Now().Before(deadline) {
		time.Sleep(pollInterval)
	}
	if st.Snapshot().OwnPosition == nil {
		t.Fatal("beacon after truncation never applied")
	}
}
