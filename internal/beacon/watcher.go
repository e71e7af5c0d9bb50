// Pawprint - APRS live map core for Direwolf and AllStarLink nodes
// Copyright 2026 KI9NG
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ki9ng/pawprint

// Package beacon tails the Direwolf console log to discover the operator's
// own position, which APRS-IS never echoes back. Each new line is stripped
// of terminal control sequences and scanned for a transmitted beacon; a hit
// replaces the own position, appends an own track point, and recenters the
// feed filter.
//
// The watcher survives log rotation, truncation, and a missing file; it
// simply resumes when the source reappears.
package beacon

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ki9ng/pawprint/internal/aprs"
	"github.com/ki9ng/pawprint/internal/logging"
	"github.com/ki9ng/pawprint/internal/metrics"
	"github.com/ki9ng/pawprint/internal/store"
)

const (
	pollInterval = 500 * time.Millisecond

	// seedWindow is how many trailing log lines are scanned at startup,
	// most recent first, to recover the last beacon written before a
	// restart.
	seedWindow = 200

	maxLineBytes = 64 * 1024
)

// ansiRe strips terminal escape sequences before the printable filter runs,
// so a color code's bracket cannot leak into the channel-tag match.
var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// FilterPusher re-issues the feed filter after the center moves. The feed
// ingestor satisfies this.
type FilterPusher interface {
	UpdateFilter() error
}

// Watcher follows the transmitter log for one operator callsign.
type Watcher struct {
	path   string
	call   string
	store  *store.Store
	pusher FilterPusher

	// beaconRe anchors on a bracketed channel tag followed by the
	// operator's own callsign as packet source. The tag is any
	// non-whitespace token: the same beacon shows up tagged differently
	// depending on which interface transmitted it.
	beaconRe *regexp.Regexp

	logger zerolog.Logger
}

// New builds a watcher for the given log path. pusher may be nil.
func New(path, callsign string, st *store.Store, pusher FilterPusher) *Watcher {
	return &Watcher{
		path:   path,
		call:   strings.ToUpper(callsign),
		store:  st,
		pusher: pusher,
		beaconRe: regexp.MustCompile(
			`\[\S+\]\s+(` + regexp.QuoteMeta(strings.ToUpper(callsign)) + `>[A-Za-z0-9,*-]+:.*)$`),
		logger: logging.With().Str("component", "beacon").Logger(),
	}
}

// Serve seeds from recent history, then tails the log until the context is
// cancelled. I/O failures are logged and retried, never fatal.
func (w *Watcher) Serve(ctx context.Context) error {
	if err := w.seedFromHistory(); err != nil {
		w.logger.Warn().Err(err).Str("path", w.path).Msg("could not seed from log history")
	}
	return w.tail(ctx)
}

func (w *Watcher) String() string {
	return "beacon-watcher"
}

// seedFromHistory scans the last seedWindow lines most recent first and
// applies the first parseable beacon, closing the gap where no new line is
// written between restarts.
func (w *Watcher) seedFromHistory() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}

	lines := strings.Split(string(data), "\n")
	if len(lines) > seedWindow {
		lines = lines[len(lines)-seedWindow:]
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if w.applyLine(lines[i]) {
			w.logger.Info().Str("path", w.path).Msg("seeded own position from log history")
			return nil
		}
	}
	return nil
}

// tail polls the log for appended bytes, reopening on rotation or
// truncation.
func (w *Watcher) tail(ctx context.Context) error {
	var (
		file    *os.File
		offset  int64
		partial []byte
	)
	defer func() {
		if file != nil {
			_ = file.Close()
		}
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		info, err := os.Stat(w.path)
		if err != nil {
			// Source gone; drop the handle and wait for it to return.
			if file != nil {
				_ = file.Close()
				file = nil
				partial = partial[:0]
			}
			continue
		}

		if file == nil {
			file, err = os.Open(w.path)
			if err != nil {
				continue
			}
			// Start from the end: history was handled by the seed scan.
			offset, _ = file.Seek(0, io.SeekEnd)
			partial = partial[:0]
		}

		if info.Size() < offset {
			// Truncated or rotated in place: start over from the top.
			if _, err := file.Seek(0, io.SeekStart); err != nil {
				_ = file.Close()
				file = nil
				continue
			}
			offset = 0
			partial = partial[:0]
			w.logger.Info().Str("path", w.path).Msg("log truncated, rereading from start")
		}

		if info.Size() == offset {
			continue
		}

		buf := make([]byte, info.Size()-offset)
		n, err := file.ReadAt(buf, offset)
		if err != nil && err != io.EOF {
			_ = file.Close()
			file = nil
			continue
		}
		offset += int64(n)

		partial = append(partial, buf[:n]...)
		for {
			nl := bytes.IndexByte(partial, '\n')
			if nl < 0 {
				break
			}
			line := string(partial[:nl])
			partial = partial[nl+1:]
			w.applyLine(line)
		}
		if len(partial) > maxLineBytes {
			partial = partial[:0]
		}
	}
}

// applyLine scans one raw log line for an own beacon and applies it.
// Reports whether the line carried one.
func (w *Watcher) applyLine(raw string) bool {
	line := sanitize(raw)
	m := w.beaconRe.FindStringSubmatch(line)
	if m == nil {
		metrics.BeaconLines.WithLabelValues(metrics.OutcomeNoFix).Inc()
		return false
	}

	pkt, err := aprs.ParsePacket(m[1])
	if err != nil {
		metrics.BeaconLines.WithLabelValues(metrics.OutcomeMalformed).Inc()
		return false
	}
	fix, ok := aprs.ExtractFix(pkt.Src, pkt.Info)
	if !ok {
		metrics.BeaconLines.WithLabelValues(metrics.OutcomeNoFix).Inc()
		return false
	}

	now := time.Now()
	w.store.AppendOwnTrackPoint(fix.Lat, fix.Lon, now)
	moved := w.store.UpdateOwnPosition(fix.Lat, fix.Lon)
	metrics.BeaconLines.WithLabelValues(metrics.OutcomePosition).Inc()
	w.logger.Debug().
		Float64("lat", fix.Lat).
		Float64("lon", fix.Lon).
		Bool("recentered", moved).
		Msg("own beacon parsed")

	if moved && w.pusher != nil {
		if err := w.pusher.UpdateFilter(); err != nil {
			w.logger.Debug().Err(err).Msg("filter push after recenter failed")
		}
	}
	return true
}

// sanitize removes ANSI escape sequences and non-printable bytes. Direwolf
// interleaves color codes and the occasional raw control byte with packet
// text.
func sanitize(line string) string {
	line = ansiRe.ReplaceAllString(line, "")
	var b strings.Builder
	b.Grow(len(line))
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c >= 0x20 && c < 0x7f {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Path reports the log file being followed, for status output.
func (w *Watcher) Path() string {
	return w.path
}

var _ fmt.Stringer = (*Watcher)(nil)
