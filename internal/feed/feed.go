// Pawprint - APRS live map core for Direwolf and AllStarLink nodes
// Copyright 2026 KI9NG
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ki9ng/pawprint

// Package feed maintains the APRS-IS connection: login with a geographic
// filter, a read loop routing every packet into the store, reconnect with
// backoff, and in-band filter updates when the operator's position drifts.
//
// The feed never supplies the operator's own position. APRS-IS does not echo
// a station's own traffic back to it, and even a theoretical echo must not
// bypass the log watcher, which is the single source for own position.
package feed

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ki9ng/pawprint/internal/aprs"
	"github.com/ki9ng/pawprint/internal/geo"
	"github.com/ki9ng/pawprint/internal/logging"
	"github.com/ki9ng/pawprint/internal/metrics"
	"github.com/ki9ng/pawprint/internal/models"
	"github.com/ki9ng/pawprint/internal/store"
)

const (
	softwareName    = "pawprint"
	softwareVersion = "2.4"

	dialTimeout      = 10 * time.Second
	initialBackoff   = time.Second
	maxBackoff       = 60 * time.Second
	filterCheckEvery = 30 * time.Second

	// healthyUptime is how long a connection must survive before a drop
	// restarts the backoff ladder from the bottom.
	healthyUptime = 60 * time.Second

	// filterDriftKM is how far the center may drift from the last filter
	// expression sent before a new one is pushed.
	filterDriftKM = 2.0
)

// Config carries the feed endpoint and login identity.
type Config struct {
	Host     string
	Port     int
	Callsign string
	// Passcode overrides the computed login passcode when non-zero.
	Passcode int
}

// Ingestor is the APRS-IS client. It satisfies suture's Service interface
// through Serve.
type Ingestor struct {
	cfg   Config
	store *store.Store

	mu         sync.Mutex
	conn       net.Conn
	sentFilter models.FilterState

	logger zerolog.Logger
}

// New builds an ingestor over the given store.
func New(cfg Config, st *store.Store) *Ingestor {
	if cfg.Passcode == 0 {
		cfg.Passcode = aprs.Passcode(cfg.Callsign)
	}
	return &Ingestor{
		cfg:    cfg,
		store:  st,
		logger: logging.With().Str("component", "feed").Logger(),
	}
}

// Serve runs the connect/read loop until the context is cancelled.
// Connection failures back off exponentially and never propagate.
func (in *Ingestor) Serve(ctx context.Context) error {
	backoff := initialBackoff
	for {
		started := time.Now()
		if err := in.runConnection(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			backoff = nextRetryDelay(backoff, time.Since(started))
			in.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("feed connection lost")
		}
		in.store.SetFeedConnected(false)

		metrics.FeedReconnects.Inc()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (in *Ingestor) String() string {
	return "feed-ingestor"
}

// nextRetryDelay keeps the carried backoff across quick failures but
// restarts the ladder after a connection that stayed up.
func nextRetryDelay(carried, uptime time.Duration) time.Duration {
	if uptime >= healthyUptime {
		return initialBackoff
	}
	return carried
}

// runConnection dials, logs in, and reads packets until the connection
// breaks or the context is cancelled.
func (in *Ingestor) runConnection(ctx context.Context) error {
	addr := net.JoinHostPort(in.cfg.Host, fmt.Sprintf("%d", in.cfg.Port))
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer conn.Close()

	// Tear the blocking read down when the context goes.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	filter := in.store.Filter()
	login := in.loginLine(filter)
	if _, err := fmt.Fprintf(conn, "%s\r\n", login); err != nil {
		return fmt.Errorf("sending login: %w", err)
	}

	in.mu.Lock()
	in.conn = conn
	in.sentFilter = filter
	in.mu.Unlock()
	defer func() {
		in.mu.Lock()
		in.conn = nil
		in.mu.Unlock()
	}()

	in.logger.Info().Str("server", addr).Str("filter", filterExpr(filter)).Msg("connected to feed")
	in.store.SetFeedConnected(true)

	// Periodic center drift check runs beside the read loop.
	driftCtx, cancelDrift := context.WithCancel(ctx)
	defer cancelDrift()
	go in.filterDriftLoop(driftCtx)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line[0] == '#' {
			in.handleServerComment(line)
			continue
		}
		in.processLine(line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading feed: %w", err)
	}
	return fmt.Errorf("feed closed the connection")
}

func (in *Ingestor) loginLine(filter models.FilterState) string {
	return fmt.Sprintf("user %s pass %d vers %s %s filter %s",
		in.cfg.Callsign, in.cfg.Passcode, softwareName, softwareVersion, filterExpr(filter))
}

func filterExpr(filter models.FilterState) string {
	center := models.Position{}
	if filter.Center != nil {
		center = *filter.Center
	}
	return fmt.Sprintf("r/%.2f/%.2f/%d", center.Lat, center.Lon, filter.RadiusKM)
}

// handleServerComment logs the login response. An unverified login still
// receives traffic; it only blocks transmitting into the network.
func (in *Ingestor) handleServerComment(line string) {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "unverified"):
		in.logger.Warn().Str("response", line).Msg("feed login unverified, receive only")
	case strings.Contains(lower, "verified"):
		in.logger.Info().Str("response", line).Msg("feed login verified")
	default:
		in.logger.Debug().Str("comment", line).Msg("feed server comment")
	}
}

// processLine routes one raw packet. Malformed traffic is counted and
// skipped; nothing here may stop the read loop.
func (in *Ingestor) processLine(line string) {
	pkt, err := aprs.ParsePacket(line)
	if err != nil {
		metrics.PacketsReceived.WithLabelValues(metrics.OutcomeMalformed).Inc()
		return
	}

	// Own traffic is never taken from the feed; the log watcher is the
	// single source for the operator's position.
	if strings.EqualFold(pkt.Src, in.store.OwnCallsign()) {
		return
	}

	if msg, ok := aprs.ParseMessage(pkt.Info); ok {
		in.handleMessage(pkt, msg)
		metrics.PacketsReceived.WithLabelValues(metrics.OutcomeMessage).Inc()
		return
	}

	if fix, ok := aprs.ExtractFix(pkt.Src, pkt.Info); ok {
		res := in.store.Upsert(fix, pkt.Dst, pkt.Raw, time.Now())
		metrics.PacketsReceived.WithLabelValues(metrics.OutcomePosition).Inc()
		metrics.Stations.Set(float64(in.store.StationCount()))
		if res.Created {
			in.logger.Debug().Str("callsign", fix.Callsign).Msg("new station heard")
		}
		return
	}

	// No position: bump last-heard for known stations only.
	in.store.Touch(pkt.Src, pkt.Raw, time.Now())
	metrics.PacketsReceived.WithLabelValues(metrics.OutcomeNoFix).Inc()
}

// handleMessage applies inbound message traffic. Messages addressed to the
// operator land in the message log; message numbers are acknowledged back
// through the feed.
func (in *Ingestor) handleMessage(pkt aprs.Packet, msg aprs.Message) {
	in.store.Touch(pkt.Src, pkt.Raw, time.Now())

	if !strings.EqualFold(msg.Addressee, in.store.OwnCallsign()) {
		return
	}

	switch {
	case msg.IsAck:
		in.store.ResolveAck(pkt.Src, msg.MsgNo)
	case msg.IsRej:
		in.store.SetMessageStatus(pkt.Src, msg.MsgNo, models.MessageStatusFailed)
	default:
		in.store.AppendMessage(models.Message{
			Direction: "rx",
			From:      pkt.Src,
			To:        msg.Addressee,
			Text:      strings.TrimSpace(msg.Text),
			MsgID:     msg.MsgNo,
			At:        time.Now(),
			Status:    models.MessageStatusReceived,
		})
		if msg.MsgNo != "" {
			ack := fmt.Sprintf("%s>APRS:%s", in.cfg.Callsign,
				aprs.BuildMessageInfo(pkt.Src, "ack"+msg.MsgNo, ""))
			if err := in.SendPacket(ack); err != nil {
				in.logger.Debug().Err(err).Str("to", pkt.Src).Msg("could not ack message")
			}
		}
	}
}

// filterDriftLoop re-issues the filter expression in band when the center
// has drifted or the radius changed since the last one sent.
func (in *Ingestor) filterDriftLoop(ctx context.Context) {
	ticker := time.NewTicker(filterCheckEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if in.filterStale() {
				if err := in.UpdateFilter(); err != nil {
					in.logger.Debug().Err(err).Msg("filter update failed")
				}
			}
		}
	}
}

func (in *Ingestor) filterStale() bool {
	current := in.store.Filter()
	in.mu.Lock()
	sent := in.sentFilter
	in.mu.Unlock()

	if current.RadiusKM != sent.RadiusKM {
		return true
	}
	if current.Center == nil || sent.Center == nil {
		return current.Center != sent.Center
	}
	return geo.DistanceKM(sent.Center.Lat, sent.Center.Lon, current.Center.Lat, current.Center.Lon) > filterDriftKM
}

// UpdateFilter pushes the current filter expression over the live
// connection without reconnecting. APRS-IS accepts "#filter" lines in band.
func (in *Ingestor) UpdateFilter() error {
	filter := in.store.Filter()

	in.mu.Lock()
	defer in.mu.Unlock()
	if in.conn == nil {
		return fmt.Errorf("feed not connected")
	}
	if _, err := fmt.Fprintf(in.conn, "#filter %s\r\n", filterExpr(filter)); err != nil {
		return fmt.Errorf("sending filter: %w", err)
	}
	in.sentFilter = filter
	in.logger.Info().Str("filter", filterExpr(filter)).Msg("re-issued feed filter")
	return nil
}

// SendPacket transmits one raw TNC2 line into the network. Requires a
// verified login upstream; best effort only.
func (in *Ingestor) SendPacket(tnc2 string) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.conn == nil {
		return fmt.Errorf("feed not connected")
	}
	if _, err := fmt.Fprintf(in.conn, "%s\r\n", tnc2); err != nil {
		return fmt.Errorf("sending packet: %w", err)
	}
	return nil
}

// Connected reports whether a live connection is up.
func (in *Ingestor) Connected() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.conn != nil
}
