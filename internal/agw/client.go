// Pawprint - APRS live map core for Direwolf and AllStarLink nodes
// Copyright 2026 KI9NG
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ki9ng/pawprint

// Package agw is a thin client for the Direwolf AGWPE port, used send-only:
// outbound APRS messages go to the local transmitter here instead of being
// injected into APRS-IS. Best effort, no retries, no inbound parsing.
package agw

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ki9ng/pawprint/internal/logging"
)

const (
	dialTimeout  = 5 * time.Second
	writeTimeout = 5 * time.Second

	// headerLen is the fixed AGWPE frame header size.
	headerLen = 36

	kindRegister = 'X'
	kindMessage  = 'M'
)

// Config carries the AGWPE endpoint and the registered callsign.
type Config struct {
	Host     string
	Port     int
	Callsign string
}

// Client holds one lazily dialed connection to the AGWPE port.
type Client struct {
	cfg Config

	mu   sync.Mutex
	conn net.Conn

	logger zerolog.Logger
}

// New builds a client; no connection is made until the first send.
func New(cfg Config) *Client {
	return &Client{
		cfg:    cfg,
		logger: logging.With().Str("component", "agw").Logger(),
	}
}

// frame assembles one AGWPE frame: a 36-byte header with the data kind,
// space-padded callsign fields, and a little-endian payload length.
func frame(kind byte, from, to string, data []byte) []byte {
	buf := make([]byte, headerLen+len(data))
	buf[4] = kind
	copy(buf[8:18], padCall(from))
	copy(buf[18:28], padCall(to))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(len(data)))
	copy(buf[headerLen:], data)
	return buf
}

func padCall(call string) []byte {
	out := make([]byte, 10)
	for i := range out {
		out[i] = 0
	}
	if len(call) > 9 {
		call = call[:9]
	}
	copy(out, call)
	return out
}

// Connect dials the AGWPE port and registers the callsign. Safe to call
// again after a failure; an existing connection is reused.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	addr := net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.Port))
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dialing agw %s: %w", addr, err)
	}

	// Register the callsign so the TNC accepts frames from it.
	reg := frame(kindRegister, c.cfg.Callsign, "", nil)
	if err := writeAll(conn, reg); err != nil {
		_ = conn.Close()
		return fmt.Errorf("registering callsign: %w", err)
	}

	c.conn = conn
	c.logger.Info().Str("server", addr).Str("callsign", c.cfg.Callsign).Msg("connected to agw port")
	return nil
}

// SendMessage transmits one APRS message info payload through the local
// transmitter. A failed write drops the connection so the next call
// redials.
func (c *Client) SendMessage(ctx context.Context, to, info string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return err
	}

	msg := frame(kindMessage, c.cfg.Callsign, to, []byte(info))
	if err := writeAll(c.conn, msg); err != nil {
		_ = c.conn.Close()
		c.conn = nil
		return fmt.Errorf("sending message frame: %w", err)
	}
	return nil
}

// Connected reports whether a connection is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close tears the connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func writeAll(conn net.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	for len(data) > 0 {
		n, err := conn.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}
